package printer

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
)

// Serial receive buffer size of common RepRap firmwares.
const bufferSize = 128

// Number of framed lines kept for resend requests. More than can be
// outstanding in a bufferSize device window.
const historySize = 32

// ErrPrinterReset will be returned from write methods if a firmware
// reset is encountered before all commands are run.
var ErrPrinterReset = errors.New("printer reset")

// Conn represents a direct connection to printer firmware speaking
// the RepRap serial protocol: one command per line, each
// acknowledged with "ok" or rejected with an error reply.
type Conn struct {
	rw io.ReadWriter

	readBuf []byte
	scan    *bufio.Scanner
	ackCh   chan error
	resetCh chan struct{}
	closeCh chan struct{}

	mx  sync.Mutex
	wMx sync.Mutex

	deviceBuf int
	lineSize  []int

	wroteLines int64
	readLines  int64

	// protocol line number used for checksummed framing
	lineNo    int64
	checksums bool

	// recently written frames, oldest first, guarded by mx
	sent []sentLine
}

type sentLine struct {
	n     int64
	frame []byte
}

// NewConn creates a new Conn using the provided ReadWriter for data.
// Outgoing lines are wrapped in the numbered checksum framing by
// default; call ResetLineNumber before streaming.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		scan:    bufio.NewScanner(rw),
		rw:      rw,
		ackCh:   make(chan error),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),

		checksums: true,
	}
}

// SetChecksums controls whether outgoing lines are wrapped in the
// numbered "N<num> <line>*<checksum>" framing the firmware verifies.
func (c *Conn) SetChecksums(on bool) { c.checksums = on }

// Close will abort any in-progress writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	close(c.closeCh)
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// frame wraps line in the numbered checksum format: the checksum is
// the XOR of every byte up to the '*'.
func frame(n int64, line []byte) []byte {
	buf := make([]byte, 0, len(line)+8)
	buf = append(buf, 'N')
	buf = strconv.AppendInt(buf, n, 10)
	buf = append(buf, ' ')
	buf = append(buf, line...)
	var sum byte
	for _, b := range buf {
		sum ^= b
	}
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(sum), 10)
	buf = append(buf, '\n')
	return buf
}

// ResetLineNumber resynchronizes the protocol line counter with the
// firmware. Call once after connecting, before streaming
// checksummed lines.
func (c *Conn) ResetLineNumber() error {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	c.lineNo = -1 // M110 itself goes out as N0
	c.mx.Lock()
	c.sent = nil // old frames carry stale numbers
	c.mx.Unlock()
	id, err := c.writeLine([]byte("M110 N0\n"))
	if err != nil {
		return err
	}
	return c.waitForLine(id)
}

func (c *Conn) recordBufferSpace(n int) int64 {
	c.deviceBuf += n
	c.wroteLines++
	c.lineSize = append(c.lineSize, n)
	return c.wroteLines
}

func (c *Conn) waitForBufferSpace(n int) error {
	for c.deviceBuf+n > bufferSize {
		err := c.next()
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) next() error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	select {
	case <-c.resetCh:
		c.reset()
		return ErrPrinterReset
	default:
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		c.reset()
		return ErrPrinterReset
	case e := <-c.ackCh:
		c.readLines++
		if len(c.lineSize) > 0 {
			c.deviceBuf -= c.lineSize[0]
			c.lineSize = c.lineSize[1:]
		}
		return e
	}
}

func (c *Conn) reset() {
	c.deviceBuf = 0
	c.lineSize = nil
	c.readLines = c.wroteLines
	c.lineNo = 0
	c.mx.Lock()
	c.sent = nil
	c.mx.Unlock()
}

func (c *Conn) waitForLine(id int64) (err error) {
	for c.readLines < id {
		e := c.next()
		if err == nil {
			err = e
		}
		if e == io.ErrClosedPipe {
			return err
		}
	}
	return err
}

// writeLine will block until line has been written to the serial
// device in full.
//
// It returns the line index.
func (c *Conn) writeLine(line []byte) (id int64, err error) {
	out := line
	if c.checksums {
		c.lineNo++
		out = frame(c.lineNo, bytes.TrimRight(line, "\r\n"))
	} else if len(out) == 0 || out[len(out)-1] != '\n' {
		buf := make([]byte, len(out)+1)
		copy(buf, out)
		buf[len(out)] = '\n'
		out = buf
	}
	err = c.waitForBufferSpace(len(out))
	if err != nil {
		return 0, err
	}
	c.mx.Lock()
	_, err = c.rw.Write(out)
	if err == nil && c.checksums {
		c.sent = append(c.sent, sentLine{n: c.lineNo, frame: out})
		if len(c.sent) > historySize {
			c.sent = c.sent[1:]
		}
	}
	c.mx.Unlock()
	if err != nil {
		return 0, err
	}
	return c.recordBufferSpace(len(out)), nil
}

// resend re-transmits every kept frame at or after the line number
// the firmware asked for. The frames go out with their original
// numbers and checksums, leaving the counter where it was.
func (c *Conn) resend(data []byte) {
	req := bytes.TrimPrefix(data, []byte("Resend:"))
	req = bytes.TrimPrefix(req, []byte("rs"))
	num, err := strconv.ParseInt(string(bytes.TrimSpace(req)), 10, 64)
	if err != nil {
		log.Println("WARN: unparseable resend request:", string(data))
		return
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	for _, s := range c.sent {
		if s.n < num {
			continue
		}
		_, err = c.rw.Write(s.frame)
		if err != nil {
			log.Println("ERROR: resend line:", err)
			return
		}
	}
}

func splitLinesKeepN(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		// final line missing its terminator: deliver it anyway,
		// writeLine terminates it
		return len(data), data, bufio.ErrFinalToken
	}
	return 0, nil, nil
}

// ReadFrom returns after all lines have been sent and executed.
func (c *Conn) ReadFrom(r io.Reader) (n int64, err error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(splitLinesKeepN)

	lastID := c.wroteLines
	for scanner.Scan() {
		lastID, err = c.writeLine(scanner.Bytes())
		if err != nil {
			return n, err
		}
		n += int64(len(scanner.Bytes()))
	}
	if err = scanner.Err(); err != nil {
		return n, err
	}

	return n, c.waitForLine(lastID)
}

// Write will return after all lines have been sent and executed.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.ReadFrom(bytes.NewBuffer(p))
	return int(n), err
}

// WriteByte will write directly to the serial device without
// accounting for buffering or checksums.
//
// Use for emergency commands that must bypass the send queue.
func (c *Conn) WriteByte(p byte) (err error) {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.mx.Lock()
	_, err = c.rw.Write([]byte{p})
	c.mx.Unlock()
	return err
}

// Read will read the next line from the device.
func (c *Conn) Read(p []byte) (n int, err error) {
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	if c.readBuf != nil {
		if len(p) < len(c.readBuf) {
			return 0, io.ErrShortBuffer
		}
		n = copy(p, c.readBuf)
		c.readBuf = nil
		return n, nil
	}
	if !c.scan.Scan() {
		if err = c.scan.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	data := c.scan.Bytes()

	if bytes.HasPrefix(data, []byte("ok")) {
		select {
		case c.ackCh <- nil:
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("Error:")) || bytes.HasPrefix(data, []byte("!!")) {
		select {
		case c.ackCh <- errors.New(strings.TrimSpace(string(data))):
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("Resend:")) || bytes.HasPrefix(data, []byte("rs ")) {
		// the firmware follows the request with its own ok or
		// error, so there is no extra slot to acknowledge here
		log.Println("WARN: firmware requested resend:", string(data))
		c.resend(data)
	} else if bytes.Equal(data, []byte("start")) {
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	}

	if len(p) < len(data) {
		c.readBuf = data
		return 0, io.ErrShortBuffer
	}

	return copy(p, data), nil
}
