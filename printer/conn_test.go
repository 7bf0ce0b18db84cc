package printer

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePort struct {
	io.Reader

	mx  sync.Mutex
	buf bytes.Buffer
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.buf.Write(p)
}
func (f *fakePort) Written() string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.buf.String()
}

func pump(c *Conn) {
	go func() {
		buf := make([]byte, 1024)
		for {
			_, err := c.Read(buf)
			if err != nil {
				return
			}
		}
	}()
}

func TestConn_Write(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("ok\nok\n")}
	c := NewConn(port)
	pump(c)

	err := c.ResetLineNumber()
	assert.NoError(t, err)

	n, err := c.Write([]byte("G28\n"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, "N0 M110 N0*125\nN1 G28*18\n", port.Written())
}

func TestConn_WritePlain(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("ok\nok\n")}
	c := NewConn(port)
	c.SetChecksums(false)
	pump(c)

	_, err := c.Write([]byte("G28\nG1 X10\n"))
	assert.NoError(t, err)

	assert.Equal(t, "G28\nG1 X10\n", port.Written())
}

func TestConn_ErrorAck(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("Error:checksum mismatch, Last Line: 0\n")}
	c := NewConn(port)
	pump(c)

	_, err := c.Write([]byte("G28\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestConn_Resend(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("ok\nError:checksum mismatch, Last Line: 0\nResend: 1\nok\n")}
	c := NewConn(port)
	pump(c)

	err := c.ResetLineNumber()
	assert.NoError(t, err)

	_, err = c.Write([]byte("G28\n"))
	assert.Error(t, err)

	// the ok after the resend request acknowledges this write, so
	// the re-transmission is done by the time it returns
	_, err = c.Write([]byte("M105\n"))
	assert.NoError(t, err)

	assert.Equal(t, 2, strings.Count(port.Written(), "N1 G28*18\n"))
}

func TestConn_WriteNoNewline(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("ok\nok\n")}
	c := NewConn(port)
	c.SetChecksums(false)
	pump(c)

	_, err := c.Write([]byte("G28\nG1 X10"))
	assert.NoError(t, err)

	assert.Equal(t, "G28\nG1 X10\n", port.Written())
}

func TestConn_Reset(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("start\n")}
	c := NewConn(port)
	pump(c)

	_, err := c.Write([]byte("G28\n"))
	assert.Equal(t, ErrPrinterReset, err)
}

func TestConn_Closed(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("")}
	c := NewConn(port)

	assert.NoError(t, c.Close())

	_, err := c.Write([]byte("G28\n"))
	assert.Equal(t, io.ErrClosedPipe, err)
	assert.Equal(t, io.ErrClosedPipe, c.WriteByte('!'))
}

func TestFrame(t *testing.T) {
	assert.Equal(t, "N1 G28*18\n", string(frame(1, []byte("G28"))))
	assert.Equal(t, "N2 G1 X10*83\n", string(frame(2, []byte("G1 X10"))))
}
