package printer

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// SerialAdapter drives printer firmware over a direct serial
// connection.
type SerialAdapter struct {
	*Conn

	mx    sync.Mutex
	last  State
	state chan State
	data  chan string
}

var _ Adapter = &SerialAdapter{}

// Dial opens the serial port and returns an adapter speaking the
// printer protocol over it.
func Dial(port string, baud int) (*SerialAdapter, error) {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, err
	}
	return NewSerialAdapter(p), nil
}

// NewSerialAdapter wraps rw in the printer protocol. A ticker polls
// the firmware for temperature reports while the send queue is
// idle.
func NewSerialAdapter(rw io.ReadWriter) *SerialAdapter {
	conn := NewConn(rw)
	adapter := &SerialAdapter{
		Conn: conn,

		state: make(chan State),
		data:  make(chan string),
	}
	go adapter.loop()
	go adapter.readLoop()
	go adapter.pollLoop()

	return adapter
}

func (adapter *SerialAdapter) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := adapter.Conn.Read(buf)
		if err == io.ErrShortBuffer {
			buf = make([]byte, len(buf)*2)
			continue
		}
		if err != nil {
			if err != io.ErrClosedPipe && err != io.EOF {
				log.Println("ERROR: read from port:", err)
			}
			return
		}
		adapter.data <- string(buf[:n])
	}
}

func (adapter *SerialAdapter) pollLoop() {
	for range time.NewTicker(5 * time.Second).C {
		// M105 asks the firmware for a temperature report; the
		// reply is picked up by the read loop
		_, err := adapter.Conn.Write([]byte("M105\n"))
		if err == io.ErrClosedPipe {
			return
		}
		if err != nil {
			log.Println("ERROR: poll temperatures:", err)
		}
	}
}

func (adapter *SerialAdapter) State() chan State { return adapter.state }

func (adapter *SerialAdapter) CurrentState() State {
	adapter.mx.Lock()
	state := adapter.last
	adapter.mx.Unlock()
	return state
}

func (adapter *SerialAdapter) loop() {
	for data := range adapter.data {
		adapter.mx.Lock()
		stat := adapter.last
		adapter.mx.Unlock()

		stat, found := foldReport(stat, data)
		if !found {
			continue
		}
		if stat.Status == "" {
			stat.Status = "online"
		}

		adapter.mx.Lock()
		adapter.last = stat
		adapter.mx.Unlock()
		select {
		case adapter.state <- stat:
		default:
		}
	}
}
