package printer

import (
	"bufio"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mastercactapus/printfeed/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSAdapter drives printer firmware through a Serial Port JSON
// Server bridge instead of a direct serial connection.
type SPJSAdapter struct {
	sp   *spjs.Client
	port string

	mx      sync.Mutex
	last    State
	state   chan State
	waiting map[string]chan error
}

var _ Adapter = &SPJSAdapter{}

func NewSPJSAdapter(sp *spjs.Client, port string, baud int) *SPJSAdapter {
	adapter := &SPJSAdapter{
		sp:      sp,
		port:    port,
		state:   make(chan State),
		waiting: make(map[string]chan error, 100),
	}
	sp.Open(port, baud)
	go adapter.loop()

	return adapter
}

func (adapter *SPJSAdapter) loop() {
	for msg := range adapter.sp.Messages() {
		switch m := msg.(type) {
		case *spjs.ErrorMessage:
			log.Println("ERROR: spjs:", m.Error)
		case *spjs.DataFrame:
			if m.Port != adapter.port {
				continue
			}
			adapter.handleData(m.Data)
		case *spjs.SerialPortList:
			adapter.checkPort()
		case *spjs.CmdStatus:
			switch m.Cmd {
			case "Complete":
				adapter.finish(m.ID, nil)
			case "Error":
				adapter.finish(m.ID, errors.New("spjs: command failed: "+strings.Join(m.Data, " ")))
			}
		}
	}
}

// checkPort warns when the configured port is missing from the
// server's latest port list.
func (adapter *SPJSAdapter) checkPort() {
	for _, p := range adapter.sp.Ports() {
		if p.Name == adapter.port {
			return
		}
	}
	log.Println("WARN: port not listed by spjs server:", adapter.port)
}

func (adapter *SPJSAdapter) handleData(data string) {
	adapter.mx.Lock()
	stat := adapter.last
	adapter.mx.Unlock()

	stat, found := foldReport(stat, data)
	if !found {
		return
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

func (adapter *SPJSAdapter) finish(id string, err error) {
	adapter.mx.Lock()
	ch := adapter.waiting[id]
	delete(adapter.waiting, id)
	adapter.mx.Unlock()
	if ch != nil {
		ch <- err
	}
}

func (adapter *SPJSAdapter) writeLine(line string) error {
	id := nextID()
	ch := make(chan error, 1)
	adapter.mx.Lock()
	adapter.waiting[id] = ch
	adapter.mx.Unlock()

	adapter.sp.SendJSON(spjs.JSON{
		Port: adapter.port,
		Data: []spjs.Data{{Data: line + "\n", ID: id}},
	})
	return <-ch
}

func (adapter *SPJSAdapter) State() chan State { return adapter.state }

func (adapter *SPJSAdapter) CurrentState() State {
	adapter.mx.Lock()
	state := adapter.last
	adapter.mx.Unlock()
	return state
}

// Write sends p line by line and returns after the bridge reports
// every line complete.
func (adapter *SPJSAdapter) Write(p []byte) (int, error) {
	var n int
	scanner := bufio.NewScanner(strings.NewReader(string(p)))
	for scanner.Scan() {
		err := adapter.writeLine(scanner.Text())
		if err != nil {
			return n, err
		}
		n += len(scanner.Text()) + 1
	}
	return len(p), nil
}

func (adapter *SPJSAdapter) ReadFrom(r io.Reader) (n int64, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		err = adapter.writeLine(scanner.Text())
		if err != nil {
			return n, err
		}
		n += int64(len(scanner.Text()) + 1)
	}
	return n, scanner.Err()
}

func (adapter *SPJSAdapter) WriteByte(p byte) error {
	return adapter.writeLine(string([]byte{p}))
}

func (adapter *SPJSAdapter) Close() error {
	return adapter.sp.Close()
}
