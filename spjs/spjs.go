// Package spjs is a client for Serial Port JSON Server, a websocket
// bridge commonly used to reach printer and CNC serial ports over
// the network.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	url string

	mx          sync.RWMutex
	serialPorts []SerialPort

	outgoing chan message
	incoming chan interface{}
	closeCh  chan struct{}
}

type message struct {
	done    chan struct{}
	payload []byte
}

// DataFrame is raw data read from a bridged serial port.
type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

// CmdStatus reports the lifecycle of a queued command.
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name         string
	Friendly     string
	SerialNumber string
	IsOpen       bool
	Baud         int
}

func NewClient(url string) *Client {
	c := &Client{
		url:      url,
		outgoing: make(chan message, 1000),
		incoming: make(chan interface{}, 1000),
		closeCh:  make(chan struct{}),
	}

	go c.loop()

	return c
}

// Messages returns the stream of decoded messages from the server.
func (c *Client) Messages() chan interface{} {
	return c.incoming
}

// Ports returns the most recent serial port list from the server.
func (c *Client) Ports() []SerialPort {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.serialPorts
}

func (c *Client) Close() error {
	close(c.closeCh)
	return nil
}

func parseMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Println("ERROR: read:", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			log.Println("ERROR: read:", err)
			continue
		}
		val, err := parseMessage(data, msg)
		if err != nil {
			log.Println("ERROR: parse:", err)
			continue
		}
		if list, ok := val.(*SerialPortList); ok {
			c.mx.Lock()
			c.serialPorts = list.SerialPorts
			c.mx.Unlock()
		}
		c.incoming <- val
	}
}

func (c *Client) loop() {
	var nextUp message

reconnect:
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		log.Println("Connecting to", c.url)
		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			log.Println("ERROR: connect:", err)
			time.Sleep(3 * time.Second)
			continue
		}
		log.Println("Connected.")
		ch := make(chan struct{})
		go c.readLoop(ws, ch)
		go c.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					log.Println("ERROR: send:", err)
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-c.closeCh:
				ws.Close()
				return
			case <-ch:
				continue reconnect
			case nextUp = <-c.outgoing:
			}
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// Open asks the server to open the named port at the given baud
// rate.
func (c *Client) Open(port string, baud int) {
	c.WriteString("open " + port + " " + strconv.Itoa(baud))
}

// SendJSON queues data for a port and returns once it has been
// handed to the server.
func (c *Client) SendJSON(v JSON) {
	data, err := json.Marshal(v)
	if err != nil {
		// shouldn't happen since we control everything that's sent out
		log.Panicln("ERROR: sendjson (marshal):", err)
		return
	}

	ch := make(chan struct{})
	c.outgoing <- message{done: ch, payload: append([]byte("sendjson "), data...)}
	<-ch
}

// WriteString sends a raw command to the server.
func (c *Client) WriteString(data string) {
	ch := make(chan struct{})
	c.outgoing <- message{done: ch, payload: []byte(data)}
	<-ch
}
