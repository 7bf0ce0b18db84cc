package printer

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mastercactapus/printfeed/gcode"
)

// Printer streams a g-code document to an adapter in document
// order, one acknowledged line at a time.
type Printer struct {
	Adapter

	// OnSend, if set, is called with each line just before it is
	// sent.
	OnSend func(gcode.Line)
	// OnConsumed, if set, is called after each line is handed to
	// the adapter and may append more lines to the document being
	// printed. It runs with the printer's internal lock held and
	// must only touch the document.
	OnConsumed func()

	mx       sync.Mutex
	doc      *gcode.Document
	index    int
	printing bool
	paused   bool
	canceled bool
	done     chan struct{}
}

func NewPrinter(a Adapter) *Printer {
	return &Printer{Adapter: a}
}

// StartPrint begins streaming doc. Lines appended to doc while
// printing are picked up as the send index reaches them; the print
// ends when the index catches up with the document. Only one print
// may run at a time.
func (p *Printer) StartPrint(doc *gcode.Document) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.printing {
		return errors.New("print already in progress")
	}
	p.printing = true
	p.paused = false
	p.canceled = false
	p.doc = doc
	p.index = 0
	p.done = make(chan struct{})

	go p.printLoop(p.done)
	return nil
}

func (p *Printer) printLoop(done chan struct{}) {
	defer close(done)
	defer func() {
		p.mx.Lock()
		p.printing = false
		p.mx.Unlock()
	}()

	for {
		p.mx.Lock()
		if p.canceled {
			p.mx.Unlock()
			return
		}
		if p.paused {
			p.mx.Unlock()
			time.Sleep(100 * time.Millisecond)
			continue
		}
		var line gcode.Line
		if p.index < p.doc.Len() {
			line = p.doc.Line(p.index)
		}
		p.mx.Unlock()

		if line == nil {
			// caught up with the document
			return
		}
		if p.OnSend != nil {
			p.OnSend(line)
		}
		_, err := p.Adapter.Write([]byte(line.Raw() + "\n"))
		if err != nil {
			log.Println("ERROR: send line:", err)
			return
		}

		p.mx.Lock()
		p.index++
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.mx.Unlock()
	}
}

// Pause stops sending after the in-flight line; Resume picks the
// stream back up where it left off.
func (p *Printer) Pause() {
	p.mx.Lock()
	p.paused = true
	p.mx.Unlock()
}

func (p *Printer) Resume() {
	p.mx.Lock()
	p.paused = false
	p.mx.Unlock()
}

// Cancel ends the print after the in-flight line. The document is
// left as-is.
func (p *Printer) Cancel() {
	p.mx.Lock()
	p.canceled = true
	p.mx.Unlock()
}

func (p *Printer) Printing() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.printing
}

func (p *Printer) Paused() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.paused
}

// Progress returns the number of lines sent and the number of lines
// in the document so far.
func (p *Printer) Progress() (sent, total int) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.doc == nil {
		return 0, 0
	}
	return p.index, p.doc.Len()
}

// DocumentState returns a snapshot of the interpreter state of the
// document being printed.
func (p *Printer) DocumentState() gcode.State {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.doc == nil {
		return gcode.State{}
	}
	return p.doc.State()
}

// Wait blocks until the current print finishes or is canceled.
func (p *Printer) Wait() {
	p.mx.Lock()
	done := p.done
	p.mx.Unlock()
	if done != nil {
		<-done
	}
}
