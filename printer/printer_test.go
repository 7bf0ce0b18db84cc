package printer

import (
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mastercactapus/printfeed/gcode"
)

type fakeAdapter struct {
	delay time.Duration

	mx    sync.Mutex
	lines []string
}

func (f *fakeAdapter) State() chan State    { return nil }
func (f *fakeAdapter) CurrentState() State  { return State{} }
func (f *fakeAdapter) WriteByte(byte) error { return nil }
func (f *fakeAdapter) Close() error         { return nil }
func (f *fakeAdapter) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(ioutil.Discard, r)
}

func (f *fakeAdapter) Write(p []byte) (int, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mx.Lock()
	f.lines = append(f.lines, strings.TrimRight(string(p), "\n"))
	f.mx.Unlock()
	return len(p), nil
}

func (f *fakeAdapter) Lines() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.lines...)
}

func TestPrinter_StartPrint(t *testing.T) {
	program := []string{"G28", "G1 X10 Y10 F3000", "G1 X20 E5"}
	doc := gcode.NewLightDocument()
	doc.AppendLines(program)

	fake := &fakeAdapter{}
	p := NewPrinter(fake)

	assert.NoError(t, p.StartPrint(doc))
	assert.Error(t, p.StartPrint(doc), "second print must be refused")
	p.Wait()

	assert.Equal(t, program, fake.Lines())
	sent, total := p.Progress()
	assert.Equal(t, 3, sent)
	assert.Equal(t, 3, total)
	assert.False(t, p.Printing())
}

func TestPrinter_StreamingAppend(t *testing.T) {
	doc := gcode.NewLightDocument()
	doc.Append("G28")

	next := 1
	fake := &fakeAdapter{}
	p := NewPrinter(fake)
	p.OnConsumed = func() {
		if next < 5 {
			doc.Append(fmt.Sprintf("G1 X%d", next))
			next++
		}
	}

	assert.NoError(t, p.StartPrint(doc))
	p.Wait()

	assert.Equal(t, []string{"G28", "G1 X1", "G1 X2", "G1 X3", "G1 X4"}, fake.Lines())
}

func TestPrinter_Cancel(t *testing.T) {
	doc := gcode.NewLightDocument()
	for i := 0; i < 100; i++ {
		doc.Append("G1 X1")
	}

	fake := &fakeAdapter{delay: 5 * time.Millisecond}
	p := NewPrinter(fake)

	assert.NoError(t, p.StartPrint(doc))
	p.Cancel()
	p.Wait()

	sent, _ := p.Progress()
	assert.True(t, sent < 100, "cancel should stop the stream early")
	assert.False(t, p.Printing())
}

func TestPrinter_PauseResume(t *testing.T) {
	doc := gcode.NewLightDocument()
	for i := 0; i < 50; i++ {
		doc.Append("G1 X1")
	}

	fake := &fakeAdapter{delay: 2 * time.Millisecond}
	p := NewPrinter(fake)

	assert.NoError(t, p.StartPrint(doc))
	p.Pause()
	assert.True(t, p.Paused())

	// let the in-flight line settle, then verify nothing moves
	time.Sleep(150 * time.Millisecond)
	before, _ := p.Progress()
	time.Sleep(150 * time.Millisecond)
	after, _ := p.Progress()
	assert.Equal(t, before, after)

	p.Resume()
	p.Wait()
	sent, total := p.Progress()
	assert.Equal(t, total, sent)
	assert.Equal(t, 50, len(fake.Lines()))
}

func TestPrinter_DocumentState(t *testing.T) {
	doc := gcode.NewDocument()
	doc.AppendLines([]string{"G90", "G1 X10 Y5 E2"})

	p := NewPrinter(&fakeAdapter{})
	assert.Equal(t, gcode.State{}, p.DocumentState())

	assert.NoError(t, p.StartPrint(doc))
	p.Wait()

	s := p.DocumentState()
	assert.Equal(t, 10.0, s.Pos.X)
	assert.Equal(t, 2.0, s.TotalE)
}
