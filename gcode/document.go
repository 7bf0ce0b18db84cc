package gcode

import (
	"strconv"
	"strings"
	"time"

	"github.com/mastercactapus/printfeed/coord"
)

// Document folds a sequence of g-code lines into a continuously
// updated machine state. Lines may be appended incrementally; each
// processed line continues from the state left by the previous one.
//
// A Document has no internal locking. Callers sharing one between
// goroutines must serialize all access.
type Document struct {
	state State
	light bool
	lines []Line
}

// NewDocument returns a document storing full records, with per-line
// position and extrusion history.
func NewDocument() *Document {
	return &Document{}
}

// NewLightDocument returns a document storing only raw text and
// command identifiers, for programs too large to keep per-line
// history in memory.
func NewLightDocument() *Document {
	return &Document{light: true}
}

// SetHome overrides the home position used by G28. The default is
// the machine origin.
func (d *Document) SetHome(p coord.Point) {
	d.state.Home = p
}

// State returns a snapshot of the current machine state.
func (d *Document) State() State { return d.state }

func (d *Document) Len() int        { return len(d.lines) }
func (d *Document) Lines() []Line   { return d.lines }
func (d *Document) Line(i int) Line { return d.lines[i] }

// Append tokenizes raw, folds it into the machine state, and stores
// the resulting line record. Empty or whitespace-only input yields
// nil and changes nothing. Lines with no recognizable command are
// stored with an unset command so callers can still transmit them
// verbatim.
func (d *Document) Append(raw string) Line {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	line, toks := Tokenize(raw)
	d.fold(line, toks)
	var stored Line = line
	if d.light {
		stored = &LightLine{raw: raw, command: line.command}
	}
	d.lines = append(d.lines, stored)
	return stored
}

// AppendLines appends each line of raws in order.
func (d *Document) AppendLines(raws []string) {
	for _, raw := range raws {
		d.Append(raw)
	}
}

// Reprocess folds every stored line through the interpreter again,
// continuing from the current state. Full records get their
// annotations rewritten in place; light records are interpreted
// through a transient full record without persisting anything back.
func (d *Document) Reprocess() {
	for _, l := range d.lines {
		line, ok := l.(*FullLine)
		if !ok {
			line = &FullLine{raw: l.Raw()}
		}
		d.fold(line, split(line))
	}
}

// fold applies one line to the machine state and writes the
// resulting annotations back onto it.
func (d *Document) fold(line *FullLine, toks []Token) {
	if line.command == "" {
		return
	}
	s := &d.state

	switch {
	case line.isMove:
		line.Relative = s.Relative
		line.RelativeE = s.RelativeE
		line.Tool = s.Tool
	case line.command == "G20":
		s.Imperial = true
	case line.command == "G21":
		s.Imperial = false
	case line.command == "G90":
		s.Relative = false
		s.RelativeE = false
	case line.command == "G91":
		s.Relative = true
		s.RelativeE = true
	case line.command == "M82":
		s.RelativeE = false
	case line.command == "M83":
		s.RelativeE = true
	case line.command[0] == 'T':
		if n, err := strconv.Atoi(line.command[1:]); err == nil {
			s.Tool = n
		}
	}

	if line.command[0] == 'G' {
		ParseCoordinates(line, toks, s.Imperial, false)
	}

	x, hasX := line.Arg('x')
	y, hasY := line.Arg('y')
	z, hasZ := line.Arg('z')

	switch {
	case line.isMove:
		if f, ok := line.Arg('f'); ok {
			s.Feedrate = f
		}
		if line.Relative {
			if hasX {
				s.Pos.X += x
			}
			if hasY {
				s.Pos.Y += y
			}
			if hasZ {
				s.Pos.Z += z
			}
		} else {
			if hasX {
				s.Pos.X = x + s.Offset.X
			}
			if hasY {
				s.Pos.Y = y + s.Offset.Y
			}
			if hasZ {
				s.Pos.Z = z + s.Offset.Z
			}
		}
	case line.command == "G28":
		homeAll := !hasX && !hasY && !hasZ
		if homeAll || hasX {
			s.Offset.X = 0
			s.Pos.X = s.Home.X
		}
		if homeAll || hasY {
			s.Offset.Y = 0
			s.Pos.Y = s.Home.Y
		}
		if homeAll || hasZ {
			s.Offset.Z = 0
			s.Pos.Z = s.Home.Z
		}
	case line.command == "G92":
		// The head does not move: only the mapping between the
		// machine origin and the active coordinate system shifts.
		if hasX {
			s.Offset.X = s.Pos.X - x
		}
		if hasY {
			s.Offset.Y = s.Pos.Y - y
		}
		if hasZ {
			s.Offset.Z = s.Pos.Z - z
		}
	case line.command == "G4":
		if ms, ok := FindP(line.raw); ok {
			s.Dwell += time.Duration(ms * float64(time.Millisecond))
		}
	}

	line.Current = s.Pos

	if e, ok := line.Arg('e'); ok {
		switch {
		case line.isMove:
			if line.RelativeE {
				line.Extruding = e > 0
				s.TotalE += e
				s.E += e
			} else {
				newE := e + s.OffsetE
				line.Extruding = newE > s.E
				s.TotalE += newE - s.E
				s.E = newE
			}
			if s.TotalE > s.MaxE {
				s.MaxE = s.TotalE
			}
		case line.command == "G92":
			s.OffsetE = s.E - e
		}
	}
}
