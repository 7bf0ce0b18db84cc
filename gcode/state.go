package gcode

import (
	"time"

	"github.com/mastercactapus/printfeed/coord"
)

// State is the machine state carried across a document. It is
// mutated by each processed line in strict document order.
//
// Expected behavior:
//   - G28 X: the X axis is homed, Offset.X <- 0, Pos.X <- Home.X
//   - G92 Xk: the X axis does not move, so Pos.X does not change
//     and Offset.X <- Pos.X - k
//   - absolute G1 Xk: the X axis moves, Pos.X <- Offset.X + k
type State struct {
	Imperial  bool
	Relative  bool
	RelativeE bool
	Tool      int

	// Home is the absolute position each axis returns to on G28.
	Home coord.Point
	// Pos is the current absolute position counted from the
	// machine origin.
	Pos coord.Point
	// Offset is the current offset between the machine origin and
	// the active coordinate system, as shifted by G92s.
	Offset coord.Point

	// E is the absolute extrusion position from machine start.
	E       float64
	OffsetE float64
	// TotalE is the total filament consumed. MaxE is its running
	// maximum and never decreases.
	TotalE float64
	MaxE   float64

	Feedrate float64

	// Dwell accumulates G4 pause time.
	Dwell time.Duration
}

// Abs returns the position in the active coordinate system, after
// the various G92 transformations.
func (s State) Abs() coord.Point {
	return s.Pos.Sub(s.Offset)
}

// AbsE returns the extrusion position in the active coordinate
// system.
func (s State) AbsE() float64 {
	return s.E - s.OffsetE
}
