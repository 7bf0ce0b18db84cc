package printer

import (
	"io"

	"github.com/mastercactapus/printfeed/coord"
)

// An Adapter represents the minimal printer interface.
type Adapter interface {
	State() chan State
	CurrentState() State

	WriteByte(byte) error
	Write([]byte) (int, error)
	ReadFrom(io.Reader) (int64, error)

	Close() error
}

// State is a point-in-time report from the firmware.
type State struct {
	Status string
	Pos    coord.Point
	E      float64

	Hotend Temperature
	Bed    Temperature
}

// Temperature holds an actual/target reading in degrees Celsius.
type Temperature struct {
	Actual float64
	Target float64
}
