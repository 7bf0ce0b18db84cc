package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mastercactapus/printfeed/coord"
)

func TestParseTemps(t *testing.T) {
	stat, ok := parseTemps(State{}, "ok T:210.3 /210.0 B:60.1 /60.0 @:127")
	assert.True(t, ok)
	assert.Equal(t, Temperature{Actual: 210.3, Target: 210.0}, stat.Hotend)
	assert.Equal(t, Temperature{Actual: 60.1, Target: 60.0}, stat.Bed)

	stat, ok = parseTemps(State{}, "T:23.5/0.0 B:22.9/0.0")
	assert.True(t, ok)
	assert.Equal(t, 23.5, stat.Hotend.Actual)
	assert.Equal(t, 22.9, stat.Bed.Actual)

	_, ok = parseTemps(State{}, "echo:busy: processing")
	assert.False(t, ok)
}

func TestParsePosition(t *testing.T) {
	stat, ok := parsePosition(State{}, "X:10.00 Y:-5.50 Z:0.30 E:12.10 Count X:800 Y:-440 Z:120")
	assert.True(t, ok)
	assert.Equal(t, coord.Point{X: 10, Y: -5.5, Z: 0.3}, stat.Pos)
	assert.Equal(t, 12.1, stat.E)
}

func TestFoldReport(t *testing.T) {
	stat, ok := foldReport(State{Status: "online"}, "start")
	assert.True(t, ok)
	assert.Equal(t, "reset", stat.Status)

	_, ok = foldReport(State{}, "")
	assert.False(t, ok)

	stat, ok = foldReport(State{}, "ok T:100.0 /210.0")
	assert.True(t, ok)
	assert.Equal(t, 100.0, stat.Hotend.Actual)
}
