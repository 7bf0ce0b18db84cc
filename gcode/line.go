package gcode

import (
	"strings"

	"github.com/mastercactapus/printfeed/coord"
)

// Codes recognized by the tokenizer. Argument codes carry numeric
// values; structural codes only ever identify the command.
const (
	argCodes        = "xyzefij"
	structuralCodes = "gtmn"
)

// Line is the read surface shared by both line representations.
type Line interface {
	// Raw returns the original text, preserved verbatim.
	Raw() string
	// Command returns the command identifier, e.g. "G1", or the
	// empty string if no command was recognized.
	Command() string
	// IsMove reports whether the command is one of the four motion
	// commands.
	IsMove() bool
	// Arg returns the value of the given argument code and whether
	// the argument was present on the line.
	Arg(code byte) (float64, bool)
}

// FullLine carries every parsed argument along with the machine
// state annotations computed by the interpreter.
type FullLine struct {
	raw     string
	command string
	isMove  bool

	args [len(argCodes)]float64
	has  [len(argCodes)]bool

	// The fields below are filled in by the interpreter and reflect
	// the machine state in effect when the line executed.
	Relative  bool
	RelativeE bool
	Tool      int
	Current   coord.Point
	Extruding bool
}

var _ Line = &FullLine{}

func (l *FullLine) Raw() string     { return l.raw }
func (l *FullLine) Command() string { return l.command }
func (l *FullLine) IsMove() bool    { return l.isMove }

func (l *FullLine) Arg(code byte) (float64, bool) {
	i := argIndex(code)
	if i < 0 || !l.has[i] {
		return 0, false
	}
	return l.args[i], true
}

func (l *FullLine) setArg(code byte, val float64) {
	if i := argIndex(code); i >= 0 {
		l.args[i] = val
		l.has[i] = true
	}
}

func argIndex(code byte) int {
	if code >= 'A' && code <= 'Z' {
		code += 'a' - 'A'
	}
	return strings.IndexByte(argCodes, code)
}

// LightLine carries only the raw text and the command identifier.
// Every argument reads as absent.
type LightLine struct {
	raw     string
	command string
}

var _ Line = &LightLine{}

func (l *LightLine) Raw() string              { return l.raw }
func (l *LightLine) Command() string          { return l.command }
func (l *LightLine) IsMove() bool             { return isMoveCommand(l.command) }
func (l *LightLine) Arg(byte) (float64, bool) { return 0, false }

func isMoveCommand(cmd string) bool {
	switch cmd {
	case "G0", "G1", "G2", "G3":
		return true
	}
	return false
}
