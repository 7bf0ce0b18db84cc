package gcode

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// Factor converting imperial axis values to millimeters.
const imperialFactor = 25.4

var lineExp = regexp.MustCompile(`\([^()]*\)|;.*|[/*].*|([` + argCodes + structuralCodes + `])([-+]?[0-9]*\.?[0-9]*)`)

// specificExp extracts a single lettered value anywhere in a line,
// skipping parenthetical groups and comments.
const specificExp = `(?i)(?:\([^()]*\))|(?:;.*)|(?:[/*].*)|(%c[-+]?[0-9]*\.?[0-9]*)`

var (
	sExp = regexp.MustCompile(fmt.Sprintf(specificExp, 's'))
	pExp = regexp.MustCompile(fmt.Sprintf(specificExp, 'p'))
)

// Token is one recognized code from a raw line, with its numeric
// text as written.
type Token struct {
	Code byte
	Num  string
}

// Value parses the token's numeric text. Malformed or empty text
// reads as absent.
func (t Token) Value() (float64, bool) {
	if t.Num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(t.Num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Tokenize scans raw into a new line record plus its recognized
// tokens. A leading line-number word is discarded. If no token is
// recognized at all the command is left unset and the raw text is
// kept for verbatim pass-through.
func Tokenize(raw string) (*FullLine, []Token) {
	line := &FullLine{raw: raw}
	return line, split(line)
}

func split(line *FullLine) []Token {
	matches := lineExp.FindAllStringSubmatch(strings.ToLower(line.raw), -1)
	toks := make([]Token, 0, len(matches))
	for _, m := range matches {
		if m[1] == "" {
			// comment or parenthetical remark
			continue
		}
		toks = append(toks, Token{Code: m[1][0], Num: m[2]})
	}
	if len(toks) > 0 && toks[0].Code == 'n' {
		// line numbers carry no state
		toks = toks[1:]
	}
	if len(toks) == 0 {
		line.command = ""
		line.isMove = false
		log.Printf("WARN: g-code line %q could not be parsed", line.raw)
		return nil
	}
	line.command = strings.ToUpper(string(toks[0].Code)) + toks[0].Num
	line.isMove = isMoveCommand(line.command)
	return toks
}

// ParseCoordinates assigns the numeric arguments from toks onto
// line. Arguments are only parsed for G-family commands unless
// force is set. Under imperial units axis values are converted to
// millimeters; feedrate is left as given.
func ParseCoordinates(line *FullLine, toks []Token, imperial, force bool) {
	if !force && !strings.HasPrefix(line.command, "G") {
		return
	}
	for _, t := range toks {
		if strings.IndexByte(structuralCodes, t.Code) >= 0 {
			continue
		}
		v, ok := t.Value()
		if !ok {
			continue
		}
		if imperial && t.Code != 'f' {
			v *= imperialFactor
		}
		line.setArg(t.Code, v)
	}
}

func findIn(rx *regexp.Regexp, raw string) (float64, bool) {
	for _, m := range rx.FindAllStringSubmatch(raw, -1) {
		if m[1] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[1][1:], 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

// FindCode extracts the value of a single-letter code anywhere in
// raw, independent of the main tokenization pass.
func FindCode(raw string, code byte) (float64, bool) {
	rx, err := regexp.Compile(fmt.Sprintf(specificExp, code))
	if err != nil {
		return 0, false
	}
	return findIn(rx, raw)
}

// FindS returns the S parameter of a raw line, if present.
func FindS(raw string) (float64, bool) { return findIn(sExp, raw) }

// FindP returns the P parameter of a raw line, if present.
func FindP(raw string) (float64, bool) { return findIn(pExp, raw) }
