package printer

import (
	"regexp"
	"strconv"
	"strings"
)

// Firmware reports come back as plain text lines:
//
//	ok T:210.3 /210.0 B:60.1 /60.0 @:127
//	X:0.00 Y:0.00 Z:0.00 E:0.00 Count X:0.00 Y:0.00 Z:0.00

var positionExp = regexp.MustCompile(`([XYZE]):? ?([-+]?[0-9]*\.?[0-9]*)`)

func splitTemp(s string) (actual, target float64, hasTarget bool, err error) {
	parts := strings.SplitN(s, "/", 2)
	actual, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false, err
	}
	if len(parts) == 2 && parts[1] != "" {
		target, err = strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return 0, 0, false, err
		}
		hasTarget = true
	}
	return actual, target, hasTarget, nil
}

// parseTemps folds a temperature report into stat. It reports
// whether any reading was found.
func parseTemps(stat State, data string) (State, bool) {
	fields := strings.Fields(data)
	var found bool
	for i, f := range fields {
		var t *Temperature
		switch {
		case strings.HasPrefix(f, "T:"):
			t = &stat.Hotend
		case strings.HasPrefix(f, "B:"):
			t = &stat.Bed
		default:
			continue
		}
		val := f[2:]
		// some firmwares put a space before the target value
		if i+1 < len(fields) && strings.HasPrefix(fields[i+1], "/") {
			val += fields[i+1]
		}
		actual, target, hasTarget, err := splitTemp(val)
		if err != nil {
			continue
		}
		t.Actual = actual
		if hasTarget {
			t.Target = target
		}
		found = true
	}
	return stat, found
}

// foldReport folds one line of firmware output into stat. It
// reports whether the line carried anything of interest.
func foldReport(stat State, data string) (State, bool) {
	data = strings.TrimSpace(data)
	switch {
	case data == "":
		return stat, false
	case data == "start":
		return State{Status: "reset"}, true
	case strings.Contains(data, "T:") || strings.Contains(data, "B:"):
		return parseTemps(stat, data)
	case strings.HasPrefix(data, "X:"):
		return parsePosition(stat, data)
	}
	return stat, false
}

// parsePosition folds an M114 position report into stat.
func parsePosition(stat State, data string) (State, bool) {
	// the Count section repeats the axis letters in stepper units
	data = strings.SplitN(data, "Count", 2)[0]
	var found bool
	for _, m := range positionExp.FindAllStringSubmatch(data, -1) {
		if m[2] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "X":
			stat.Pos.X = v
		case "Y":
			stat.Pos.Y = v
		case "Z":
			stat.Pos.Z = v
		case "E":
			stat.E = v
		}
		found = true
	}
	return stat, found
}
