package gcode

import (
	"bufio"
	"io"
	"strings"
)

// Read appends every line from r to the document, in order.
func (d *Document) Read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.Append(scanner.Text())
	}
	return scanner.Err()
}

// Parse builds a full document from data, one command per line.
func Parse(data string) (*Document, error) {
	d := NewDocument()
	err := d.Read(strings.NewReader(data))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func MustParse(data string) *Document {
	d, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return d
}
