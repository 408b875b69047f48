package port_reader

import (
	"bufio"
	"io"
	"iter"
)

// P1 lines are short; 1 KiB covers the longest known register line.
const maxLineLength = 1024

// LineSource splits a byte stream into lines without their CR/LF.
type LineSource struct {
	scanner *bufio.Scanner
}

func NewLineSource(r io.Reader) *LineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, maxLineLength), 64*maxLineLength)
	return &LineSource{scanner: scanner}
}

// Lines ends on EOF, read timeout or I/O error; see Err.
func (s *LineSource) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.scanner.Scan() {
			if !yield(s.scanner.Text()) {
				return
			}
		}
	}
}

// Err returns the error that ended Lines, nil on a clean EOF.
func (s *LineSource) Err() error {
	return s.scanner.Err()
}
