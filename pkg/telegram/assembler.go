package telegram

import (
	"errors"
	"iter"
	"strings"
)

type Option func(*Assembler)

// WithMalformedHook reports lines that carry a known identifier but whose
// value could not be decoded. Such lines are still skipped.
func WithMalformedHook(hook func(identifier, line string)) Option {
	return func(a *Assembler) {
		a.onMalformed = hook
	}
}

// WithChecksum makes the assembler frame telegrams on the `/` header and
// only emit those whose `!XXXX` CRC16 matches.
func WithChecksum() Option {
	return func(a *Assembler) {
		a.checksum = true
	}
}

// WithChecksumHook is called with the terminator line of every dropped telegram.
func WithChecksumHook(hook func(line string)) Option {
	return func(a *Assembler) {
		a.onBadChecksum = hook
	}
}

// Assembler folds telegram lines into Frames. It is not safe for
// concurrent use; one assembler belongs to one line source.
type Assembler struct {
	frame Frame

	onMalformed   func(identifier, line string)
	checksum      bool
	onBadChecksum func(line string)
	raw           strings.Builder
	inTelegram    bool
}

func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed consumes one line. It returns the completed frame and true when
// the line closed a telegram.
func (a *Assembler) Feed(line string) (Frame, bool) {
	if a.checksum {
		return a.feedChecked(line)
	}
	if line == Terminator {
		return a.take(), true
	}
	a.apply(line)
	return Frame{}, false
}

// Frames lazily yields a frame per terminator seen in lines. A trailing
// partial telegram is never yielded.
func (a *Assembler) Frames(lines iter.Seq[string]) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for line := range lines {
			if f, ok := a.Feed(line); ok {
				if !yield(f) {
					return
				}
			}
		}
	}
}

// Reset drops the partial telegram.
func (a *Assembler) Reset() {
	a.frame = Frame{}
	a.raw.Reset()
	a.inTelegram = false
}

func (a *Assembler) apply(line string) {
	for _, r := range registers {
		v, err := parseValue(line, r.id)
		switch {
		case err == nil:
			r.set(&a.frame, v)
		case errors.Is(err, ErrMalformedNumber) && a.onMalformed != nil:
			a.onMalformed(r.id, line)
		}
	}
}

// take moves the accumulated frame out and leaves an empty one behind.
func (a *Assembler) take() Frame {
	f := a.frame
	a.frame = Frame{}
	return f
}

func (a *Assembler) feedChecked(line string) (Frame, bool) {
	if strings.HasPrefix(line, "/") {
		a.Reset()
		a.inTelegram = true
		a.raw.WriteString(line)
		a.raw.WriteString("\r\n")
		return Frame{}, false
	}
	if !a.inTelegram {
		return Frame{}, false
	}

	if crc, ok := strings.CutPrefix(line, Terminator); ok {
		a.raw.WriteString(Terminator)
		valid := validCRC(a.raw.String(), crc)
		f := a.take()
		a.Reset()
		if !valid {
			if a.onBadChecksum != nil {
				a.onBadChecksum(line)
			}
			return Frame{}, false
		}
		return f, true
	}

	a.raw.WriteString(line)
	a.raw.WriteString("\r\n")
	a.apply(line)
	return Frame{}, false
}
