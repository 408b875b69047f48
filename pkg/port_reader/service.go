package port_reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"
)

var errNoFrames = errors.New("line source ended without a complete telegram")

// Initialize a new P1Reader. The assembler is owned by the reader from here on.
func NewP1Reader(open Opener, assembler *telegram.Assembler, opts ReaderOptions, logger *zap.Logger) *P1Reader {
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 10
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &P1Reader{
		open:      open,
		assembler: assembler,
		opts:      opts,
		logger:    logger,
	}
}

// Run drives the line source and the assembler on the calling goroutine,
// invoking handleFrame for every completed telegram. handleFrame must not
// block; hand persistence off to another goroutine.
//
// When the source ends the partial telegram is dropped and the source is
// reopened. Run returns nil when ctx is cancelled, or an error once too
// many sessions in a row produced nothing.
func (p *P1Reader) Run(ctx context.Context, handleFrame func(telegram.Frame)) error {
	consecutiveErrors := 0
	var lastError error

	for {
		if ctx.Err() != nil {
			return nil
		}

		frames, err := p.session(ctx, handleFrame)
		if ctx.Err() != nil {
			return nil
		}
		if p.opts.Once {
			return err
		}

		if frames > 0 {
			consecutiveErrors = 0
		} else {
			if err == nil {
				err = errNoFrames
			}
			consecutiveErrors++
			lastError = err
		}
		if err != nil {
			p.logger.Warn("P1 line source ended",
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.Int("max_errors", p.opts.MaxConsecutiveErrors),
				zap.Error(err),
			)
		}
		if consecutiveErrors >= p.opts.MaxConsecutiveErrors {
			return fmt.Errorf("too many consecutive errors (%d), stopping reader: %w", consecutiveErrors, lastError)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.opts.RetryDelay):
		}
	}
}

// GetLatestFrame returns the last completed frame, or nil before the first one.
func (p *P1Reader) GetLatestFrame() *telegram.Frame {
	p.latestMutex.RLock()
	defer p.latestMutex.RUnlock()
	return p.latestFrame
}

func (p *P1Reader) session(ctx context.Context, handleFrame func(telegram.Frame)) (int, error) {
	conn, err := p.open()
	if err != nil {
		return 0, err
	}
	// Closing the connection is the only way to interrupt a pending read.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			conn.Close()
		}
		p.logger.Debug("Disconnected from P1 line source")
	}()
	p.logger.Debug("Connected to P1 line source")

	p.assembler.Reset()
	source := NewLineSource(conn)
	frames := 0
	for frame := range p.assembler.Frames(source.Lines()) {
		p.latestMutex.Lock()
		p.latestFrame = &frame
		p.latestMutex.Unlock()

		handleFrame(frame)
		frames++
	}

	if err := source.Err(); err != nil {
		return frames, fmt.Errorf("reading P1 line source: %w", err)
	}
	return frames, nil
}

// SerialOpener opens the P1 port. With a read timeout set, a silent line
// ends the session instead of blocking forever.
func SerialOpener(o SerialOptions) Opener {
	return func() (io.ReadCloser, error) {
		parity, err := parseParity(o.Parity)
		if err != nil {
			return nil, err
		}

		options := serial.OpenOptions{
			PortName:   o.Device,
			BaudRate:   o.Baudrate,
			DataBits:   o.DataBits,
			StopBits:   o.StopBits,
			ParityMode: parity,
		}
		if timeout := interCharacterTimeout(o.ReadTimeout); timeout > 0 {
			options.InterCharacterTimeout = timeout
		} else {
			options.MinimumReadSize = 1
		}

		port, err := serial.Open(options)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", o.Device, err)
		}
		return port, nil
	}
}

// FileOpener replays a captured telegram log.
func FileOpener(path string) Opener {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open replay file: %w", err)
		}
		return f, nil
	}
}

func parseParity(s string) (serial.ParityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return serial.PARITY_NONE, nil
	case "odd", "o":
		return serial.PARITY_ODD, nil
	case "even", "e":
		return serial.PARITY_EVEN, nil
	}
	return serial.PARITY_NONE, fmt.Errorf("unknown parity %q", s)
}

// The termios timer counts deciseconds in a byte and go-serial needs at
// least 100ms when no minimum read size is set.
func interCharacterTimeout(d time.Duration) uint {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		ms = 100
	case ms > 25500:
		ms = 25500
	}
	return uint(ms)
}
