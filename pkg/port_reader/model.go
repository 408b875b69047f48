package port_reader

import (
	"io"
	"sync"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/telegram"
	"go.uber.org/zap"
)

// Opener produces a fresh line source connection for every session.
type Opener func() (io.ReadCloser, error)

// SerialOptions describes the P1 port framing.
type SerialOptions struct {
	Device      string
	Baudrate    uint
	DataBits    uint
	StopBits    uint
	Parity      string // "none", "odd" or "even"
	ReadTimeout time.Duration
}

type ReaderOptions struct {
	// Sessions in a row that yield no frame before the reader gives up.
	MaxConsecutiveErrors int
	RetryDelay           time.Duration
	// Once stops after the first session, for replayed logs.
	Once bool
}

type P1Reader struct {
	open      Opener
	assembler *telegram.Assembler
	opts      ReaderOptions
	logger    *zap.Logger

	latestFrame *telegram.Frame
	latestMutex sync.RWMutex
}
