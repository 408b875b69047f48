package solarinverter

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

var (
	ErrModbusNotConfigured = fmt.Errorf("modbus not configured") // may be intended
	ErrModbusReadFailed    = fmt.Errorf("modbus read failed")
	ErrModbusNotConnected  = fmt.Errorf("modbus not connected")
)

const (
	activePowerRegister = 32080
	cacheTTL            = 10 * time.Second
	maxRetries          = 3
)

type Config struct {
	Host       string
	ModbusPort int
	// nmcli connection brought up when the inverter's access point is unreachable
	WlanConnectionId string
}

func (c Config) IsConfigured() bool {
	return c.Host != "" && c.ModbusPort != 0 && c.WlanConnectionId != ""
}

// Inverter reads the current solar production over modbus TCP.
type Inverter struct {
	cfg    Config
	logger *zap.Logger

	// Swappable for tests
	readPower func(ctx context.Context) (int32, error)
	now       func() time.Time

	mu           sync.Mutex
	lastReadWatt int32
	lastReadTime time.Time
}

func NewInverter(cfg Config, logger *zap.Logger) *Inverter {
	inv := &Inverter{cfg: cfg, logger: logger, now: time.Now}
	inv.readPower = inv.readWithRetries
	return inv
}

func (i *Inverter) IsConfigured() bool {
	return i.cfg.IsConfigured()
}

// ReadPower returns the inverter output in watts. Results are cached to avoid spamming the poor inverter.
func (i *Inverter) ReadPower(ctx context.Context) (int32, error) {
	if !i.IsConfigured() {
		return 0, ErrModbusNotConfigured
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.lastReadTime.IsZero() && i.lastReadTime.After(i.now().Add(-cacheTTL)) {
		return i.lastReadWatt, nil
	}

	power, err := i.readPower(ctx)
	if err != nil {
		return 0, err
	}
	i.lastReadWatt = power
	i.lastReadTime = i.now()
	return power, nil
}

func (i *Inverter) readWithRetries(ctx context.Context) (int32, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, 2*time.Second); err != nil {
				return 0, errors.Join(ErrModbusReadFailed, err)
			}
			// Try reconnecting on retry attempts
			if err := i.tryReconnect(ctx); err != nil {
				lastErr = fmt.Errorf("reconnect failed on attempt %d: %w", attempt+1, err)
				continue
			}
		}

		// Ping check before attempting modbus connection
		if ok, _, err := ping(i.cfg.Host); !ok || err != nil {
			lastErr = fmt.Errorf("ping failed on attempt %d: %w", attempt+1, err)
			continue
		}

		power, err := i.readOnce(ctx)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			i.logger.Debug("inverter read failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		return power, nil
	}

	return 0, errors.Join(ErrModbusReadFailed, lastErr)
}

func (i *Inverter) readOnce(ctx context.Context) (int32, error) {
	handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", i.cfg.Host, i.cfg.ModbusPort))
	handler.Timeout = 10 * time.Second
	handler.SlaveId = 0

	if err := handler.Connect(); err != nil {
		return 0, fmt.Errorf("connection failed: %w", err)
	}
	defer handler.Close()

	// The 2s delay after connecting causes everything to not implode as much
	if err := sleep(ctx, 2*time.Second); err != nil {
		return 0, err
	}

	result, err := modbus.NewClient(handler).ReadHoldingRegisters(activePowerRegister, 2)
	if err != nil {
		return 0, fmt.Errorf("read power failed: %w", err)
	}
	return decodeInt32(result)
}

// decodeInt32 reads a big-endian signed 32 bit value spread over two registers.
func decodeInt32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("short register read: %d bytes", len(b))
	}
	return int32(b[0])<<24 | int32(b[1])<<16 | int32(b[2])<<8 | int32(b[3]), nil
}

func (i *Inverter) tryReconnect(ctx context.Context) error {
	// Check if already connected
	if ok, _, _ := ping(i.cfg.Host); ok {
		return nil
	}

	// Try reconnecting to wifi
	cmd := exec.CommandContext(ctx, "nmcli", "connection", "up", i.cfg.WlanConnectionId)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to bring up wifi connection: %w", err)
	}

	// Wait a bit for the connection to establish
	if err := sleep(ctx, 5*time.Second); err != nil {
		return err
	}

	ok, _, err := ping(i.cfg.Host)
	if err != nil {
		return err
	}
	if !ok {
		return ErrModbusNotConnected
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ping(host string) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	if err := pinger.Run(); err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt, nil
	}

	return false, 0, fmt.Errorf("no response")
}
