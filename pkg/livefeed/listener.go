package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/NotCoffee418/p1_load_monitor/pkg/meterdb"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrMaxRetries = errors.New("live feed: max connection retries reached")

type ListenerOptions struct {
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// A connection is considered dead when nothing arrives for this long.
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		MaxRetries:     10,
		BaseRetryDelay: 2 * time.Second,
		MaxRetryDelay:  60 * time.Second,
		ReadTimeout:    30 * time.Second,
		PingInterval:   10 * time.Second,
	}
}

// FeedURL builds the websocket address of a p1_api instance.
func FeedURL(host string, tls bool) url.URL {
	scheme := "ws"
	if tls {
		scheme = "wss"
	}
	return url.URL{Scheme: scheme, Host: host, Path: "/ws"}
}

// Listen manages the websocket connection and calls handle for each record.
// It reconnects with exponential backoff and returns nil once ctx is cancelled.
func Listen(ctx context.Context, u url.URL, opts ListenerOptions, logger *zap.Logger, handle func(meterdb.Record)) error {
	retryCount := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if retryCount > 0 {
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<(retryCount-1)) * opts.BaseRetryDelay
			if retryDelay > opts.MaxRetryDelay {
				retryDelay = opts.MaxRetryDelay
			}
			logger.Info("retrying connection",
				zap.Duration("delay", retryDelay),
				zap.Int("attempt", retryCount+1),
				zap.Int("max_retries", opts.MaxRetries))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		logger.Info("connecting", zap.String("url", u.String()))
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			logger.Warn("connection failed", zap.Error(err))
			retryCount++
			if retryCount >= opts.MaxRetries {
				return ErrMaxRetries
			}
			continue
		}

		logger.Info("connected, accepting records")
		retryCount = 0

		// Handle the connection until it breaks or we're cancelled
		handleConnection(ctx, c, opts, logger, handle)
		c.Close()

		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("connection lost, will retry")
		retryCount = 1
	}
}

func handleConnection(ctx context.Context, c *websocket.Conn, opts ListenerOptions, logger *zap.Logger, handle func(meterdb.Record)) {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket error", zap.Error(err))
				} else {
					logger.Info("connection closed", zap.Error(err))
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))

			if messageType != websocket.TextMessage {
				logger.Debug("unexpected message type", zap.Int("type", messageType))
				continue
			}
			var record meterdb.Record
			if err := json.Unmarshal(message, &record); err != nil {
				logger.Warn("failed to parse record", zap.ByteString("message", message), zap.Error(err))
				continue
			}
			handle(record)
		}
	}()

	// Only this goroutine writes after the reader started
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Warn("failed to send ping", zap.Error(err))
			}
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Debug("error sending close message", zap.Error(err))
			}
			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
