// Package websocket provides the WebSocket client used for the live trade
// feed. It wraps a gorilla connection with lifecycle management: dial with
// handshake timeout, a read loop with panic-safe message handling, a
// keepalive ping loop, and an idempotent graceful close.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

const (
	defaultPingPeriod       = 15 * time.Second
	defaultSendTimeout      = 5 * time.Second
	defaultReadLimit        = 1 << 20 // 1MB
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrClientShuttingDown indicates the client is in the process of closing.
var ErrClientShuttingDown = errors.New("client is shutting down")

// Config defines settings for the WebSocket client.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is called for each incoming message and pushes any parsed
	// ticks onto the provided channel. Required.
	Handler func([]byte, chan<- model.Tick) error

	// PingPeriod is the interval between keepalive pings.
	PingPeriod time.Duration

	// SendTimeout bounds WebSocket write operations.
	SendTimeout time.Duration

	// SubscriptionMessages are sent immediately after connecting.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and message handling logic.
// Ticks parsed by the configured handler are delivered on TickChan, which is
// closed when the connection ends.
type Client struct {
	conn atomic.Value // stores *websocket.Conn

	// TickChan delivers parsed ticks to the consumer.
	TickChan chan model.Tick

	disconnect chan struct{}
	errChan    chan error

	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewClient dials the configured endpoint, sends any subscription messages
// and starts the read and keepalive loops.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		TickChan:   make(chan model.Tick, 1000),
		disconnect: make(chan struct{}),
		errChan:    make(chan error, 1),
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Endpoint, err)
	}
	conn.SetReadLimit(defaultReadLimit)
	c.conn.Store(conn)

	for _, msg := range cfg.SubscriptionMessages {
		if err := c.send(conn, msg); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to send subscription message: %w", err)
		}
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.pingLoop()
	}()
	// Not part of the wait group: Close itself waits on the group.
	go c.shutdownListener()

	return c, nil
}

// Disconnected is closed when the connection is lost or shut down.
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnect
}

// Errors reports the fatal error, if any, that terminated the connection.
func (c *Client) Errors() <-chan error {
	return c.errChan
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	log.Info().Str("endpoint", c.cfg.Endpoint).Msg("websocket connected")
	return conn, nil
}

func (c *Client) send(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// readLoop reads messages until the connection drops or the context ends,
// delegating each payload to the configured handler.
func (c *Client) readLoop() {
	conn := c.conn.Load().(*websocket.Conn)
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "readLoop").Logger()

	defer func() {
		close(c.disconnect)
		close(c.TickChan)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info().Err(err).Msg("websocket closed normally")
				} else {
					logger.Warn().Err(err).Msg("websocket read error")
				}
				select {
				case c.errChan <- err:
				default:
				}
				return
			}

			func() {
				// A panicking handler must not take down the feed.
				defer func() {
					if r := recover(); r != nil {
						logger.Error().Any("recover", r).Msg("panic in message handler")
					}
				}()
				if err := c.cfg.Handler(data, c.TickChan); err != nil {
					logger.Error().Err(err).Msg("failed to handle message")
				}
			}()
		}
	}
}

// pingLoop sends periodic pings to detect dead connections and defeat idle
// timeouts on the exchange side.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "pingLoop").Logger()

	for {
		select {
		case <-ticker.C:
			connVal := c.conn.Load()
			if connVal == nil {
				continue
			}
			conn := connVal.(*websocket.Conn)

			deadline := time.Now().Add(c.cfg.SendTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Warn().Err(err).Msg("ping error")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// shutdownListener closes the client when the context is cancelled.
func (c *Client) shutdownListener() {
	<-c.ctx.Done()
	c.Close()
}

// Close gracefully shuts down the client. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
		logger.Info().Msg("closing websocket client")

		c.cancel()

		if connVal := c.conn.Load(); connVal != nil {
			conn := connVal.(*websocket.Conn)
			if err := conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			); err != nil {
				logger.Debug().Err(err).Msg("failed to send close frame")
			}
			if err := conn.Close(); err != nil {
				logger.Debug().Err(err).Msg("error closing websocket connection")
			}
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("timeout waiting for goroutines to complete")
		}
	})
}
