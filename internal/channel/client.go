// Package channel consumes the backend's push event channel over a websocket,
// decodes frames into aggregator events and supervises reconnection.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/period-search-monitor/internal/metrics"
	"github.com/JakeFAU/period-search-monitor/internal/progress"
)

// ErrReconnectExhausted is returned by Run once every reconnect attempt failed.
var ErrReconnectExhausted = errors.New("event channel reconnect attempts exhausted")

// Sink receives decoded events in arrival order.
type Sink interface {
	Deliver(ctx context.Context, evt progress.Event) error
}

// Clock stamps received events.
type Clock interface {
	Now() time.Time
}

// Config controls the websocket connection and reconnect policy.
type Config struct {
	URL string
	// MaxReconnectAttempts bounds consecutive reconnect attempts after a
	// disconnect. Zero retries forever.
	MaxReconnectAttempts int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	HandshakeTimeout     time.Duration
	Header               http.Header
}

// Client reads the event channel and forwards events to a Sink.
type Client struct {
	cfg    Config
	url    string
	dialer *websocket.Dialer
	sink   Sink
	clock  Clock
	logger *zap.Logger
}

// New validates cfg and constructs a Client.
func New(cfg Config, sink Sink, clock Clock, logger *zap.Logger) (*Client, error) {
	if sink == nil {
		return nil, errors.New("event sink is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	wsURL, err := websocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		url:    wsURL,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		sink:   sink,
		clock:  clock,
		logger: logger.Named("channel"),
	}, nil
}

// websocketURL accepts ws(s) URLs and maps http(s) onto them.
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("channel url scheme %q is not ws, wss, http or https", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("channel url has no host")
	}
	return u.String(), nil
}

// Run connects and consumes frames until ctx is cancelled or reconnection is
// exhausted. Lifecycle changes are delivered to the sink as connection
// events. Nothing is replayed after a reconnect. It returns nil on
// cancellation and ErrReconnectExhausted when the retry budget runs out.
func (c *Client) Run(ctx context.Context) error {
	if err := c.emit(ctx, progress.Connecting{}); err != nil {
		return c.stopped(ctx, err)
	}
	conn, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.emit(ctx, progress.Disconnected{Reason: err.Error()}); err != nil {
			return c.stopped(ctx, err)
		}
	} else {
		if err := c.emit(ctx, progress.Connected{}); err != nil {
			_ = conn.Close()
			return c.stopped(ctx, err)
		}
		if err := c.consume(ctx, conn); err != nil {
			return c.stopped(ctx, err)
		}
	}

	b := c.newBackOff()
	attempt := 0
	for {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			metrics.ObserveReconnect("exhausted")
			c.logger.Error("giving up on event channel", zap.Int("attempts", attempt))
			if err := c.emit(ctx, progress.ReconnectFailed{Attempts: attempt}); err != nil {
				return c.stopped(ctx, err)
			}
			return ErrReconnectExhausted
		}
		attempt++
		if err := c.emit(ctx, progress.ReconnectAttempt{Attempt: attempt}); err != nil {
			return c.stopped(ctx, err)
		}
		if !sleep(ctx, delay) {
			return nil
		}
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		metrics.ObserveReconnect("ok")
		if err := c.emit(ctx, progress.Reconnected{Attempts: attempt}); err != nil {
			_ = conn.Close()
			return c.stopped(ctx, err)
		}
		if err := c.consume(ctx, conn); err != nil {
			return c.stopped(ctx, err)
		}
		b.Reset()
		attempt = 0
	}
}

// stopped maps a delivery failure onto Run's result: cancellation is a clean
// exit, anything else is reported.
func (c *Client) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("deliver channel event: %w", err)
}

func (c *Client) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialDelay
	exp.MaxInterval = c.cfg.MaxDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithMaxRetries(exp, uint64(c.cfg.MaxReconnectAttempts))
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial event channel: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial event channel: %w", err)
	}
	c.logger.Info("event channel connected", zap.String("url", c.url))
	return conn, nil
}

// consume reads frames until the connection drops and delivers the
// disconnect. A non-nil error means the caller must stop.
func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("event channel closed", zap.Error(err))
			return c.emit(ctx, progress.Disconnected{Reason: err.Error()})
		}
		evt, ok := c.decode(msgType, data)
		if !ok {
			continue
		}
		if err := c.sink.Deliver(ctx, evt); err != nil {
			return err
		}
	}
}

func (c *Client) decode(msgType int, data []byte) (progress.Event, bool) {
	var (
		frame Frame
		err   error
		codec string
	)
	switch msgType {
	case websocket.TextMessage:
		codec = CodecJSON
		frame, err = DecodeJSON(data)
	case websocket.BinaryMessage:
		codec = CodecMsgpack
		frame, err = DecodeMsgpack(data)
	default:
		return progress.Event{}, false
	}
	ts := c.clock.Now()
	if err != nil {
		c.logger.Warn("undecodable event frame", zap.String("codec", codec), zap.Error(err))
		metrics.ObserveFrame(codec, string(progress.KindUnknown))
		return progress.Event{
			TS:          ts,
			Payload:     progress.Unknown{Name: codec + " frame"},
			Diagnostics: []string{err.Error()},
		}, true
	}
	evt := ToEvent(ts, frame)
	metrics.ObserveFrame(codec, string(evt.Kind()))
	return evt, true
}

func (c *Client) emit(ctx context.Context, p progress.Payload) error {
	return c.sink.Deliver(ctx, progress.NewEvent(c.clock.Now(), p))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
