package signaling

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wingskh/live-stream-tester/internal/core/ports"
	"github.com/wingskh/live-stream-tester/pkg/retry"
)

// WebSocketDialer opens signaling channels over websocket, retrying transient
// dial failures with exponential backoff.
type WebSocketDialer struct {
	dialer       *websocket.Dialer
	retry        retry.Config
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewWebSocketDialer builds a dialer. attempts bounds the dial retries,
// pingInterval drives the per-channel keepalive loop and writeTimeout bounds
// every outgoing write.
func NewWebSocketDialer(attempts int, pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) *WebSocketDialer {
	cfg := retry.DefaultConfig()
	if attempts > 0 {
		cfg.MaxAttempts = attempts
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		retry:        cfg,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Dial implements ports.SignalDialer. http(s) URLs are rewritten to their
// websocket equivalents.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (ports.SignalChannel, error) {
	wsURL, err := toWebSocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, err := retry.DoWithResult(ctx, d.retry, func() (*websocket.Conn, error) {
		conn, _, err := d.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			d.logger.Warnw("signaling dial attempt failed", "url", wsURL, "error", err)
		}
		return conn, err
	})
	if err != nil {
		return nil, fmt.Errorf("signaling dial failed: %w", err)
	}

	d.logger.Infow("signaling channel opened", "url", wsURL)
	return newWSChannel(conn, d.pingInterval, d.writeTimeout), nil
}

func toWebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid signaling URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported signaling scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// wsChannel adapts a websocket connection to ports.SignalChannel. Writes are
// serialized; gorilla permits one concurrent writer only.
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	done         chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSChannel(conn *websocket.Conn, pingInterval, writeTimeout time.Duration) *wsChannel {
	c := &wsChannel{
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	if pingInterval > 0 {
		go c.pingLoop(pingInterval)
	}
	return c
}

// pingLoop keeps the channel alive across signaling lulls. It stops on the
// first failed ping; the reader sees the broken connection on its own.
func (c *wsChannel) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *wsChannel) Send(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsChannel) Recv(ctx context.Context) ([]byte, error) {
	if d, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(d); err != nil {
			return nil, err
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
			strings.Contains(err.Error(), "use of closed network connection") {
			return nil, fmt.Errorf("signaling channel closed: %w", err)
		}
		return nil, err
	}
	return payload, nil
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
