package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/satoshigo/hunt/pkg/streaming"
)

const (
	relayQueueSize = 10_000
	maxReconnect   = 10
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// connection is the relay's outbound socket. One goroutine owns writes and
// redials after failures; envelopes queued meanwhile wait in queue.
type connection struct {
	log   *slog.Logger
	queue chan []byte
	stop  chan struct{}
	wg    sync.WaitGroup

	// backoff is the first redial delay, doubled per attempt.
	backoff time.Duration
	url     string

	mu     sync.Mutex
	ws     *ws.Conn
	closed bool

	dropped atomic.Uint64
	acked   atomic.Uint64
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		log:     logger,
		queue:   make(chan []byte, relayQueueSize),
		stop:    make(chan struct{}),
		backoff: time.Second,
	}
}

// relayURL adds the shared secret as a query parameter.
func relayURL(raw, secret string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// dial connects once and starts the writer. A failed first dial is returned
// to the caller; later failures are retried in the background.
func (c *connection) dial(raw, secret string) error {
	u, err := relayURL(raw, secret)
	if err != nil {
		return err
	}
	c.url = u

	conn, err := c.dialOnce(context.Background())
	if err != nil {
		return err
	}
	if !c.attach(conn) {
		return nil
	}
	c.wg.Add(1)
	go c.run(conn)
	return nil
}

func (c *connection) dialOnce(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("relay dial: %w", err)
	}
	return conn, nil
}

// attach makes conn current. It refuses, and closes conn, after close.
func (c *connection) attach(conn *ws.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return false
	}
	c.ws = conn
	return true
}

func (c *connection) detach(conn *ws.Conn) {
	c.mu.Lock()
	if c.ws == conn {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *connection) run(conn *ws.Conn) {
	defer c.wg.Done()
	for conn != nil {
		if !c.serve(conn) {
			return
		}
		c.detach(conn)
		conn = c.redial()
	}
}

// serve writes queued envelopes to conn and counts acks. It returns true
// when the socket broke and false on close.
func (c *connection) serve(conn *ws.Conn) bool {
	broken := make(chan struct{})
	go func() {
		defer close(broken)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ack streaming.AckMessage
			if json.Unmarshal(msg, &ack) == nil && ack.Type == streaming.TypeAck {
				c.acked.Add(1)
				continue
			}
			c.log.Debug("Relay sent a non-ack message", "raw", string(msg))
		}
	}()

	for {
		select {
		case <-c.stop:
			return false
		case <-broken:
			c.log.Warn("Relay connection lost")
			return true
		case data := <-c.queue:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				err = conn.WriteMessage(ws.TextMessage, data)
				if err == nil {
					continue
				}
				c.log.Warn("Relay write failed", "error", err)
			}
			return true
		}
	}
}

// redial retries with capped exponential backoff. It returns nil when the
// connection was closed or every attempt failed.
func (c *connection) redial() *ws.Conn {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := retry.NewExponential(c.backoff)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithMaxRetries(maxReconnect, b)

	var (
		conn    *ws.Conn
		attempt int
	)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		next, err := c.dialOnce(ctx)
		if err != nil {
			c.log.Warn("Relay redial failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		conn = next
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("Relay gave up reconnecting", "attempts", attempt, "error", err)
		}
		return nil
	}
	if !c.attach(conn) {
		return nil
	}
	c.log.Info("Relay reconnected", "attempts", attempt)
	return conn
}

// send queues data without blocking and reports whether it fit.
func (c *connection) send(data []byte) bool {
	select {
	case c.queue <- data:
		return true
	default:
		c.dropped.Add(1)
		c.log.Warn("Relay queue full, dropping envelope")
		return false
	}
}

// close says goodbye to the server and waits for the writer to stop.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	conn := c.ws
	c.ws = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}
