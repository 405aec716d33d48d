package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

const (
	outboxSize   = 10_000
	ackBuffer    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
	dropLogEvery = 1000
)

// connection owns one socket at a time. A single supervisor goroutine
// writes to it and redials when it breaks.
type connection struct {
	target string
	logger *slog.Logger

	outbox chan []byte
	acks   chan streaming.AckMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	replay   [][]byte // start_session then each add_car
	closeErr error    // from closing the last socket

	dropped atomic.Uint64
}

func newConnection(logger *slog.Logger) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// dial opens the first socket and hands it to the supervisor.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	c.target = u.String()

	conn, err := c.open()
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go c.supervise(conn)
	return nil
}

func (c *connection) open() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.DialContext(c.ctx, c.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) supervise(conn *ws.Conn) {
	defer c.wg.Done()
	for conn != nil {
		err := c.serve(conn)
		if c.ctx.Err() != nil {
			c.mu.Lock()
			c.closeErr = err
			c.mu.Unlock()
			return
		}
		c.logger.Warn("WebSocket connection lost", "error", err)
		conn = c.redial()
	}
}

// serve pumps the outbox into conn until a read or write fails or the
// connection is closed. On close it sends a normal-closure frame.
func (c *connection) serve(conn *ws.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readAcks(conn) }()

	for {
		select {
		case <-c.ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err := conn.Close()
			<-readErr
			return err
		case err := <-readErr:
			_ = conn.Close()
			return err
		case data := <-c.outbox:
			if err := write(conn, data); err != nil {
				_ = conn.Close()
				<-readErr
				return err
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readAcks forwards server acks until the socket fails.
func (c *connection) readAcks(conn *ws.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Ignoring server message", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial retries with exponential backoff and replays the session header on
// the new socket. It returns nil once attempts run out or on close.
func (c *connection) redial() *ws.Conn {
	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)

		conn, err := c.open()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		replay := append([][]byte(nil), c.replay...)
		c.mu.Unlock()

		if err := replayAll(conn, replay); err != nil {
			c.logger.Warn("Failed to replay session after reconnect", "error", err)
			_ = conn.Close()
			continue
		}
		c.logger.Info("WebSocket reconnected", "attempt", attempt, "replayed", len(replay))
		return conn
	}
	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
	return nil
}

func replayAll(conn *ws.Conn, msgs [][]byte) error {
	for _, m := range msgs {
		if err := write(conn, m); err != nil {
			return err
		}
	}
	return nil
}

// remember keeps data for replay after a reconnect; reset starts a new list.
func (c *connection) remember(data []byte, reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reset {
		c.replay = c.replay[:0]
	}
	c.replay = append(c.replay, data)
}

func (c *connection) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replay = nil
}

// send queues data without blocking. A full outbox drops it.
func (c *connection) send(data []byte) {
	select {
	case c.outbox <- data:
	default:
		if n := c.dropped.Add(1); n%dropLogEvery == 1 {
			c.logger.Warn("WebSocket outbox full, dropping messages", "dropped", n)
		}
	}
}

// sendAndWait queues data and waits for the matching ack.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.ctx.Done():
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close stops the supervisor and waits for the socket to shut down.
func (c *connection) close() error {
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.closeErr
	c.closeErr = nil
	return err
}
