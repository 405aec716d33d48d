package websocket

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/OCAP2/vehicledyn/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL         string
	Secret      string
	SampleEvery int // forward every Nth sample of each car; <= 1 forwards all
}

// Backend streams live telemetry to the debug overlay over WebSocket.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config

	mu      sync.Mutex
	session *core.Session
	cars    []core.CarInfo

	lastTick    atomic.Uint64
	lastSimTime atomic.Int64
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("backend", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped returns how many messages never reached the socket.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return data, nil
}

// StartSession announces the run and waits for the server ack.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.session = s
	cars := append([]core.CarInfo(nil), b.cars...)
	b.mu.Unlock()
	b.lastTick.Store(0)
	b.lastSimTime.Store(0)

	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s, Cars: cars})
	if err != nil {
		return err
	}
	b.conn.remember(data, true)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession closes the run on the server and waits for the ack.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	s := b.session
	b.session = nil
	b.cars = nil
	b.mu.Unlock()

	payload := streaming.EndSessionPayload{
		Ticks:    b.lastTick.Load(),
		Duration: time.Duration(b.lastSimTime.Load()).Seconds(),
	}
	if s != nil {
		payload.SessionID = s.ID.String()
	}
	data, err := marshalEnvelope(streaming.TypeEndSession, payload)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)
	b.conn.forget()
	return err
}

// AddCar announces a car. The message is replayed after a reconnect.
func (b *Backend) AddCar(c *core.CarInfo) error {
	b.mu.Lock()
	b.cars = append(b.cars, *c)
	b.mu.Unlock()

	data, err := marshalEnvelope(streaming.TypeAddCar, c)
	if err != nil {
		return err
	}
	b.conn.remember(data, false)
	b.conn.send(data)
	return nil
}

// RecordSample forwards a decimated sample (fire-and-forget).
func (b *Backend) RecordSample(s *core.Sample) error {
	b.lastTick.Store(s.Tick)
	b.lastSimTime.Store(int64(s.SimTime))
	if n := uint64(b.cfg.SampleEvery); n > 1 && s.Tick%n != 0 {
		return nil
	}
	data, err := marshalEnvelope(streaming.TypeSample, streaming.NewSamplePayload(s))
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// RecordEvent forwards a car event (fire-and-forget).
func (b *Backend) RecordEvent(e *core.CarEvent) error {
	data, err := marshalEnvelope(streaming.TypeCarEvent, e)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}
