// Package dispatcher routes recording events from the race loop to their
// handlers, either inline or through a per-command queue drained by its own
// goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

// Queued is the result of dispatching to a buffered command.
const Queued = "queued"

// Event is one record produced by the race loop, such as a telemetry sample
// or a car event.
type Event struct {
	Command   string
	Payload   any
	Timestamp time.Time
}

type HandlerFunc func(Event) (any, error)

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a route at registration.
type Option func(*route)

// Buffered hands events to a queue of the given size and returns Queued
// immediately.
func Buffered(size int) Option {
	return func(r *route) { r.size = size }
}

// Blocking makes a full buffered queue wait for room instead of rejecting.
func Blocking() Option {
	return func(r *route) { r.block = true }
}

// Logged logs each event at debug level and failures at error level.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

type route struct {
	command string
	handle  HandlerFunc
	size    int
	block   bool
	logged  bool
	queue   chan Event // nil for inline routes
	attrs   metric.MeasurementOption
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics instruments

	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup
}

// New creates a Dispatcher. Metrics go to the global OTel meter.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger: logger,
		routes: make(map[string]*route),
	}
	in, err := newInstruments(d)
	if err != nil {
		return nil, err
	}
	d.metrics = in
	return d, nil
}

// Register installs h for command. Re-registering a buffered command drains
// the old queue in the background.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	r := &route{
		command: command,
		handle:  h,
		attrs:   metric.WithAttributes(commandAttr(command)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logged {
		r.handle = d.logged(command, r.handle)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.routes[command]; ok && old.queue != nil && !d.closed {
		close(old.queue)
	}
	if r.size > 0 {
		r.queue = make(chan Event, r.size)
		if !d.closed {
			d.workers.Add(1)
			go d.drain(r)
		}
	}
	d.routes[command] = r
}

// Dispatch routes an event to its handler. A zero timestamp is set to the
// current time.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	r, ok := d.routes[e.Command]
	if ok && r.queue != nil {
		defer d.mu.RUnlock()
		return d.enqueue(r, e)
	}
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return r.handle(e)
}

// enqueue runs under the read lock so Close cannot close the queue mid-send.
func (d *Dispatcher) enqueue(r *route, e Event) (any, error) {
	if d.closed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, r.command)
	}
	if r.block {
		r.queue <- e
		return Queued, nil
	}
	select {
	case r.queue <- e:
		return Queued, nil
	default:
		d.metrics.dropped.Add(context.Background(), 1, r.attrs)
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, r.command)
	}
}

func (d *Dispatcher) drain(r *route) {
	defer d.workers.Done()
	ctx := context.Background()
	for e := range r.queue {
		start := time.Now()
		_, err := r.handle(e)
		if err != nil && !r.logged {
			d.logger.Error("buffered handler failed", "command", r.command, "error", err)
		}
		d.metrics.handleMs.Record(ctx, float64(time.Since(start).Microseconds())/1000, r.attrs)
		d.metrics.processed.Add(ctx, 1, r.attrs)
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "payload", fmt.Sprintf("%T", e.Payload))
		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
			return result, err
		}
		d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		return result, nil
	}
}

// Close rejects further buffered events and waits until every queued event
// has been handled. Inline routes keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.queue != nil {
			close(r.queue)
		}
	}
	d.mu.Unlock()
	d.workers.Wait()
}

// QueueLen returns how many events wait for the command's handler.
func (d *Dispatcher) QueueLen(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if r, ok := d.routes[command]; ok {
		return len(r.queue)
	}
	return 0
}

func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[command]
	return ok
}
