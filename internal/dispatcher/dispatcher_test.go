package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *recordingLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func setup(t *testing.T) (*Dispatcher, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Close)
	return d, logger
}

// gate blocks a buffered handler until released and reports when the first
// event has been picked up.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) handler(Event) (any, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return nil, nil
}

func TestDispatch_Inline(t *testing.T) {
	d, _ := setup(t)
	d.Register("car:add", func(e Event) (any, error) {
		return e.Payload.(uint) * 2, nil
	})

	got, err := d.Dispatch(Event{Command: "car:add", Payload: uint(21)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != uint(42) {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestDispatch_Unknown(t *testing.T) {
	d, _ := setup(t)
	if _, err := d.Dispatch(Event{Command: "car:teleport"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if d.HasHandler("car:teleport") {
		t.Error("HasHandler reported an unregistered command")
	}
}

func TestDispatch_Timestamp(t *testing.T) {
	d, _ := setup(t)
	var got time.Time
	d.Register("car:add", func(e Event) (any, error) {
		got = e.Timestamp
		return nil, nil
	})

	before := time.Now()
	_, _ = d.Dispatch(Event{Command: "car:add"})
	if got.Before(before) {
		t.Errorf("expected timestamp at or after %v, got %v", before, got)
	}

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, _ = d.Dispatch(Event{Command: "car:add", Timestamp: fixed})
	if !got.Equal(fixed) {
		t.Errorf("expected %v to be kept, got %v", fixed, got)
	}
}

func TestBuffered_ReturnsQueuedAndDrainsOnClose(t *testing.T) {
	logger := &recordingLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatal(err)
	}

	var handled atomic.Int32
	d.Register("car:sample", func(Event) (any, error) {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil, nil
	}, Buffered(64))

	for i := range 25 {
		res, err := d.Dispatch(Event{Command: "car:sample", Payload: i})
		if err != nil || res != Queued {
			t.Fatalf("dispatch %d: result %v, error %v", i, res, err)
		}
	}
	d.Close()

	if n := handled.Load(); n != 25 {
		t.Errorf("expected 25 handled after Close, got %d", n)
	}
	if _, err := d.Dispatch(Event{Command: "car:sample"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	d.Close()
}

func TestBuffered_FullQueue(t *testing.T) {
	d, _ := setup(t)
	g := newGate()
	defer close(g.release)
	d.Register("car:sample", g.handler, Buffered(2))

	_, _ = d.Dispatch(Event{Command: "car:sample"})
	<-g.started
	for i := range 2 {
		if _, err := d.Dispatch(Event{Command: "car:sample"}); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}

	if _, err := d.Dispatch(Event{Command: "car:sample"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if n := d.QueueLen("car:sample"); n != 2 {
		t.Errorf("expected 2 waiting, got %d", n)
	}
	if n := d.QueueLen("car:add"); n != 0 {
		t.Errorf("expected 0 for unregistered command, got %d", n)
	}
}

func TestBuffered_Blocking(t *testing.T) {
	d, _ := setup(t)
	g := newGate()
	d.Register("car:event", g.handler, Buffered(1), Blocking())

	_, _ = d.Dispatch(Event{Command: "car:event"})
	<-g.started
	_, _ = d.Dispatch(Event{Command: "car:event"})

	returned := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(Event{Command: "car:event"})
		returned <- err
	}()

	select {
	case err := <-returned:
		t.Fatalf("blocking dispatch returned early with %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(g.release)
	select {
	case err := <-returned:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocking dispatch never returned")
	}
}

func TestLogged(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		err        error
		wantDebug  int
		wantErrors int
	}{
		{"inline ok", []Option{Logged()}, nil, 2, 0},
		{"inline failure", []Option{Logged()}, errors.New("no such car"), 1, 1},
		{"buffered failure", []Option{Buffered(4), Logged()}, errors.New("no such car"), 1, 1},
		{"buffered failure unlogged", []Option{Buffered(4)}, errors.New("no such car"), 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			d, err := New(logger)
			if err != nil {
				t.Fatal(err)
			}
			d.Register("car:event", func(Event) (any, error) { return nil, tt.err }, tt.opts...)

			_, _ = d.Dispatch(Event{Command: "car:event", Payload: "skid"})
			d.Close()

			if n := logger.count("DEBUG"); n != tt.wantDebug {
				t.Errorf("expected %d debug lines, got %d", tt.wantDebug, n)
			}
			if n := logger.count("ERROR"); n != tt.wantErrors {
				t.Errorf("expected %d error lines, got %d", tt.wantErrors, n)
			}
		})
	}
}

func TestRegister_ReplacesBufferedRoute(t *testing.T) {
	d, _ := setup(t)

	var first, second atomic.Int32
	d.Register("car:sample", func(Event) (any, error) { first.Add(1); return nil, nil }, Buffered(8))
	_, _ = d.Dispatch(Event{Command: "car:sample"})
	d.Register("car:sample", func(Event) (any, error) { second.Add(1); return nil, nil }, Buffered(8))
	_, _ = d.Dispatch(Event{Command: "car:sample"})
	d.Close()

	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("expected one event per handler, got %d and %d", first.Load(), second.Load())
	}
}
