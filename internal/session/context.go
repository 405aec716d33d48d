package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/google/uuid"
)

// New returns a session starting now with a fresh ID.
func New(name, track string, tickRate float64) core.Session {
	return core.Session{
		ID:        uuid.New(),
		Name:      name,
		Track:     track,
		StartTime: time.Now().UTC(),
		TickRate:  tickRate,
	}
}

// Context holds the running session and the current tick
type Context struct {
	mu      sync.RWMutex
	Session *core.Session
	tick    atomic.Uint64
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Session: &core.Session{Name: "No session started"},
	}
}

// GetSession returns a copy of the current session
func (sc *Context) GetSession() core.Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return *sc.Session
}

// Active reports whether a session has been started
func (sc *Context) Active() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.Session.ID != uuid.Nil
}

// SetSession replaces the current session and resets the tick
func (sc *Context) SetSession(s core.Session) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.Session = &s
	sc.tick.Store(0)
}

// SetTick records the last completed tick
func (sc *Context) SetTick(tick uint64) {
	sc.tick.Store(tick)
}

// Tick returns the last completed tick
func (sc *Context) Tick() uint64 {
	return sc.tick.Load()
}

// Attrs returns the log attributes of the running session. It matches
// logging.ContextProvider.
func (sc *Context) Attrs() []slog.Attr {
	if !sc.Active() {
		return nil
	}
	s := sc.GetSession()
	return []slog.Attr{
		slog.String("session", s.ID.String()),
		slog.Uint64("tick", sc.Tick()),
	}
}
