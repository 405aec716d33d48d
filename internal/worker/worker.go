package worker

import (
	"errors"

	"github.com/OCAP2/vehicledyn/internal/cache"
	"github.com/OCAP2/vehicledyn/internal/logging"
	"github.com/OCAP2/vehicledyn/internal/storage"
)

// ErrTooEarlyForSampleAssociation is returned when a sample arrives before its car is registered
var ErrTooEarlyForSampleAssociation = errors.New("too early for sample association")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	CarCache   *cache.CarCache
	LogManager *logging.SlogManager
}

// Manager moves dispatched race records into the storage backend
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	samples cache.Counter
	events  cache.Counter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.CarCache == nil {
		deps.CarCache = cache.NewCarCache()
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Backend returns the storage backend the manager writes to.
func (m *Manager) Backend() storage.Backend {
	return m.backend
}

// Cars returns the registered cars ordered by ID.
func (m *Manager) Cars() *cache.CarCache {
	return m.deps.CarCache
}

// Samples returns the number of samples handed to the backend.
func (m *Manager) Samples() int {
	return m.samples.Value()
}

// Events returns the number of car events handed to the backend.
func (m *Manager) Events() int {
	return m.events.Value()
}

// Dropped returns the records the backend discarded. Backends that never
// drop report 0.
func (m *Manager) Dropped() uint64 {
	if d, ok := m.backend.(storage.Dropper); ok {
		return d.Dropped()
	}
	return 0
}

// Reset forgets the cars of the previous session.
func (m *Manager) Reset() {
	m.deps.CarCache.Reset()
	m.samples.Set(0)
	m.events.Set(0)
}
