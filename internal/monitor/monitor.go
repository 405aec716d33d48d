package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/vehicledyn/internal/dispatcher"
	"github.com/OCAP2/vehicledyn/internal/logging"
	"github.com/OCAP2/vehicledyn/internal/session"
	"github.com/OCAP2/vehicledyn/internal/worker"
)

// StatusFile is written to OutputDir on every interval.
const StatusFile = "status.json"

// DropCounter reports samples the race loop could not dispatch.
type DropCounter interface {
	Dropped() uint64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager     *logging.SlogManager
	SessionContext *session.Context
	WorkerManager  *worker.Manager
	Dispatcher     *dispatcher.Dispatcher
	Race           DropCounter
	OutputDir      string
	Interval       time.Duration
}

// Status is one snapshot of the running session
type Status struct {
	Time           time.Time      `json:"time"`
	Session        string         `json:"session"`
	Tick           uint64         `json:"tick"`
	Cars           int            `json:"cars"`
	Samples        int            `json:"samples"`
	Events         int            `json:"events"`
	Queues         map[string]int `json:"queues"`
	DroppedSamples uint64         `json:"droppedSamples"` // full dispatcher queue
	BackendDropped uint64         `json:"backendDropped"` // full backend write queue
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current program status
func (s *Service) GetStatus() Status {
	st := Status{
		Time:   time.Now(),
		Queues: make(map[string]int),
	}
	if sc := s.deps.SessionContext; sc != nil {
		st.Session = sc.GetSession().ID.String()
		st.Tick = sc.Tick()
	}
	if wm := s.deps.WorkerManager; wm != nil {
		st.Cars = wm.Cars().Len()
		st.Samples = wm.Samples()
		st.Events = wm.Events()
		st.BackendDropped = wm.Dropped()
	}
	if d := s.deps.Dispatcher; d != nil {
		for _, cmd := range []string{worker.CommandSample, worker.CommandEvent} {
			st.Queues[cmd] = d.QueueLen(cmd)
		}
	}
	if s.deps.Race != nil {
		st.DroppedSamples = s.deps.Race.Dropped()
	}
	return st
}

// WriteStatus writes the snapshot to the status file.
func (s *Service) WriteStatus(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.MkdirAll(s.deps.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	path := filepath.Join(s.deps.OutputDir, StatusFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.deps.SessionContext != nil && !s.deps.SessionContext.Active() {
					continue
				}

				st := s.GetStatus()
				if err := s.WriteStatus(st); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
				logger.Info("Status",
					"tick", st.Tick,
					"cars", st.Cars,
					"samples", st.Samples,
					"sampleQueue", st.Queues[worker.CommandSample],
					"droppedSamples", st.DroppedSamples,
					"backendDropped", st.BackendDropped)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
