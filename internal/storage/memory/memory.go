package memory

import (
	"sort"
	"sync"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/samber/lo"
)

// CarRecord groups a car with all its time-series data
type CarRecord struct {
	Car     core.CarInfo
	Samples []core.Sample
	Events  []core.CarEvent
}

// Backend stores session data in memory and exports it to JSON on
// EndSession.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	cars   map[uint]*CarRecord
	orphan []core.CarEvent // events for cars that were never added
	last   core.Sample

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:  cfg,
		cars: make(map[uint]*CarRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops any previous data.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.cars = make(map[uint]*CarRecord)
	b.orphan = nil
	b.last = core.Sample{}
	b.lastExportPath = ""
	return nil
}

// EndSession exports the recorded session.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// AddCar registers a car. Re-adding a known ID replaces its info and keeps
// the samples already recorded.
func (b *Backend) AddCar(c *core.CarInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.cars[c.ID]; ok {
		rec.Car = *c
		return nil
	}
	b.cars[c.ID] = &CarRecord{
		Car:     *c,
		Samples: make([]core.Sample, 0, 1024),
	}
	return nil
}

// RecordSample appends a sample to its car. Samples of unknown cars are
// ignored.
func (b *Backend) RecordSample(s *core.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.cars[s.CarID]
	if !ok {
		return nil
	}
	rec.Samples = append(rec.Samples, *s)
	if s.Tick > b.last.Tick {
		b.last = *s
	}
	return nil
}

// RecordEvent appends an event to its car.
func (b *Backend) RecordEvent(e *core.CarEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.cars[e.CarID]; ok {
		rec.Events = append(rec.Events, *e)
		return nil
	}
	b.orphan = append(b.orphan, *e)
	return nil
}

// Car returns a copy of the record of one car.
func (b *Backend) Car(id uint) (CarRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.cars[id]
	if !ok {
		return CarRecord{}, false
	}
	return CarRecord{
		Car:     rec.Car,
		Samples: append([]core.Sample(nil), rec.Samples...),
		Events:  append([]core.CarEvent(nil), rec.Events...),
	}, true
}

// Records returns every car record ordered by car ID.
func (b *Backend) Records() []*CarRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedLocked()
}

func (b *Backend) sortedLocked() []*CarRecord {
	records := lo.Values(b.cars)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Car.ID < records[j].Car.ID
	})
	return records
}

// GetExportedFilePath returns the path of the last exported file
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata about the last export
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.session == nil {
		return core.UploadMetadata{}
	}
	return core.UploadMetadata{
		SessionID:   b.session.ID.String(),
		TrackName:   b.session.Track,
		SessionName: b.session.Name,
		Scenario:    b.session.Scenario,
		Duration:    b.last.SimTime.Seconds(),
		TickRate:    b.session.TickRate,
		Cars:        len(b.cars),
		Tag:         b.session.Tag,
	}
}
