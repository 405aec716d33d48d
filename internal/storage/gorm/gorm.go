// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. It serves both the
// postgres and the sqlite storage types.
package gormstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/vehicledyn/internal/cache"
	"github.com/OCAP2/vehicledyn/internal/database"
	"github.com/OCAP2/vehicledyn/internal/geo"
	"github.com/OCAP2/vehicledyn/internal/logging"
	"github.com/OCAP2/vehicledyn/internal/model"
	"github.com/OCAP2/vehicledyn/internal/model/convert"
	"github.com/OCAP2/vehicledyn/internal/queue"
	"github.com/OCAP2/vehicledyn/pkg/core"

	"gorm.io/gorm"
)

// ErrNoDatabase is returned by Init when no connection was injected.
var ErrNoDatabase = errors.New("no database connection")

const defaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	SampleLimit   int           // bound of the sample queue; older samples are dropped
	FlushInterval time.Duration // writer period, 2s when zero
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Samples *queue.Queue[model.Sample]
	Events  *queue.Queue[model.CarEvent]
}

func newQueues(sampleLimit int) *queues {
	return &queues{
		Samples: queue.NewBounded[model.Sample](sampleLimit),
		Events:  queue.New[model.CarEvent](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues
	rows   *cache.RowCache

	sessionID atomic.Uint64
	lastTick  atomic.Uint64
	origin    atomic.Pointer[geo.Origin]

	flushMu  sync.Mutex
	stopChan chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	b := &Backend{
		deps:   deps,
		queues: newQueues(deps.SampleLimit),
		rows:   cache.NewRowCache(),
	}
	identity, _ := geo.NewOrigin(core.GeoOrigin{})
	b.origin.Store(&identity)
	return b
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}

	b.deps.LogManager.WriteLog("gorm:Init", "Migrating schema", "INFO")
	if err := database.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.LogManager.WriteLog("gorm:Init", "Database setup complete", "INFO")

	b.stopChan = make(chan struct{})
	b.stopped = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		<-b.stopped
	})
	b.Flush()
	return nil
}

// StartSession inserts the session row. Samples recorded afterwards are
// stamped with its ID.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}

	origin, err := geo.NewOrigin(s.Origin)
	if err != nil {
		return fmt.Errorf("session origin: %w", err)
	}

	row := convert.CoreToSession(*s, origin)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		b.deps.LogManager.WriteLog("gorm:StartSession", fmt.Sprintf("Failed to insert session: %v", err), "ERROR")
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	b.rows.Reset()
	b.origin.Store(&origin)
	b.lastTick.Store(0)
	b.sessionID.Store(uint64(row.ID))
	return nil
}

// SessionID returns the row ID of the running session, 0 if none.
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// EndSession flushes the queues and closes the session row.
func (b *Backend) EndSession() error {
	id := b.SessionID()
	if id == 0 {
		return nil
	}
	b.Flush()

	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"end_time": sql.NullTime{Time: time.Now(), Valid: true},
		"ticks":    b.lastTick.Load(),
	}).Error
	b.sessionID.Store(0)
	if err != nil {
		return fmt.Errorf("failed to close session %d: %w", id, err)
	}
	return nil
}

// AddCar inserts the car synchronously since cars are low-volume. Adding a
// car again within a session updates its row.
func (b *Backend) AddCar(c *core.CarInfo) error {
	sessionID := b.SessionID()
	if sessionID == 0 {
		return nil
	}

	row := convert.CoreToCar(*c, *b.origin.Load())
	row.SessionID = sessionID
	if rowID, ok := b.rows.Get(c.ID); ok {
		row.ID = rowID
		if err := b.deps.DB.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to update car %d: %w", c.ID, err)
		}
		return nil
	}
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert car %d: %w", c.ID, err)
	}
	b.rows.Set(c.ID, row.ID)
	return nil
}

// RecordSample converts and queues a sample.
func (b *Backend) RecordSample(s *core.Sample) error {
	b.queues.Samples.Push(convert.CoreToSample(*s, *b.origin.Load()))
	if s.Tick > b.lastTick.Load() {
		b.lastTick.Store(s.Tick)
	}
	return nil
}

// RecordEvent converts and queues a car event.
func (b *Backend) RecordEvent(e *core.CarEvent) error {
	b.queues.Events.Push(convert.CoreToCarEvent(*e))
	return nil
}

// QueueLen returns the number of pending samples.
func (b *Backend) QueueLen() int {
	return b.queues.Samples.Len()
}

// Dropped returns how many samples the bounded queue discarded.
func (b *Backend) Dropped() uint64 {
	return b.queues.Samples.Dropped()
}

// Flush writes every queued row now.
func (b *Backend) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.deps.DB == nil {
		return
	}
	log := b.deps.LogManager.WriteLog
	sessionID := b.SessionID()
	if sessionID == 0 {
		return
	}

	writeQueue(b.deps.DB, b.queues.Samples, "samples", log, func(items []model.Sample) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}, nil)
	writeQueue(b.deps.DB, b.queues.Events, "car events", log, func(items []model.CarEvent) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	}, nil)
}

// writerLoop periodically drains the queues into the DB.
func (b *Backend) writerLoop() {
	defer close(b.stopped)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

// writeQueue writes all items from a queue to the database in a transaction.
// A failed batch goes back to the front of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string), prepare func([]T), onSuccess func([]T)) {
	items := q.Drain()
	if len(items) == 0 {
		return
	}

	tx := db.Begin()
	if prepare != nil {
		prepare(items)
	}
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items)
		return
	}

	tx.Commit()
	if onSuccess != nil {
		onSuccess(items)
	}
}
