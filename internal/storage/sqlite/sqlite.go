// Package sqlitestorage records into an in-memory SQLite database and dumps
// snapshots of it to disk with VACUUM INTO. Writes go through the GORM
// backend; this package only owns the snapshot schedule.
package sqlitestorage

import (
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/vehicledyn/internal/database"
	"github.com/OCAP2/vehicledyn/internal/logging"
	gormstorage "github.com/OCAP2/vehicledyn/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration // 0 dumps only when a session ends
	DumpPath     string
	SampleLimit  int
}

// Backend is a GORM backend with periodic snapshots.
type Backend struct {
	*gormstorage.Backend
	db  *gorm.DB
	cfg Config
	log *logging.SlogManager

	stop     chan struct{}
	stopOnce sync.Once
	loop     sync.WaitGroup
}

// New opens a private in-memory database and wraps it.
func New(cfg Config, logManager *logging.SlogManager) (*Backend, error) {
	db, err := database.GetSqliteDB("")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	return Wrap(db, cfg, logManager), nil
}

// Wrap records into an already open SQLite database, such as the fallback
// returned by database.Open.
func Wrap(db *gorm.DB, cfg Config, logManager *logging.SlogManager) *Backend {
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:          db,
			LogManager:  logManager,
			SampleLimit: cfg.SampleLimit,
		}),
		db:   db,
		cfg:  cfg,
		log:  logManager,
		stop: make(chan struct{}),
	}
}

// Init migrates the schema and starts the snapshot loop when an interval and
// path are configured.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.loop.Add(1)
		go b.snapshotLoop()
	}
	return nil
}

// EndSession closes the session and writes a final snapshot so the file on
// disk holds the complete run.
func (b *Backend) EndSession() error {
	if err := b.Backend.EndSession(); err != nil {
		return err
	}
	return b.snapshot()
}

// Close stops the snapshot loop and the embedded writer.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.loop.Wait()
	return b.Backend.Close()
}

func (b *Backend) snapshot() error {
	if b.cfg.DumpPath == "" {
		return nil
	}
	start := time.Now()
	if err := database.VacuumInto(b.db, b.cfg.DumpPath); err != nil {
		b.log.WriteLog("sqlite:snapshot", err.Error(), "ERROR")
		return err
	}
	b.log.WriteLog("sqlite:snapshot", fmt.Sprintf("Wrote %s in %s", b.cfg.DumpPath, time.Since(start)), "DEBUG")
	return nil
}

func (b *Backend) snapshotLoop() {
	defer b.loop.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.Backend.Flush()
			_ = b.snapshot()
		}
	}
}
