package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/database"
	"github.com/OCAP2/vehicledyn/internal/influx"
	"github.com/OCAP2/vehicledyn/internal/logging"
	gormstorage "github.com/OCAP2/vehicledyn/internal/storage/gorm"
	"github.com/OCAP2/vehicledyn/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/vehicledyn/internal/storage/sqlite"
	"github.com/OCAP2/vehicledyn/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// Storage types accepted by NewBackend.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
	TypeInflux    = "influx"
)

// Dependencies are the shared services handed to backends.
type Dependencies struct {
	LogManager *logging.SlogManager
	Logger     *slog.Logger
	ZeroLog    zerolog.Logger // database and influx managers
	BackupDir  string         // influx line-protocol backups
}

// NewBackend creates a storage backend based on configuration. The returned
// backend is not initialized.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Logger == nil {
		deps.Logger = deps.LogManager.Logger()
	}

	switch cfg.Type {
	case TypeMemory, "":
		return memory.New(cfg.Memory), nil
	case TypeSQLite:
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
			SampleLimit:  cfg.SampleLimit,
		}, deps.LogManager)
	case TypePostgres:
		conn, err := database.Open(cfg.Postgres, deps.ZeroLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if conn.Local {
			// unreachable server: keep the run in SQLite snapshots instead
			return sqlitestorage.Wrap(conn.DB, sqlitestorage.Config{
				DumpInterval: cfg.SQLite.DumpInterval,
				DumpPath:     cfg.SQLite.DumpPath,
				SampleLimit:  cfg.SampleLimit,
			}, deps.LogManager), nil
		}
		return gormstorage.New(gormstorage.Dependencies{
			DB:          conn.DB,
			LogManager:  deps.LogManager,
			SampleLimit: cfg.SampleLimit,
		}), nil
	case TypeWebSocket:
		return websocket.New(websocket.Config{
			URL:         cfg.WebSocket.URL,
			Secret:      cfg.WebSocket.Secret,
			SampleEvery: cfg.WebSocket.SampleEvery,
		}, deps.Logger), nil
	case TypeInflux:
		ic := cfg.Influx
		ic.Enabled = true
		backup := ""
		if deps.BackupDir != "" {
			backup = filepath.Join(deps.BackupDir, "influx_backup.lp.gz")
		}
		return influx.NewBackend(influx.NewManager(ic, deps.ZeroLog, backup)), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
