// Package database opens the SQL stores that sessions are recorded into.
package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Version is written to the sim_infos table.
const Version = "1.0.0"

// Conn is an open recording database.
type Conn struct {
	DB *gorm.DB
	// Local is set when postgres did not answer and DB is a private
	// in-memory SQLite database instead.
	Local bool
}

// Open connects to postgres, falling back to in-memory SQLite when the
// server is unreachable.
func Open(cfg config.PostgresConfig, log zerolog.Logger) (*Conn, error) {
	db, err := openPostgres(cfg)
	if err == nil {
		log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connected to database")
		return &Conn{DB: db}, nil
	}

	log.Error().Err(err).Msg("Failed to connect to Postgres DB, falling back to SQLite")
	db, err = GetSqliteDB("")
	if err != nil {
		return nil, fmt.Errorf("failed to open local SQLite DB: %w", err)
	}
	log.Info().Msg("Using local SQLite DB in memory")
	return &Conn{DB: db, Local: true}, nil
}

func openPostgres(cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := GetPostgresDB(cfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	return db, nil
}

// Setup migrates every table in model.DatabaseModels and creates the
// sim_infos row if it doesn't exist.
func Setup(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var count int64
	if err := db.Model(&model.SimInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read sim_infos: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := db.Create(&model.SimInfo{Name: "vehiclesim", Version: Version}).Error; err != nil {
		return fmt.Errorf("failed to create sim_infos entry: %w", err)
	}
	return nil
}

// PostgresDSN renders cfg as a connection URL.
func PostgresDSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// GetPostgresDB opens the postgres database described by cfg.
func GetPostgresDB(cfg config.PostgresConfig) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// GetSqliteDB opens a SQLite database at path. An empty path creates a
// private in-memory database that lives as long as the returned handle.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// one connection keeps the in-memory database alive and serializes writers
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// VacuumInto writes a consistent snapshot of db to path, replacing any
// existing file.
func VacuumInto(db *gorm.DB, path string) error {
	if path == "" {
		return errors.New("sqlite dump path not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating dump directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing previous dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("error dumping database to %s: %w", path, err)
	}
	return nil
}
