package storage_test

import (
	"testing"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/internal/influx"
	"github.com/OCAP2/vehicledyn/internal/storage"
	gormstorage "github.com/OCAP2/vehicledyn/internal/storage/gorm"
	"github.com/OCAP2/vehicledyn/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/vehicledyn/internal/storage/sqlite"
	"github.com/OCAP2/vehicledyn/internal/storage/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend    = (*memory.Backend)(nil)
	_ storage.Uploadable = (*memory.Backend)(nil)
	_ storage.Backend    = (*gormstorage.Backend)(nil)
	_ storage.Dropper    = (*gormstorage.Backend)(nil)
	_ storage.Backend    = (*sqlitestorage.Backend)(nil)
	_ storage.Dropper    = (*sqlitestorage.Backend)(nil)
	_ storage.Backend    = (*websocket.Backend)(nil)
	_ storage.Dropper    = (*websocket.Backend)(nil)
	_ storage.Backend    = (*influx.Backend)(nil)
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.StorageConfig
		check      func(t *testing.T, b storage.Backend)
		uploadable bool
	}{
		{
			name: "memory",
			cfg:  config.StorageConfig{Type: storage.TypeMemory},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &memory.Backend{}, b)
			},
			uploadable: true,
		},
		{
			name: "empty defaults to memory",
			cfg:  config.StorageConfig{},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &memory.Backend{}, b)
			},
			uploadable: true,
		},
		{
			name: "sqlite",
			cfg:  config.StorageConfig{Type: storage.TypeSQLite, SampleLimit: 10},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &sqlitestorage.Backend{}, b)
			},
		},
		{
			name: "postgres unreachable falls back to sqlite",
			cfg: config.StorageConfig{
				Type:     storage.TypePostgres,
				Postgres: config.PostgresConfig{Host: "127.0.0.1", Port: "1", Username: "u", Database: "d"},
			},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &sqlitestorage.Backend{}, b)
			},
		},
		{
			name: "websocket",
			cfg: config.StorageConfig{
				Type:      storage.TypeWebSocket,
				WebSocket: config.WebSocketConfig{URL: "ws://127.0.0.1:1", SampleEvery: 2},
			},
			check: func(t *testing.T, b storage.Backend) {
				assert.IsType(t, &websocket.Backend{}, b)
			},
		},
		{
			name: "influx",
			cfg:  config.StorageConfig{Type: storage.TypeInflux, Influx: config.InfluxConfig{Bucket: "telemetry"}},
			check: func(t *testing.T, b storage.Backend) {
				ib, ok := b.(*influx.Backend)
				require.True(t, ok)
				assert.Equal(t, []string{"telemetry", influx.PerformanceBucket}, ib.Manager().BucketNames)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := storage.NewBackend(tt.cfg, storage.Dependencies{})
			require.NoError(t, err)
			require.NotNil(t, b)
			tt.check(t, b)

			_, ok := b.(storage.Uploadable)
			assert.Equal(t, tt.uploadable, ok)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "cassette"}, storage.Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type: cassette")
}

func TestNewBackend_InfluxBackupPath(t *testing.T) {
	dir := t.TempDir()
	b, err := storage.NewBackend(config.StorageConfig{Type: storage.TypeInflux}, storage.Dependencies{BackupDir: dir})
	require.NoError(t, err)
	ib := b.(*influx.Backend)
	assert.Contains(t, ib.Manager().BackupPath, dir)
}
