package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachable points at a closed port so Connect falls back to the backup file.
func unreachable(enabled bool) config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:  enabled,
		Host:     "127.0.0.1",
		Port:     "1",
		Protocol: "http",
		Org:      "vehiclesim",
		Bucket:   "telemetry",
	}
}

func readBackup(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestNewManager_Buckets(t *testing.T) {
	m := NewManager(unreachable(true), zerolog.Nop(), "")
	assert.Equal(t, []string{"telemetry", PerformanceBucket}, m.BucketNames)

	cfg := unreachable(true)
	cfg.Bucket = PerformanceBucket
	m = NewManager(cfg, zerolog.Nop(), "")
	assert.Equal(t, []string{PerformanceBucket}, m.BucketNames)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(unreachable(false), zerolog.Nop(), "")
	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "influx.enabled is false")
}

func TestConnect_UnreachableWithoutBackup(t *testing.T) {
	m := NewManager(unreachable(true), zerolog.Nop(), "")
	require.Error(t, m.Connect(context.Background()))
	require.NoError(t, m.Close())
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(unreachable(true), zerolog.Nop(), "")
	err := m.WritePoint("telemetry", SamplePoint(core.Session{}, "", &core.Sample{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup writer not available")
}

func TestBackend_WritesBackupLineProtocol(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx", "backup.lp.gz")
	b := NewBackend(NewManager(unreachable(true), zerolog.Nop(), backup))
	require.NoError(t, b.Init())
	assert.False(t, b.Manager().IsValid)

	s := &core.Session{ID: uuid.New(), Track: "oval", StartTime: time.Unix(1700000000, 0)}
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.AddCar(&core.CarInfo{ID: 4, Kind: "kart"}))
	require.NoError(t, b.RecordSample(&core.Sample{
		CarID:   4,
		Tick:    60,
		SimTime: time.Second,
		Diag:    core.Diagnostics{Speed: 12.5, Gear: 2, Backend: core.BackendDynamic},
	}))
	require.NoError(t, b.RecordEvent(&core.CarEvent{CarID: 4, Tick: 61, Type: core.EventShift, Value: 1}))
	require.NoError(t, b.RecordTick(61, 1, 250*time.Microsecond))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	lines := readBackup(t, backup)
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], MeasurementSample+","))
	assert.Contains(t, lines[0], "car=4")
	assert.Contains(t, lines[0], "kind=kart")
	assert.Contains(t, lines[0], "speed=12.5")
	assert.True(t, strings.HasSuffix(lines[0], " 1700000001000000000"))

	assert.True(t, strings.HasPrefix(lines[1], MeasurementEvent+","))
	assert.Contains(t, lines[1], "type=shift")

	assert.True(t, strings.HasPrefix(lines[2], MeasurementTick+","))
	assert.Contains(t, lines[2], "duration_us=250i")
}

func TestPointTime(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(2*time.Second), pointTime(core.Session{StartTime: start}, 2*time.Second))
	assert.Equal(t, time.Unix(3, 0), pointTime(core.Session{}, 3*time.Second))
}
