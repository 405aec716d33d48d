package gormstorage

import (
	"testing"
	"time"

	"github.com/OCAP2/vehicledyn/internal/database"
	"github.com/OCAP2/vehicledyn/internal/model"
	"github.com/OCAP2/vehicledyn/internal/model/convert"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend creates a Backend on a private in-memory SQLite database.
func newTestBackend(t *testing.T, deps Dependencies) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)
	deps.DB = db
	if deps.FlushInterval == 0 {
		deps.FlushInterval = time.Hour
	}
	b := New(deps)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testSession() *core.Session {
	return &core.Session{
		ID:        uuid.New(),
		Name:      "practice",
		Track:     "monza",
		Origin:    core.GeoOrigin{Latitude: 45.6156, Longitude: 9.2811},
		StartTime: time.Now().UTC(),
		TickRate:  60,
	}
}

func testSample(car uint, tick uint64) *core.Sample {
	return &core.Sample{
		CarID:    car,
		Tick:     tick,
		SimTime:  time.Duration(tick) * time.Second / 60,
		Position: [2]float64{float64(tick), 2},
		Heading:  0.1,
		Diag:     core.Diagnostics{Tick: tick, Speed: 12, Gear: 2, Phase: core.PhaseForward},
	}
}

func TestInit_WithoutDB(t *testing.T) {
	b := New(Dependencies{})
	assert.ErrorIs(t, b.Init(), ErrNoDatabase)
	assert.ErrorIs(t, b.StartSession(testSession()), ErrNoDatabase)
	assert.NoError(t, b.Close())
}

func TestInit_MigratesSchema(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	for _, m := range model.DatabaseModels {
		assert.True(t, b.DB().Migrator().HasTable(m))
	}
}

func TestStartSession_InsertsRow(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	s := testSession()
	require.NoError(t, b.StartSession(s))
	require.NotZero(t, b.SessionID())

	var row model.Session
	require.NoError(t, b.DB().First(&row, b.SessionID()).Error)
	assert.Equal(t, s.ID.String(), row.UUID)
	assert.Equal(t, "monza", row.Track)

	got := convert.SessionToCore(row)
	assert.InDelta(t, 45.6156, got.Origin.Latitude, 1e-6)
	assert.InDelta(t, 9.2811, got.Origin.Longitude, 1e-6)
}

func TestStartSession_InvalidOrigin(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	s := testSession()
	s.Origin = core.GeoOrigin{Latitude: 91, Longitude: 0}
	require.Error(t, b.StartSession(s))
	assert.Zero(t, b.SessionID())
}

func TestAddCar_InsertAndUpdate(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	require.NoError(t, b.StartSession(testSession()))

	car := &core.CarInfo{ID: 3, Name: "car-3", Kind: "default", Backend: core.BackendDynamic}
	require.NoError(t, b.AddCar(car))

	car.Backend = core.BackendRigidBody
	require.NoError(t, b.AddCar(car))

	var rows []model.Car
	require.NoError(t, b.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(3), rows[0].CarID)
	assert.Equal(t, b.SessionID(), rows[0].SessionID)
	assert.Equal(t, string(core.BackendRigidBody), rows[0].Backend)
}

func TestAddCar_WithoutSessionIsIgnored(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	require.NoError(t, b.AddCar(&core.CarInfo{ID: 1}))

	var count int64
	require.NoError(t, b.DB().Model(&model.Car{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordSample_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.AddCar(&core.CarInfo{ID: 1}))

	for tick := uint64(1); tick <= 5; tick++ {
		require.NoError(t, b.RecordSample(testSample(1, tick)))
	}
	assert.Equal(t, 5, b.QueueLen())

	b.Flush()
	assert.Zero(t, b.QueueLen())

	var rows []model.Sample
	require.NoError(t, b.DB().Order("tick").Find(&rows).Error)
	require.Len(t, rows, 5)
	assert.Equal(t, b.SessionID(), rows[0].SessionID)
	assert.Equal(t, uint64(1), rows[0].Tick)
	assert.Equal(t, 12.0, rows[0].Speed)
	assert.Equal(t, "forward", rows[0].Phase)
}

func TestSampleRoundTripThroughDB(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	s := testSession()
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordSample(testSample(1, 42)))
	b.Flush()

	var row model.Sample
	require.NoError(t, b.DB().First(&row).Error)

	got := convert.SampleToCore(row, *b.origin.Load())
	assert.Equal(t, uint64(42), got.Tick)
	assert.InDelta(t, 42.0, got.Position.X(), 1e-6)
	assert.InDelta(t, 2.0, got.Position.Y(), 1e-6)
	assert.Equal(t, 2, got.Diag.Gear)
}

func TestBoundedSampleQueue(t *testing.T) {
	b := newTestBackend(t, Dependencies{SampleLimit: 3})
	require.NoError(t, b.StartSession(testSession()))

	for tick := uint64(1); tick <= 5; tick++ {
		require.NoError(t, b.RecordSample(testSample(1, tick)))
	}
	assert.Equal(t, 3, b.QueueLen())
	assert.Equal(t, uint64(2), b.Dropped())
}

func TestEndSession_FlushesAndCloses(t *testing.T) {
	b := newTestBackend(t, Dependencies{})
	require.NoError(t, b.StartSession(testSession()))
	id := b.SessionID()

	require.NoError(t, b.RecordSample(testSample(1, 10)))
	require.NoError(t, b.RecordEvent(&core.CarEvent{CarID: 1, Tick: 10, Type: core.EventShift, Value: 1}))
	require.NoError(t, b.EndSession())
	assert.Zero(t, b.SessionID())

	var row model.Session
	require.NoError(t, b.DB().First(&row, id).Error)
	assert.True(t, row.EndTime.Valid)
	assert.Equal(t, uint64(10), row.Ticks)

	var events []model.CarEvent
	require.NoError(t, b.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].SessionID)
	assert.Equal(t, core.EventShift, events[0].Type)

	// a second EndSession has nothing to close
	assert.NoError(t, b.EndSession())
}

func TestWriterLoop_FlushesPeriodically(t *testing.T) {
	b := newTestBackend(t, Dependencies{FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordSample(testSample(1, 1)))

	assert.Eventually(t, func() bool {
		var count int64
		_ = b.DB().Model(&model.Sample{}).Count(&count).Error
		return count == 1
	}, time.Second, 10*time.Millisecond)
}
