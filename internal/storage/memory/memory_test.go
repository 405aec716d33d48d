package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/vehicledyn/internal/config"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/google/uuid"
)

func testSession() *core.Session {
	return &core.Session{
		ID:        uuid.New(),
		Name:      "Morning Practice",
		Track:     "oval",
		Tag:       "Practice",
		StartTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		TickRate:  60,
	}
}

func sample(car uint, tick uint64) *core.Sample {
	return &core.Sample{
		CarID:    car,
		Tick:     tick,
		SimTime:  time.Duration(tick) * time.Second / 60,
		Position: [2]float64{float64(tick), 0},
	}
}

func TestNew(t *testing.T) {
	cfg := config.MemoryConfig{
		OutputDir:      "/tmp/test",
		CompressOutput: true,
	}
	b := New(cfg)

	if b == nil {
		t.Fatal("New returned nil")
	}
	if b.cfg.OutputDir != "/tmp/test" {
		t.Errorf("expected OutputDir=/tmp/test, got %s", b.cfg.OutputDir)
	}
	if b.cars == nil {
		t.Error("cars map not initialized")
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestStartSessionResets(t *testing.T) {
	b := New(config.MemoryConfig{})

	_ = b.AddCar(&core.CarInfo{ID: 1, Name: "old"})
	_ = b.RecordEvent(&core.CarEvent{CarID: 9, Type: core.EventSpawn})

	if err := b.StartSession(testSession()); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if len(b.Records()) != 0 {
		t.Errorf("expected no cars after StartSession, got %d", len(b.Records()))
	}
	if len(b.orphan) != 0 {
		t.Errorf("expected orphan events cleared, got %d", len(b.orphan))
	}
}

func TestRecordSamplesPerCar(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession())
	_ = b.AddCar(&core.CarInfo{ID: 2, Name: "b"})
	_ = b.AddCar(&core.CarInfo{ID: 1, Name: "a"})

	for tick := uint64(1); tick <= 3; tick++ {
		_ = b.RecordSample(sample(1, tick))
	}
	_ = b.RecordSample(sample(2, 1))
	_ = b.RecordSample(sample(7, 1)) // unknown car

	records := b.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Car.ID != 1 || records[1].Car.ID != 2 {
		t.Errorf("records not ordered by ID: %d, %d", records[0].Car.ID, records[1].Car.ID)
	}
	if len(records[0].Samples) != 3 {
		t.Errorf("expected 3 samples for car 1, got %d", len(records[0].Samples))
	}

	rec, ok := b.Car(2)
	if !ok {
		t.Fatal("car 2 not found")
	}
	if len(rec.Samples) != 1 {
		t.Errorf("expected 1 sample for car 2, got %d", len(rec.Samples))
	}
	if _, ok := b.Car(7); ok {
		t.Error("unknown car should not be recorded")
	}
}

func TestReAddKeepsSamples(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.AddCar(&core.CarInfo{ID: 1, Kind: "default"})
	_ = b.RecordSample(sample(1, 1))
	_ = b.AddCar(&core.CarInfo{ID: 1, Kind: "kart"})

	rec, _ := b.Car(1)
	if rec.Car.Kind != "kart" {
		t.Errorf("expected kind kart, got %s", rec.Car.Kind)
	}
	if len(rec.Samples) != 1 {
		t.Errorf("expected sample to survive re-add, got %d", len(rec.Samples))
	}
}

func TestRecordEvent(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.AddCar(&core.CarInfo{ID: 1})

	_ = b.RecordEvent(&core.CarEvent{CarID: 1, Type: core.EventShift, Value: 1})
	_ = b.RecordEvent(&core.CarEvent{CarID: 3, Type: core.EventDespawn})

	rec, _ := b.Car(1)
	if len(rec.Events) != 1 || rec.Events[0].Type != core.EventShift {
		t.Errorf("unexpected car events: %+v", rec.Events)
	}
	if len(b.orphan) != 1 {
		t.Errorf("expected 1 orphan event, got %d", len(b.orphan))
	}
}

func TestExportMetadata(t *testing.T) {
	b := New(config.MemoryConfig{})
	if meta := b.GetExportMetadata(); meta != (core.UploadMetadata{}) {
		t.Errorf("expected empty metadata before a session, got %+v", meta)
	}

	_ = b.StartSession(testSession())
	_ = b.AddCar(&core.CarInfo{ID: 1})
	_ = b.RecordSample(sample(1, 120))

	meta := b.GetExportMetadata()
	if meta.TrackName != "oval" || meta.SessionName != "Morning Practice" || meta.Tag != "Practice" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.Duration != 2 {
		t.Errorf("expected duration 2s, got %v", meta.Duration)
	}
	if meta.Cars != 1 {
		t.Errorf("expected 1 car, got %d", meta.Cars)
	}
}

func TestConcurrentRecording(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testSession())
	for id := uint(1); id <= 4; id++ {
		_ = b.AddCar(&core.CarInfo{ID: id})
	}

	var wg sync.WaitGroup
	for id := uint(1); id <= 4; id++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			for tick := uint64(1); tick <= 100; tick++ {
				_ = b.RecordSample(sample(id, tick))
			}
		}(id)
	}
	wg.Wait()

	for _, rec := range b.Records() {
		if len(rec.Samples) != 100 {
			t.Errorf("car %d: expected 100 samples, got %d", rec.Car.ID, len(rec.Samples))
		}
	}
}
