package influx

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSample = "vehicle_sample"
	MeasurementEvent  = "vehicle_event"
	MeasurementTick   = "race_tick"
)

// Backend writes one point per sample and event. It implements
// storage.Backend.
type Backend struct {
	m      *Manager
	bucket string

	mu      sync.RWMutex
	session core.Session
	kinds   map[uint]string
}

// NewBackend wraps a manager that has not been connected yet.
func NewBackend(m *Manager) *Backend {
	return &Backend{
		m:      m,
		bucket: m.cfg.Bucket,
		kinds:  make(map[uint]string),
	}
}

// Manager returns the underlying manager.
func (b *Backend) Manager() *Manager {
	return b.m
}

// Init connects the manager.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return b.m.Connect(ctx)
}

// Close flushes and disconnects.
func (b *Backend) Close() error {
	return b.m.Close()
}

// StartSession tags subsequent points with the session.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = *s
	b.kinds = make(map[uint]string)
	return nil
}

// EndSession flushes pending points.
func (b *Backend) EndSession() error {
	b.m.Flush()
	return nil
}

// AddCar remembers the car kind for tagging.
func (b *Backend) AddCar(c *core.CarInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds[c.ID] = c.Kind
	return nil
}

// RecordSample writes a vehicle_sample point.
func (b *Backend) RecordSample(s *core.Sample) error {
	b.mu.RLock()
	p := SamplePoint(b.session, b.kinds[s.CarID], s)
	b.mu.RUnlock()
	return b.m.WritePoint(b.bucket, p)
}

// RecordEvent writes a vehicle_event point.
func (b *Backend) RecordEvent(e *core.CarEvent) error {
	b.mu.RLock()
	p := EventPoint(b.session, e)
	b.mu.RUnlock()
	return b.m.WritePoint(b.bucket, p)
}

// RecordTick writes scheduler timing to the performance bucket.
func (b *Backend) RecordTick(tick uint64, cars int, took time.Duration) error {
	b.mu.RLock()
	session := b.session
	b.mu.RUnlock()

	p := influxdb2_write.NewPointWithMeasurement(MeasurementTick).
		AddTag("session", session.ID.String()).
		AddField("tick", tick).
		AddField("cars", cars).
		AddField("duration_us", took.Microseconds()).
		SetTime(time.Now())
	return b.m.WritePoint(PerformanceBucket, p)
}

// pointTime maps simulated time onto the session clock.
func pointTime(s core.Session, simTime time.Duration) time.Time {
	if s.StartTime.IsZero() {
		return time.Unix(0, 0).Add(simTime)
	}
	return s.StartTime.Add(simTime)
}

// SamplePoint builds the point for one sample.
func SamplePoint(s core.Session, kind string, sample *core.Sample) *influxdb2_write.Point {
	d := sample.Diag
	p := influxdb2_write.NewPointWithMeasurement(MeasurementSample).
		AddTag("session", s.ID.String()).
		AddTag("track", s.Track).
		AddTag("car", strconv.FormatUint(uint64(sample.CarID), 10)).
		AddTag("backend", string(d.Backend)).
		AddField("tick", sample.Tick).
		AddField("x", sample.Position.X()).
		AddField("y", sample.Position.Y()).
		AddField("heading", sample.Heading).
		AddField("yaw_rate", sample.YawRate).
		AddField("speed", d.Speed).
		AddField("vx", d.VX).
		AddField("steer", d.SteerAngle).
		AddField("throttle", d.Throttle).
		AddField("brake", d.Brake).
		AddField("gear", d.Gear).
		AddField("phase", d.Phase.String()).
		AddField("blend", d.BlendWeight).
		AddField("skid", d.Skid).
		AddField("slip_front", d.Front.SlipAngle).
		AddField("slip_rear", d.Rear.SlipAngle).
		AddField("util_front", d.Front.Utilization).
		AddField("util_rear", d.Rear.Utilization).
		AddField("load_front", d.Loads.Front).
		AddField("load_rear", d.Loads.Rear).
		SetTime(pointTime(s, sample.SimTime))
	if kind != "" {
		p.AddTag("kind", kind)
	}
	return p
}

// EventPoint builds the point for one car event.
func EventPoint(s core.Session, e *core.CarEvent) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementEvent).
		AddTag("session", s.ID.String()).
		AddTag("car", strconv.FormatUint(uint64(e.CarID), 10)).
		AddTag("type", e.Type).
		AddField("tick", e.Tick).
		AddField("value", e.Value).
		SetTime(pointTime(s, e.SimTime))
	if e.Message != "" {
		p.AddField("message", e.Message)
	}
	return p
}
