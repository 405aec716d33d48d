package worker

import (
	"fmt"

	"github.com/OCAP2/vehicledyn/internal/dispatcher"
	"github.com/OCAP2/vehicledyn/pkg/core"
)

// Commands handled by the worker.
const (
	CommandAddCar = "car:add"
	CommandSample = "car:sample"
	CommandEvent  = "car:event"
)

// Queue sizes of the buffered handlers.
const (
	SampleBuffer = 10000
	EventBuffer  = 1000
)

// RegisterHandlers registers all race handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Car registration - sync (need to cache before samples arrive)
	d.Register(CommandAddCar, m.handleAddCar, dispatcher.Logged())

	// High-volume samples - buffered, dropped when full
	d.Register(CommandSample, m.handleSample, dispatcher.Buffered(SampleBuffer))

	// Shifts, fallbacks, spawns - buffered
	d.Register(CommandEvent, m.handleEvent, dispatcher.Buffered(EventBuffer), dispatcher.Logged())
}

func (m *Manager) handleAddCar(e dispatcher.Event) (any, error) {
	car, ok := e.Payload.(core.CarInfo)
	if !ok {
		return nil, fmt.Errorf("failed to add car: unexpected payload %T", e.Payload)
	}

	// Always cache for sample lookups
	m.deps.CarCache.Add(car)

	if err := m.backend.AddCar(&car); err != nil {
		return nil, fmt.Errorf("failed to add car %d: %w", car.ID, err)
	}
	m.deps.LogManager.WriteLog("handleAddCar", fmt.Sprintf("car %d (%s) registered", car.ID, car.Kind), "DEBUG")
	return nil, nil
}

func (m *Manager) handleSample(e dispatcher.Event) (any, error) {
	sample, ok := e.Payload.(core.Sample)
	if !ok {
		return nil, fmt.Errorf("failed to record sample: unexpected payload %T", e.Payload)
	}

	// Validate car exists in cache
	if _, ok := m.deps.CarCache.Get(sample.CarID); !ok {
		return nil, ErrTooEarlyForSampleAssociation
	}

	if err := m.backend.RecordSample(&sample); err != nil {
		return nil, fmt.Errorf("failed to record sample of car %d: %w", sample.CarID, err)
	}
	m.samples.Inc()
	return nil, nil
}

func (m *Manager) handleEvent(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(core.CarEvent)
	if !ok {
		return nil, fmt.Errorf("failed to record car event: unexpected payload %T", e.Payload)
	}

	if err := m.backend.RecordEvent(&ev); err != nil {
		return nil, fmt.Errorf("failed to record %s event of car %d: %w", ev.Type, ev.CarID, err)
	}
	m.events.Inc()
	return nil, nil
}
