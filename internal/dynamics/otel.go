package dynamics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/vehicledyn/internal/dynamics"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	steps     metric.Int64Counter
	fallbacks metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	m := meter()
	steps, err := m.Int64Counter("dynamics.steps",
		metric.WithDescription("Simulation steps completed"))
	if err != nil {
		return nil, err
	}
	fallbacks, err := m.Int64Counter("dynamics.backend.fallbacks",
		metric.WithDescription("Cars that fell back from the rigid-body backend"))
	if err != nil {
		return nil, err
	}
	return &instruments{steps: steps, fallbacks: fallbacks}, nil
}
