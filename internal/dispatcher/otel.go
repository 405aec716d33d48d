package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/vehicledyn/internal/dispatcher"

// instruments are the dispatcher metrics. They come from the global meter and
// are no-ops unless a provider is installed.
type instruments struct {
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	handleMs  metric.Float64Histogram
}

func newInstruments(d *Dispatcher) (instruments, error) {
	m := otel.Meter(instrumentationName)

	var in instruments
	var err error

	in.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Events waiting in each buffered queue"),
	)
	if err != nil {
		return in, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for _, r := range d.routes {
			if r.queue != nil {
				o.ObserveInt64(in.queueSize, int64(len(r.queue)), metric.WithAttributes(commandAttr(r.command)))
			}
		}
		return nil
	}, in.queueSize)
	if err != nil {
		return in, fmt.Errorf("registering queue callback: %w", err)
	}

	in.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Buffered events handled"),
	)
	if err != nil {
		return in, fmt.Errorf("creating processed counter: %w", err)
	}

	in.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Events rejected by a full queue"),
	)
	if err != nil {
		return in, fmt.Errorf("creating dropped counter: %w", err)
	}

	in.handleMs, err = m.Float64Histogram(
		"dispatcher.handler.duration",
		metric.WithDescription("Time spent in a buffered handler"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return in, fmt.Errorf("creating handler histogram: %w", err)
	}
	return in, nil
}

func commandAttr(command string) attribute.KeyValue {
	return attribute.String("command", command)
}
