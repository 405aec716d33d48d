package race

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/vehicledyn/internal/race"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func newTickHistogram() (metric.Float64Histogram, error) {
	return meter().Float64Histogram("race.tick.duration",
		metric.WithDescription("Wall time of one race tick"),
		metric.WithUnit("ms"))
}
