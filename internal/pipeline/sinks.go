package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/cap-alerts-etl/internal/domain"
	"github.com/couchcryptid/cap-alerts-etl/internal/observability"
)

// Sink is a named BatchLoader.
type Sink struct {
	Name   string
	Loader BatchLoader
}

// FanOut loads every batch into each sink in order and stops at the first
// failure. Loads are upserts keyed by feature identifier, so a retried batch
// is harmless for sinks that already accepted it.
type FanOut struct {
	sinks   []Sink
	metrics *observability.Metrics
}

// NewFanOut creates a loader over sinks.
func NewFanOut(metrics *observability.Metrics, sinks ...Sink) *FanOut {
	return &FanOut{sinks: sinks, metrics: metrics}
}

func (f *FanOut) LoadBatch(ctx context.Context, features []domain.Feature) error {
	for _, s := range f.sinks {
		if err := s.Loader.LoadBatch(ctx, features); err != nil {
			f.metrics.LoadErrors.WithLabelValues(s.Name).Inc()
			return fmt.Errorf("load into %s: %w", s.Name, err)
		}
		f.metrics.FeaturesLoaded.WithLabelValues(s.Name).Add(float64(len(features)))
	}
	return nil
}
