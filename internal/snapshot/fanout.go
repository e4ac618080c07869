package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/miradorstack/alert-beacon/internal/metrics"
	"github.com/miradorstack/alert-beacon/internal/models"
)

type namedSink struct {
	name string
	pub  Publisher
}

// Fanout publishes to a primary store and then mirrors the snapshot to every sink.
// Sink failures are logged and counted but never undo the primary publish.
type Fanout struct {
	logger  *slog.Logger
	primary Publisher
	sinks   []namedSink
}

// NewFanout wraps primary, which must accept every snapshot.
func NewFanout(logger *slog.Logger, primary Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{logger: logger, primary: primary}
}

// AddSink registers a secondary publisher. Call before the aggregator starts.
func (f *Fanout) AddSink(name string, pub Publisher) {
	f.sinks = append(f.sinks, namedSink{name: name, pub: pub})
}

// Publish writes to the primary publisher and then to each sink in registration order.
func (f *Fanout) Publish(ctx context.Context, snap models.Snapshot) error {
	if err := f.primary.Publish(ctx, snap); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	var errs []error
	for _, sink := range f.sinks {
		if err := sink.pub.Publish(ctx, snap); err != nil {
			metrics.IncSinkError(sink.name)
			f.logger.Warn("snapshot sink failed",
				slog.String("sink", sink.name),
				slog.String("cycle_id", snap.CycleID),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.name, err))
		}
	}
	return errors.Join(errs...)
}
