package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/alert-beacon/internal/metrics"
	"github.com/miradorstack/alert-beacon/internal/models"
	"github.com/miradorstack/alert-beacon/internal/snapshot"
	"github.com/miradorstack/alert-beacon/internal/upstream"
	"github.com/miradorstack/alert-beacon/internal/utils"
)

// Aggregator polls every backend once per cycle and publishes one snapshot per cycle.
type Aggregator struct {
	logger    *slog.Logger
	publisher snapshot.Publisher
	opts      Options
	latency   *utils.LatencyTracker

	// cycleMu serialises cycles; mu guards the fields below it.
	cycleMu  sync.Mutex
	mu       sync.Mutex
	backends []upstream.Backend
	labels   models.LabelMap
	status   models.AggregateStatus
	cycles   int

	newID func() string
	now   func() time.Time
}

// NewAggregator wires backends to a publisher.
func NewAggregator(logger *slog.Logger, backends []upstream.Backend, publisher snapshot.Publisher, opts Options) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		logger:    logger,
		publisher: publisher,
		opts:      opts,
		latency:   utils.NewLatencyTracker(256),
		backends:  append([]upstream.Backend(nil), backends...),
		labels:    models.LabelMap{},
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// SetBackends replaces the backend set. It takes effect at the next cycle; labels of
// removed backends disappear from that cycle's snapshot.
func (a *Aggregator) SetBackends(backends []upstream.Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.backends = append([]upstream.Backend(nil), backends...)
}

// CycleLatency reports the given percentile of recent cycle durations.
func (a *Aggregator) CycleLatency(p float64) time.Duration {
	return a.latency.Percentile(p)
}

// Run executes a cycle immediately and then once per interval until ctx is cancelled.
// Cycles run on this goroutine, so a slow cycle delays the next tick instead of overlapping it.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) error {
	a.RunCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.RunCycle(ctx)
		}
	}
}

// RunCycle polls all backends concurrently, waits for every result, evaluates them and
// publishes the snapshot. Poll failures are absorbed into the snapshot. When ctx ends during
// the cycle nothing is published and the previous state is returned.
func (a *Aggregator) RunCycle(ctx context.Context) models.Snapshot {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	start := a.now()
	cycleID := a.newID()
	logger := a.logger.With(slog.String("cycle_id", cycleID))

	a.mu.Lock()
	backends := append([]upstream.Backend(nil), a.backends...)
	previous := a.labels.Clone()
	prevStatus := a.status
	first := a.cycles == 0
	a.mu.Unlock()

	results := a.pollAll(ctx, backends)
	if err := ctx.Err(); err != nil {
		logger.Info("cycle abandoned", slog.Any("reason", err))
		return models.Snapshot{Status: prevStatus, Labels: previous}
	}

	order := make([]string, 0, len(backends))
	byID := make(map[string]models.PollResult, len(results))
	for _, res := range results {
		order = append(order, res.Backend)
		byID[res.Backend] = res
		a.logPoll(logger, res)
	}

	status, labels := Evaluate(order, byID, previous, a.opts)
	snap := models.Snapshot{
		Status:    status,
		Labels:    labels,
		CycleID:   cycleID,
		UpdatedAt: a.now(),
	}

	if err := a.publisher.Publish(ctx, snap); err != nil {
		logger.Warn("snapshot publish incomplete", slog.Any("error", err))
	}

	a.mu.Lock()
	a.labels = labels.Clone()
	a.status = status
	a.cycles++
	a.mu.Unlock()

	elapsed := a.now().Sub(start)
	a.latency.Observe(elapsed)
	metrics.ObserveCycle(elapsed)
	metrics.SetAggregate(status.HasActiveAlerts, status.InternalError)
	exported := make(map[string]string, len(labels))
	for id, label := range labels {
		exported[id] = string(label)
	}
	metrics.SetBackendLabels(exported)

	attrs := []any{
		slog.Bool("has_active_alerts", status.HasActiveAlerts),
		slog.Bool("internal_error", status.InternalError),
		slog.Int("backends", len(backends)),
		slog.Duration("elapsed", elapsed),
	}
	if first || status != prevStatus {
		logger.Info("aggregate status changed", attrs...)
	} else {
		logger.Debug("cycle complete", attrs...)
	}
	return snap.Clone()
}

func (a *Aggregator) pollAll(ctx context.Context, backends []upstream.Backend) []models.PollResult {
	results := make([]models.PollResult, len(backends))
	var g errgroup.Group
	for i, backend := range backends {
		g.Go(func() error {
			res := backend.Poll(ctx)
			// Backends fill identity themselves; guard against adapters that do not.
			if res.Backend == "" {
				res.Backend = backend.ID()
			}
			if res.Kind == "" {
				res.Kind = backend.Kind()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *Aggregator) logPoll(logger *slog.Logger, res models.PollResult) {
	metrics.ObservePoll(res.Backend, string(res.Outcome), res.Duration)

	attrs := []any{
		slog.String("backend", res.Backend),
		slog.String("kind", string(res.Kind)),
		slog.String("outcome", string(res.Outcome)),
		slog.Duration("duration", res.Duration),
	}
	switch res.Outcome {
	case models.OutcomeUnreachable:
		attrs = append(attrs,
			slog.String("failure", string(res.Failure)),
			slog.String("op", utils.OpOf(res.Err)),
			slog.Any("error", res.Err),
		)
		logger.Warn("backend unreachable", attrs...)
	case models.OutcomeAlerting:
		attrs = append(attrs, slog.Int("active", res.ActiveCount))
		logger.Debug("backend alerting", attrs...)
	default:
		logger.Debug("backend healthy", attrs...)
	}
}
