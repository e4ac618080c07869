package presentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/alert-beacon/internal/snapshot"
)

// Runner polls a snapshot source on a fixed interval and feeds the machine. Polls and timer
// callbacks both run on the Run goroutine.
type Runner struct {
	source   snapshot.Source
	cfg      Thresholds
	timeout  time.Duration
	renderer Renderer
	logger   *slog.Logger

	machine *Machine
	calls   chan func()
	done    chan struct{}
}

// NewRunner builds a runner with its own machine. timeout bounds each fetch.
func NewRunner(source snapshot.Source, cfg Thresholds, timeout time.Duration, renderer Renderer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalize()
	if timeout <= 0 || timeout > cfg.Interval {
		timeout = cfg.Interval
	}
	r := &Runner{
		source:   source,
		cfg:      cfg,
		timeout:  timeout,
		renderer: renderer,
		logger:   logger,
		calls:    make(chan func(), 16),
		done:     make(chan struct{}),
	}
	r.machine = NewMachine(cfg, loopScheduler{calls: r.calls, done: r.done}, renderer, logger)
	return r
}

// Run polls until ctx is cancelled, then cancels every pending timer.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		close(r.done)
		r.machine.Close()
	}()

	r.poll(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.calls:
			fn()
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	snap, err := r.source.Fetch(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.machine.ObserveFailure(err)
		return
	}
	r.logger.Debug("snapshot fetched",
		slog.String("cycle_id", snap.CycleID),
		slog.Bool("has_active_alerts", snap.Status.HasActiveAlerts),
		slog.Bool("internal_error", snap.Status.InternalError),
		slog.Int("labels", len(snap.Labels)),
	)
	r.machine.Observe(snap)
}
