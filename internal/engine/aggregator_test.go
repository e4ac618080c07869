package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/alert-beacon/internal/models"
	"github.com/miradorstack/alert-beacon/internal/snapshot"
	"github.com/miradorstack/alert-beacon/internal/upstream"
)

type fakeBackend struct {
	id    string
	kind  models.BackendKind
	delay time.Duration

	mu      sync.Mutex
	outcome models.Outcome
	failure models.Failure
	polls   int
}

func (f *fakeBackend) ID() string               { return f.id }
func (f *fakeBackend) Kind() models.BackendKind { return f.kind }

func (f *fakeBackend) set(outcome models.Outcome, failure models.Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcome = outcome
	f.failure = failure
}

func (f *fakeBackend) Poll(ctx context.Context) models.PollResult {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.Unreachable(f.id, f.kind, models.FailureTransport, ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	switch f.outcome {
	case models.OutcomeAlerting:
		return models.Alerting(f.id, f.kind, 1)
	case models.OutcomeUnreachable:
		return models.Unreachable(f.id, f.kind, f.failure, errors.New("unreachable"))
	default:
		return models.Healthy(f.id, f.kind)
	}
}

type countingPublisher struct {
	inner     snapshot.Publisher
	publishes atomic.Int32
}

func (c *countingPublisher) Publish(ctx context.Context, snap models.Snapshot) error {
	c.publishes.Add(1)
	return c.inner.Publish(ctx, snap)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCyclePublishesOneSnapshot(t *testing.T) {
	a := &fakeBackend{id: "A", kind: models.KindAlertmanager}
	b := &fakeBackend{id: "B", kind: models.KindAlertmanager, outcome: models.OutcomeAlerting}
	c := &fakeBackend{id: "C", kind: models.KindZabbix, outcome: models.OutcomeUnreachable, failure: models.FailureTransport}

	store := snapshot.NewStore()
	pub := &countingPublisher{inner: store}
	agg := NewAggregator(discardLogger(), []upstream.Backend{a, b, c}, pub, Options{})

	snap := agg.RunCycle(context.Background())

	assert.EqualValues(t, 1, pub.publishes.Load())
	assert.Equal(t, models.AggregateStatus{InternalError: true}, store.Status())
	assert.Equal(t, models.LabelMap{
		"A": models.LabelClear,
		"B": models.LabelAlertDetected,
		"C": models.LabelAPIError,
	}, store.Labels())
	assert.NotEmpty(t, snap.CycleID)
}

func TestRunCycleWaitsForSlowBackends(t *testing.T) {
	fast := &fakeBackend{id: "fast", kind: models.KindAlertmanager}
	slow := &fakeBackend{id: "slow", kind: models.KindZabbix, delay: 50 * time.Millisecond, outcome: models.OutcomeAlerting}

	store := snapshot.NewStore()
	agg := NewAggregator(discardLogger(), []upstream.Backend{fast, slow}, store, Options{})
	agg.RunCycle(context.Background())

	assert.True(t, store.Status().HasActiveAlerts)
	assert.Equal(t, models.LabelAlertDetected, store.Labels()["slow"])
}

func TestRunCyclePollsConcurrently(t *testing.T) {
	var backends []upstream.Backend
	for i := 0; i < 5; i++ {
		backends = append(backends, &fakeBackend{id: fmt.Sprintf("b%d", i), kind: models.KindAlertmanager, delay: 100 * time.Millisecond})
	}
	agg := NewAggregator(discardLogger(), backends, snapshot.NewStore(), Options{})

	start := time.Now()
	agg.RunCycle(context.Background())
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestSetBackendsDropsRemovedLabels(t *testing.T) {
	a := &fakeBackend{id: "A", kind: models.KindAlertmanager}
	b := &fakeBackend{id: "B", kind: models.KindZabbix, outcome: models.OutcomeUnreachable, failure: models.FailureSource}

	store := snapshot.NewStore()
	agg := NewAggregator(discardLogger(), []upstream.Backend{a, b}, store, Options{})
	agg.RunCycle(context.Background())
	require.Equal(t, models.LabelSourceError, store.Labels()["B"])

	agg.SetBackends([]upstream.Backend{a})
	agg.RunCycle(context.Background())

	assert.Equal(t, models.LabelMap{"A": models.LabelClear}, store.Labels())
	assert.True(t, store.Status().Healthy())
}

func TestRunCycleRecovers(t *testing.T) {
	b := &fakeBackend{id: "B", kind: models.KindAlertmanager, outcome: models.OutcomeAlerting}
	store := snapshot.NewStore()
	agg := NewAggregator(discardLogger(), []upstream.Backend{b}, store, Options{})

	agg.RunCycle(context.Background())
	require.True(t, store.Status().HasActiveAlerts)

	b.set(models.OutcomeHealthy, models.FailureNone)
	agg.RunCycle(context.Background())
	assert.True(t, store.Status().Healthy())
	assert.Equal(t, models.LabelClear, store.Labels()["B"])
}

type blockingPublisher struct {
	active  atomic.Int32
	overlap atomic.Bool
	count   atomic.Int32
}

func (p *blockingPublisher) Publish(context.Context, models.Snapshot) error {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	p.active.Add(-1)
	p.count.Add(1)
	return nil
}

func TestRunNeverOverlapsCycles(t *testing.T) {
	slow := &fakeBackend{id: "slow", kind: models.KindAlertmanager, delay: 30 * time.Millisecond}
	pub := &blockingPublisher{}
	agg := NewAggregator(discardLogger(), []upstream.Backend{slow}, pub, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = agg.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	// A concurrent manual cycle must also serialise with the loop.
	agg.RunCycle(context.Background())
	<-done

	assert.False(t, pub.overlap.Load())
	assert.GreaterOrEqual(t, pub.count.Load(), int32(2))
}

func TestRunCyclePublishErrorIsAbsorbed(t *testing.T) {
	a := &fakeBackend{id: "A", kind: models.KindAlertmanager}
	store := snapshot.NewStore()
	fan := snapshot.NewFanout(discardLogger(), store)
	fan.AddSink("broken", publisherFunc(func(context.Context, models.Snapshot) error {
		return errors.New("read-only filesystem")
	}))

	agg := NewAggregator(discardLogger(), []upstream.Backend{a}, fan, Options{})
	snap := agg.RunCycle(context.Background())

	assert.True(t, snap.Status.Healthy())
	assert.Equal(t, snap.CycleID, store.Snapshot().CycleID)
}

type publisherFunc func(context.Context, models.Snapshot) error

func (f publisherFunc) Publish(ctx context.Context, snap models.Snapshot) error { return f(ctx, snap) }

func TestRunCycleSkipsPublishWhenCancelled(t *testing.T) {
	a := &fakeBackend{id: "A", kind: models.KindAlertmanager}
	slow := &fakeBackend{id: "slow", kind: models.KindZabbix, delay: time.Second}

	store := snapshot.NewStore()
	pub := &countingPublisher{inner: store}
	agg := NewAggregator(discardLogger(), []upstream.Backend{a}, pub, Options{})
	first := agg.RunCycle(context.Background())
	require.EqualValues(t, 1, pub.publishes.Load())

	agg.SetBackends([]upstream.Backend{a, slow})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	snap := agg.RunCycle(ctx)

	assert.EqualValues(t, 1, pub.publishes.Load(), "a cancelled cycle must not publish")
	assert.Equal(t, first.CycleID, store.Snapshot().CycleID)
	assert.Equal(t, models.LabelMap{"A": models.LabelClear}, store.Labels())
	assert.True(t, snap.Status.Healthy())
}
