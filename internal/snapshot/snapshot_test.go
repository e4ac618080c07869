package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/alert-beacon/internal/cache"
	"github.com/miradorstack/alert-beacon/internal/models"
)

func sampleSnapshot() models.Snapshot {
	return models.Snapshot{
		Status:    models.AggregateStatus{HasActiveAlerts: true},
		Labels:    models.LabelMap{"am": models.LabelClear, "zbx": models.LabelAlertDetected},
		CycleID:   "cycle-1",
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStoreReadersGetCopies(t *testing.T) {
	store := NewStore()
	assert.False(t, store.Status().HasActiveAlerts)
	assert.Empty(t, store.Labels())

	require.NoError(t, store.Publish(context.Background(), sampleSnapshot()))

	labels := store.Labels()
	labels["am"] = models.LabelAPIError
	assert.Equal(t, models.LabelClear, store.Labels()["am"])
	assert.True(t, store.Status().HasActiveAlerts)
	assert.Equal(t, "cycle-1", store.Snapshot().CycleID)
}

func TestStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	alerting := models.Snapshot{
		Status: models.AggregateStatus{HasActiveAlerts: true},
		Labels: models.LabelMap{"a": models.LabelAlertDetected},
	}
	failing := models.Snapshot{
		Status: models.AggregateStatus{InternalError: true},
		Labels: models.LabelMap{"a": models.LabelAPIError},
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = store.Publish(ctx, alerting)
			} else {
				_ = store.Publish(ctx, failing)
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := store.Snapshot()
		if snap.Status.InternalError {
			require.Equal(t, models.LabelAPIError, snap.Labels["a"])
		}
		if snap.Status.HasActiveAlerts {
			require.Equal(t, models.LabelAlertDetected, snap.Labels["a"])
		}
	}
	close(stop)
	wg.Wait()
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, models.Snapshot) error { return f.err }

type recordingPublisher struct {
	got []models.Snapshot
}

func (r *recordingPublisher) Publish(_ context.Context, snap models.Snapshot) error {
	r.got = append(r.got, snap)
	return nil
}

func TestFanoutSinkFailureKeepsPrimary(t *testing.T) {
	store := NewStore()
	rec := &recordingPublisher{}
	fan := NewFanout(nil, store)
	fan.AddSink("broken", failingPublisher{err: errors.New("disk full")})
	fan.AddSink("rec", rec)

	err := fan.Publish(context.Background(), sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, store.Status().HasActiveAlerts)
	require.Len(t, rec.got, 1, "each sink receives exactly one write per publish")
}

func TestFanoutPrimaryFailureStops(t *testing.T) {
	rec := &recordingPublisher{}
	fan := NewFanout(nil, failingPublisher{err: errors.New("boom")})
	fan.AddSink("rec", rec)

	require.Error(t, fan.Publish(context.Background(), sampleSnapshot()))
	assert.Empty(t, rec.got)
}

func TestFileSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tocka", "alerts.json")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	initial, err := NewFileSource(path).Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, initial.Status.Healthy())

	require.NoError(t, sink.Publish(context.Background(), sampleSnapshot()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, true, flat["hasActiveAlerts"])
	assert.Equal(t, false, flat["internalError"])

	got, err := NewFileSource(path).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot().Labels, got.Labels)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestCacheSinkAndSource(t *testing.T) {
	provider := cache.NewMemoryProvider()
	ctx := context.Background()
	source := NewCacheSource(provider, "beacon:snapshot")

	_, err := source.Fetch(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, NewCacheSink(provider, "beacon:snapshot", time.Minute).Publish(ctx, sampleSnapshot()))
	got, err := source.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.True(t, got.Status.HasActiveAlerts)
}

func TestHTTPSourceStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte("ok"))
		case "/status":
			_ = json.NewEncoder(w).Encode(sampleSnapshot())
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	got, err := NewHTTPSource(server.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Status.HasActiveAlerts)
	assert.Equal(t, models.LabelAlertDetected, got.Labels["zbx"])
}

func TestHTTPSourceLegacyRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte("API healthy"))
		case "/source":
			_, _ = w.Write([]byte(`{"internalError":true}`))
		case "/alerts":
			_, _ = w.Write([]byte(`{"hasActiveAlerts":true}`))
		case "/label":
			_, _ = w.Write([]byte(`{"zbx":"SOURCE_ERROR"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	got, err := NewHTTPSource(server.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Status.InternalError)
	assert.False(t, got.Status.HasActiveAlerts)
	assert.Equal(t, models.LabelSourceError, got.Labels["zbx"])
}

func TestHTTPSourceUnhealthyAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPSource(server.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
}
