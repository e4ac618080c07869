package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
	"github.com/miradorstack/alert-beacon/internal/snapshot"
)

func publishedStore(t *testing.T) *snapshot.Store {
	t.Helper()
	store := snapshot.NewStore()
	require.NoError(t, store.Publish(context.Background(), models.Snapshot{
		Status: models.AggregateStatus{InternalError: true},
		Labels: models.LabelMap{
			"A": models.LabelClear,
			"B": models.LabelAlertDetected,
			"C": models.LabelAPIError,
		},
		CycleID: "c-1",
	}))
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusRoutes(t *testing.T) {
	h := NewHandler(publishedStore(t), "*", nil)

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	for _, path := range []string{"/internal", "/source"} {
		var body map[string]bool
		require.NoError(t, json.NewDecoder(get(t, h, path).Body).Decode(&body))
		assert.Equal(t, map[string]bool{"internalError": true}, body, path)
	}

	var alerts map[string]bool
	require.NoError(t, json.NewDecoder(get(t, h, "/alerts").Body).Decode(&alerts))
	assert.Equal(t, map[string]bool{"hasActiveAlerts": false}, alerts)

	var labels map[string]string
	require.NoError(t, json.NewDecoder(get(t, h, "/label").Body).Decode(&labels))
	assert.Equal(t, map[string]string{"A": "CLEAR", "B": "ALERT_DETECTED", "C": "API_ERROR"}, labels)

	var snap models.Snapshot
	require.NoError(t, json.NewDecoder(get(t, h, "/status").Body).Decode(&snap))
	assert.Equal(t, "c-1", snap.CycleID)
	assert.True(t, snap.Status.InternalError)
}

func TestEmptyStoreServesEmptyLabels(t *testing.T) {
	h := NewHandler(snapshot.NewStore(), "", nil)
	rec := get(t, h, "/label")
	body, _ := io.ReadAll(rec.Body)
	assert.JSONEq(t, `{}`, string(body))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	h := NewHandler(snapshot.NewStore(), "https://dash.example", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/alerts", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	h := NewHandler(snapshot.NewStore(), "*", nil)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}

func TestHTTPServerServes(t *testing.T) {
	srv, err := NewHTTPServer(config.ServerConfig{Address: "127.0.0.1:0"}, NewHandler(publishedStore(t), "*", nil))
	require.NoError(t, err)
	go func() { _ = srv.Start() }()
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Address() + "/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReporter(t *testing.T) {
	ctx := context.Background()
	r := NewHealthReporter()

	status, err := r.Check(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	require.NoError(t, r.Publish(ctx, models.Snapshot{
		Status: models.AggregateStatus{HasActiveAlerts: true},
		Labels: models.LabelMap{"am": models.LabelClear, "zbx": models.LabelAlertDetected},
	}))

	status, _ = r.Check(ctx, "")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
	status, _ = r.Check(ctx, "am")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
	status, _ = r.Check(ctx, "zbx")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	require.NoError(t, r.Publish(ctx, models.Snapshot{Labels: models.LabelMap{"am": models.LabelClear}}))
	status, _ = r.Check(ctx, "zbx")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, status)
	status, _ = r.Check(ctx, "")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestHealthReporterHiddenClearLabels(t *testing.T) {
	ctx := context.Background()
	r := NewHealthReporter()
	r.SetBackends([]string{"am", "zbx"})

	require.NoError(t, r.Publish(ctx, models.Snapshot{
		Labels: models.LabelMap{"zbx": models.LabelAPIError},
		Status: models.AggregateStatus{InternalError: true},
	}))
	status, _ := r.Check(ctx, "am")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status, "a hidden CLEAR backend is still served")
	status, _ = r.Check(ctx, "zbx")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	r.SetBackends([]string{"am"})
	require.NoError(t, r.Publish(ctx, models.Snapshot{}))
	status, _ = r.Check(ctx, "zbx")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVICE_UNKNOWN, status, "removed backends become unknown")
	status, _ = r.Check(ctx, "am")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)
}

func TestGRPCServerLifecycle(t *testing.T) {
	srv, err := NewServer(config.ServerConfig{GRPCAddress: "127.0.0.1:0"})
	require.NoError(t, err)
	assert.NotEmpty(t, srv.Address())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	srv.Shutdown(context.Background())
	if err := <-done; err != nil {
		assert.ErrorIs(t, err, grpc.ErrServerStopped)
	}
}
