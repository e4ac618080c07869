package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/alert-beacon/internal/models"
)

var errNotFound = errors.New("not found")

// HTTPSource reads the snapshot from a running beacon API. It checks /health first and then
// reads /status. Against an API without /status it falls back to /source, /alerts and /label.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource targets the API at baseURL with a per-request timeout.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the API's current snapshot. Any failure is returned as an error so the caller
// can treat the API itself as unreachable.
func (s *HTTPSource) Fetch(ctx context.Context) (models.Snapshot, error) {
	if err := s.get(ctx, "/health", nil); err != nil {
		return models.Snapshot{}, fmt.Errorf("api health: %w", err)
	}

	var snap models.Snapshot
	err := s.get(ctx, "/status", &snap)
	if errors.Is(err, errNotFound) {
		return s.fetchLegacy(ctx)
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("api status: %w", err)
	}
	if snap.Labels == nil {
		snap.Labels = models.LabelMap{}
	}
	return snap, nil
}

func (s *HTTPSource) fetchLegacy(ctx context.Context) (models.Snapshot, error) {
	var source struct {
		InternalError bool `json:"internalError"`
	}
	if err := s.get(ctx, "/source", &source); err != nil {
		return models.Snapshot{}, fmt.Errorf("api source: %w", err)
	}
	var alerts struct {
		HasActiveAlerts bool `json:"hasActiveAlerts"`
	}
	if err := s.get(ctx, "/alerts", &alerts); err != nil {
		return models.Snapshot{}, fmt.Errorf("api alerts: %w", err)
	}
	labels := models.LabelMap{}
	if err := s.get(ctx, "/label", &labels); err != nil {
		return models.Snapshot{}, fmt.Errorf("api label: %w", err)
	}

	status := models.AggregateStatus{
		HasActiveAlerts: alerts.HasActiveAlerts && !source.InternalError,
		InternalError:   source.InternalError,
	}
	return models.Snapshot{Status: status, Labels: labels, UpdatedAt: time.Now()}, nil
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
