package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
	"github.com/miradorstack/alert-beacon/internal/utils"
)

// Alert is the subset of an Alertmanager v2 alert the beacon reads.
type Alert struct {
	Fingerprint string            `json:"fingerprint"`
	Labels      map[string]string `json:"labels"`
	StartsAt    time.Time         `json:"startsAt"`
	Status      struct {
		State string `json:"state"`
	} `json:"status"`
}

// AlertmanagerClient polls the Alertmanager alerts endpoint.
type AlertmanagerClient struct {
	id         string
	endpoint   string
	username   string
	password   string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewAlertmanagerClient constructs a client targeting the configured Alertmanager instance.
func NewAlertmanagerClient(cfg config.BackendConfig) *AlertmanagerClient {
	endpoint := resolvePath(cfg.BaseURL, cfg.AlertsPath)
	if cfg.Filter != "" && endpoint != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + strings.TrimLeft(cfg.Filter, "?&")
	}
	return &AlertmanagerClient{
		id:         cfg.ID,
		endpoint:   endpoint,
		username:   cfg.Username,
		password:   cfg.Password,
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// ID returns the configured backend identifier.
func (c *AlertmanagerClient) ID() string { return c.id }

// Kind reports KindAlertmanager.
func (c *AlertmanagerClient) Kind() models.BackendKind { return models.KindAlertmanager }

// Poll fetches active alerts once. A non-empty list means the backend is alerting.
func (c *AlertmanagerClient) Poll(ctx context.Context) models.PollResult {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	alerts, failure, err := c.fetchAlerts(ctx)
	if err != nil {
		return finish(models.Unreachable(c.id, c.Kind(), failure, err), start)
	}
	if len(alerts) > 0 {
		return finish(models.Alerting(c.id, c.Kind(), len(alerts)), start)
	}
	return finish(models.Healthy(c.id, c.Kind()), start)
}

func (c *AlertmanagerClient) fetchAlerts(ctx context.Context) ([]Alert, models.Failure, error) {
	const op = "alertmanager.poll"
	if c.endpoint == "" {
		return nil, models.FailureTransport, utils.NewAppError(op, "base URL not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, models.FailureTransport, utils.NewAppError(op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.FailureTransport, utils.NewAppError(op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, models.FailureTransport, utils.NewAppError(op, fmt.Sprintf("alertmanager returned %s", resp.Status), nil)
	}

	dec := json.NewDecoder(resp.Body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, models.FailureSource, utils.NewAppError(op, "decode alerts", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, models.FailureSource, utils.NewAppError(op, "trailing data after alert list", nil)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, models.FailureSource, utils.NewAppError(op, "alert list is not an array", nil)
	}
	var alerts []Alert
	if err := json.Unmarshal(trimmed, &alerts); err != nil {
		return nil, models.FailureSource, utils.NewAppError(op, "decode alerts", err)
	}
	return alerts, models.FailureNone, nil
}
