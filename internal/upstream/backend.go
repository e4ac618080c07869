// Package upstream polls monitoring backends and normalises each reply into a models.Outcome.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
)

// Backend is one upstream monitoring source. Poll never returns an error: every failure is
// folded into an unreachable result.
type Backend interface {
	ID() string
	Kind() models.BackendKind
	Poll(ctx context.Context) models.PollResult
}

// Build constructs backends from configuration, preserving the configured order.
func Build(cfgs []config.BackendConfig) ([]Backend, error) {
	backends := make([]Backend, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Kind {
		case config.KindAlertmanager:
			backends = append(backends, NewAlertmanagerClient(c))
		case config.KindZabbix:
			backends = append(backends, NewZabbixClient(c))
		default:
			return nil, fmt.Errorf("backend %s: unsupported kind %q", c.ID, c.Kind)
		}
	}
	return backends, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func resolvePath(baseURL, p string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return ""
	}
	if p == "" {
		return baseURL
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// withTimeout bounds a poll even when the caller passed an unbounded context.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func finish(res models.PollResult, start time.Time) models.PollResult {
	res.At = start
	res.Duration = time.Since(start)
	return res
}
