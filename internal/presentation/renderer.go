package presentation

import (
	"context"
	"log/slog"

	"github.com/miradorstack/alert-beacon/internal/metrics"
)

// Renderer displays entity states. It is called from the machine's goroutine only.
type Renderer interface {
	// Render is called whenever an entity changes state, and once with from == "" when the
	// entity is created.
	Render(id string, from, to State)
	// Release is called when an entity is torn down.
	Release(id string)
}

// LogRenderer logs state changes.
type LogRenderer struct {
	Logger *slog.Logger
}

func (r LogRenderer) Render(id string, from, to State) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if to.IsError() || to.IsInternalError() {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "entity state changed",
		slog.String("entity", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

func (r LogRenderer) Release(id string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("entity removed", slog.String("entity", id))
}

// MetricsRenderer exports the current state of each entity as a gauge.
type MetricsRenderer struct{}

func (MetricsRenderer) Render(id string, from, to State) {
	metrics.SetEntityState(id, string(from), string(to))
}

func (MetricsRenderer) Release(id string) {
	metrics.DeleteEntity(id)
}

// MultiRenderer forwards to every renderer in order.
type MultiRenderer []Renderer

func (m MultiRenderer) Render(id string, from, to State) {
	for _, r := range m {
		r.Render(id, from, to)
	}
}

func (m MultiRenderer) Release(id string) {
	for _, r := range m {
		r.Release(id)
	}
}
