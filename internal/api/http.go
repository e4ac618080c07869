// Package api exposes the published snapshot over HTTP and gRPC.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
)

// SnapshotReader is the read side of the snapshot store.
type SnapshotReader interface {
	Snapshot() models.Snapshot
}

// NewHandler serves the status routes read by dashboards and the display process.
func NewHandler(store SnapshotReader, allowOrigin string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{store: store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /internal", h.internal)
	mux.HandleFunc("GET /source", h.internal)
	mux.HandleFunc("GET /alerts", h.alerts)
	mux.HandleFunc("GET /label", h.labels)
	mux.HandleFunc("GET /status", h.status)
	mux.Handle("GET /metrics", promhttp.Handler())
	return withCORS(mux, allowOrigin)
}

type handler struct {
	store  SnapshotReader
	logger *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("API healthy"))
}

func (h *handler) internal(w http.ResponseWriter, _ *http.Request) {
	status := h.store.Snapshot().Status
	h.writeJSON(w, struct {
		InternalError bool `json:"internalError"`
	}{status.InternalError})
}

func (h *handler) alerts(w http.ResponseWriter, _ *http.Request) {
	status := h.store.Snapshot().Status
	h.writeJSON(w, struct {
		HasActiveAlerts bool `json:"hasActiveAlerts"`
	}{status.HasActiveAlerts})
}

func (h *handler) labels(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.store.Snapshot().Labels)
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.store.Snapshot())
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("write response", slog.Any("error", err))
	}
}

func withCORS(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPServer runs the status handler on the configured address.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
}

// NewHTTPServer binds cfg.Address.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) (*HTTPServer, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
		},
		listener: lis,
	}, nil
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *HTTPServer) Start() error {
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Address exposes the bound listener address.
func (s *HTTPServer) Address() string {
	return s.listener.Addr().String()
}
