package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/models"
)

// Server wraps the gRPC health server and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	listener   net.Listener
	reporter   *HealthReporter
}

// NewServer constructs a gRPC server bound to the configured gRPC address.
func NewServer(cfg config.ServerConfig, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	reporter := NewHealthReporter()
	healthpb.RegisterHealthServer(grpcServer, reporter.health)
	grpc_prometheus.Register(grpcServer)

	reflection.Register(grpcServer)

	return &Server{
		cfg:        cfg,
		grpcServer: grpcServer,
		listener:   lis,
		reporter:   reporter,
	}, nil
}

// Reporter returns the publisher that keeps health statuses in sync with snapshots.
func (s *Server) Reporter() *HealthReporter { return s.reporter }

// Start serves incoming gRPC requests until Stop/Shutdown is invoked.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown marks every service NOT_SERVING and attempts a graceful stop, falling back to
// Stop after ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.reporter.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address (useful for tests).
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}

// HealthReporter maps snapshots onto grpc.health.v1 statuses. Service "" is the aggregate
// and each backend ID is its own service.
type HealthReporter struct {
	health *health.Server

	mu       sync.Mutex
	backends []string
	known    map[string]struct{}
}

// NewHealthReporter starts with the aggregate SERVING, matching an empty store.
func NewHealthReporter() *HealthReporter {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{health: h, known: make(map[string]struct{})}
}

// SetBackends fixes the per-backend service list from the next Publish. A configured backend
// with no label (hidden CLEAR) reports SERVING.
func (r *HealthReporter) SetBackends(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append([]string(nil), ids...)
}

// Publish implements snapshot.Publisher.
func (r *HealthReporter) Publish(_ context.Context, snap models.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.health.SetServingStatus("", servingStatus(snap.Status.Healthy()))

	seen := make(map[string]struct{}, len(r.backends)+len(snap.Labels))
	for _, id := range r.backends {
		seen[id] = struct{}{}
		label, ok := snap.Labels[id]
		r.health.SetServingStatus(id, servingStatus(!ok || label == models.LabelClear))
	}
	for id, label := range snap.Labels {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		r.health.SetServingStatus(id, servingStatus(label == models.LabelClear))
	}
	for id := range r.known {
		if _, ok := seen[id]; !ok {
			r.health.SetServingStatus(id, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		}
	}
	r.known = seen
	return nil
}

// Check answers a health query in process.
func (r *HealthReporter) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := r.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
