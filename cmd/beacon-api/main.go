package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/alert-beacon/internal/api"
	"github.com/miradorstack/alert-beacon/internal/cache"
	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/engine"
	"github.com/miradorstack/alert-beacon/internal/metrics"
	"github.com/miradorstack/alert-beacon/internal/snapshot"
	"github.com/miradorstack/alert-beacon/internal/upstream"
	"github.com/miradorstack/alert-beacon/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting beacon-api",
		slog.String("address", cfg.Server.Address),
		slog.Duration("interval", cfg.Poll.Interval),
		slog.Int("backends", len(cfg.Backends)),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	backends, err := upstream.Build(cfg.Backends)
	if err != nil {
		logger.Error("failed to build backends", slog.Any("error", err))
		os.Exit(1)
	}

	store := snapshot.NewStore()
	fanout := snapshot.NewFanout(logger, store)

	if cfg.Sinks.File.Enabled {
		fileSink, err := snapshot.NewFileSink(cfg.Sinks.File.Path)
		if err != nil {
			logger.Error("failed to prepare snapshot file", slog.String("path", cfg.Sinks.File.Path), slog.Any("error", err))
			os.Exit(1)
		}
		fanout.AddSink("file", fileSink)
	}

	if cfg.Cache.Enabled {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfigFrom(cfg.Cache))
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			defer provider.Close()
			fanout.AddSink("valkey", snapshot.NewCacheSink(provider, cfg.Cache.Key, cfg.Cache.SnapshotTTL))
		}
	}

	var grpcServer *api.Server
	if cfg.Server.GRPCAddress != "" {
		grpcServer, err = api.NewServer(cfg.Server)
		if err != nil {
			logger.Error("failed to create gRPC server", slog.Any("error", err))
			os.Exit(1)
		}
		grpcServer.Reporter().SetBackends(backendIDs(backends))
		fanout.AddSink("grpc-health", grpcServer.Reporter())
	}

	aggregator := engine.NewAggregator(logger, backends, fanout, engine.Options{
		Mode:      cfg.Aggregation.Mode,
		HideClear: cfg.Labels.HideClear,
	})

	httpServer, err := api.NewHTTPServer(cfg.Server, api.NewHandler(store, cfg.Server.AllowOrigin, logger))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("http server listening", slog.String("address", httpServer.Address()))
		if err := httpServer.Start(); err != nil {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	if grpcServer != nil {
		go func() {
			logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
			if serveErr := grpcServer.Start(); serveErr != nil {
				logger.Error("gRPC server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	go reloadOnHangup(ctx, logger, configPath, func(backends []upstream.Backend) {
		aggregator.SetBackends(backends)
		if grpcServer != nil {
			grpcServer.Reporter().SetBackends(backendIDs(backends))
		}
	})

	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		_ = aggregator.Run(ctx, cfg.Poll.Interval)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	<-aggDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("beacon-api stopped", slog.Duration("cycle_p95", aggregator.CycleLatency(95)))
}

func backendIDs(backends []upstream.Backend) []string {
	ids := make([]string, 0, len(backends))
	for _, b := range backends {
		ids = append(ids, b.ID())
	}
	return ids
}

// reloadOnHangup re-reads the backend list on SIGHUP and hands it to apply. Listener and sink
// settings need a restart.
func reloadOnHangup(ctx context.Context, logger *slog.Logger, configPath string, apply func([]upstream.Backend)) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := config.Load(configPath)
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			logger.Error("config reload rejected", slog.Any("error", err))
			continue
		}
		backends, err := upstream.Build(cfg.Backends)
		if err != nil {
			logger.Error("config reload rejected", slog.Any("error", err))
			continue
		}
		apply(backends)
		logger.Info("backends reloaded", slog.Int("backends", len(backends)))
	}
}
