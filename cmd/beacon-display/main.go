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

	"github.com/miradorstack/alert-beacon/internal/cache"
	"github.com/miradorstack/alert-beacon/internal/config"
	"github.com/miradorstack/alert-beacon/internal/metrics"
	"github.com/miradorstack/alert-beacon/internal/presentation"
	"github.com/miradorstack/alert-beacon/internal/snapshot"
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
	if err := config.ValidatePresentation(cfg); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	p := cfg.Presentation
	logger.Info("starting beacon-display",
		slog.String("source", p.Source),
		slog.Duration("interval", p.Interval),
		slog.Int("normal_duration", p.NormalDuration),
		slog.Int("error_duration", p.ErrorDuration),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var source snapshot.Source
	switch p.Source {
	case config.SourceFile:
		source = snapshot.NewFileSource(p.FilePath)
	case config.SourceValkey:
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfigFrom(cfg.Cache))
		if err != nil {
			logger.Error("valkey unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		defer provider.Close()
		source = snapshot.NewCacheSource(provider, cfg.Cache.Key)
	default:
		source = snapshot.NewHTTPSource(p.APIURL, p.Timeout)
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

	renderer := presentation.MultiRenderer{
		presentation.LogRenderer{Logger: logger},
		presentation.MetricsRenderer{},
	}
	runner := presentation.NewRunner(source, presentation.Thresholds{
		Interval:       p.Interval,
		NormalDuration: p.NormalDuration,
		ErrorDuration:  p.ErrorDuration,
	}, p.Timeout, renderer, logger)

	_ = runner.Run(ctx)
	logger.Info("shutdown signal received")

	if metricsServer != nil {
		metricsCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancel()
	}
	logger.Info("beacon-display stopped")
}
