package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/raintree-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/raintree-service/internal/adapter/kafka"
	"github.com/couchcryptid/raintree-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/raintree-service/internal/config"
	"github.com/couchcryptid/raintree-service/internal/domain"
	"github.com/couchcryptid/raintree-service/internal/layout"
	"github.com/couchcryptid/raintree-service/internal/observability"
	"github.com/couchcryptid/raintree-service/internal/tree"
	"github.com/couchcryptid/raintree-service/internal/viewer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Forecast source (feature-flagged via FORECAST_ENABLED).
	var forecaster domain.Forecaster
	if cfg.ForecastEnabled {
		client := openmeteo.NewClient(openmeteo.Options{
			BaseURL:   cfg.ForecastBaseURL,
			Latitude:  cfg.ForecastLatitude,
			Longitude: cfg.ForecastLongitude,
			Timezone:  cfg.ForecastTimezone,
			Timeout:   cfg.ForecastTimeout,
		}, metrics, logger)
		forecaster = openmeteo.NewCachedForecaster(client, cfg.ForecastCacheSize, cfg.ForecastCacheTTL, metrics)
		metrics.ForecastEnabled.Set(1)
		logger.Info("open-meteo forecast enabled",
			"latitude", cfg.ForecastLatitude,
			"longitude", cfg.ForecastLongitude,
			"cache_size", cfg.ForecastCacheSize,
			"cache_ttl", cfg.ForecastCacheTTL,
		)
	} else {
		logger.Info("open-meteo forecast disabled")
	}

	opts := viewer.Options{
		Parser: tree.Parser{MaxDepth: cfg.TreeMaxDepth},
		Layout: layout.Params{
			NodeBreadth:  cfg.LayoutNodeBreadth,
			LevelSpacing: cfg.LayoutLevelSpacing,
			PaddingX:     cfg.LayoutPaddingX,
			PaddingY:     cfg.LayoutPaddingY,
		},
		Forecaster: forecaster,
	}

	// Prediction events (enabled when KAFKA_BROKERS is set).
	var writer *kafkaadapter.Writer
	if cfg.PublishEnabled() {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		opts.Publisher = writer
		logger.Info("prediction publishing enabled", "topic", cfg.KafkaPredictionTopic, "brokers", cfg.KafkaBrokers)
	}

	v := viewer.New(opts, metrics, logger)

	// A bad tree file is not fatal: the service stays up, reports not ready,
	// and accepts a replacement via POST /api/tree.
	if _, err := v.LoadFile(cfg.TreePath); err != nil {
		logger.Warn("starting without a tree", "path", cfg.TreePath, "error", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, v, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
