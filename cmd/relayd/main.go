// Command relayd serves the submission relay over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kart-io/relayhub/observability"
	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/enrichment"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/pkg/platforms/telegram"
	"github.com/kart-io/relayhub/pkg/relay"
	httptransport "github.com/kart-io/relayhub/transport/http"
)

const (
	shutdownTimeout   = 30 * time.Second
	originCacheTTL    = time.Hour
	originCacheBounds = 1024
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New(config.WithDefaults(), config.WithEnvDefaults())
	if err != nil {
		return err
	}
	log := cfg.LoggerInstance

	// Missing credentials are reported per request; the process still starts.
	if err := cfg.Validate(); err != nil {
		log.Warn("Configuration incomplete", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	reader, err := observability.NewPrometheusReader(registry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	telemetry, err := observability.NewTelemetryProvider(cfg.Telemetry, observability.WithMetricReader(reader))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	opts := []relay.Option{relay.WithTelemetry(telemetry)}
	if cfg.Enrichment.Enabled() {
		enricher, closeCache := newEnricher(ctx, cfg, log)
		defer closeCache()
		opts = append(opts, relay.WithEnricher(enricher))
	} else {
		log.Info("Origin enrichment disabled")
	}

	sender := telegram.NewSender(telegram.OptionsFromConfig(cfg), log)
	svc := relay.NewService(cfg, sender, opts...)
	serverCfg := httptransport.ConfigFromService(cfg)
	serverCfg.Registry = registry
	server := httptransport.NewServer(serverCfg, svc, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(
		server.Stop(shutdownCtx),
		telemetry.Shutdown(shutdownCtx),
	)
}

// newEnricher builds the origin enricher, backed by Redis when configured
// and reachable, otherwise by an in-process cache.
func newEnricher(ctx context.Context, cfg *config.Config, log logger.Logger) (*enrichment.Enricher, func()) {
	var (
		cache     enrichment.Cache = enrichment.NewMemoryCache(originCacheTTL, originCacheBounds)
		closeFunc                  = func() {}
	)

	if cfg.Redis != nil {
		client, err := enrichment.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("Redis unavailable, using in-memory origin cache", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = enrichment.NewRedisCache(client, cfg.Redis.CacheTTL, log)
			closeFunc = func() { _ = client.Close() }
			log.Info("Origin cache backed by Redis", "addr", cfg.Redis.Addr)
		}
	}

	lookuper := enrichment.NewIPInfoClient(cfg.Enrichment.BaseURL, cfg.Enrichment.Token)
	return enrichment.NewEnricher(lookuper, cfg.Enrichment.Timeout,
		enrichment.WithCache(cache),
		enrichment.WithLogger(log),
	), closeFunc
}
