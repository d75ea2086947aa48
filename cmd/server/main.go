package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/api"
	"github.com/nammaooru/civicreport/internal/auth"
	"github.com/nammaooru/civicreport/internal/config"
	"github.com/nammaooru/civicreport/internal/db"
	"github.com/nammaooru/civicreport/internal/events"
	"github.com/nammaooru/civicreport/internal/geocoding"
	"github.com/nammaooru/civicreport/internal/observability"
	"github.com/nammaooru/civicreport/internal/service"
	"github.com/nammaooru/civicreport/internal/storage"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	cache, err := db.InitRedis(cfg.RedisAddr, cfg.GeocodingCacheTTL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer cache.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	geocoder := geocoding.NewClient(geocoding.Options{
		BaseURL:    cfg.GeocodingBaseURL,
		APIKey:     cfg.GeocodingAPIKey,
		Timeout:    cfg.GeocodingTimeout,
		Retries:    cfg.GeocodingRetries,
		RetryDelay: cfg.GeocodingRetryDelay,
		Fallback: geocoding.Fallback{
			City:    cfg.FallbackCity,
			State:   cfg.FallbackState,
			Country: cfg.FallbackCountry,
		},
		Cache: cache,
	}, logger, metricsRegistry)

	images, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect object storage: %w", err)
	}

	var publisher events.Publisher
	if cfg.EventsEnabled {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventQueue, logger, metricsRegistry)
		if err != nil {
			// Events are best effort; the server still runs without a broker.
			logger.Warn("message broker unavailable, events disabled", zap.Error(err))
		} else {
			publisher = amqpPub
			defer func() {
				if err := amqpPub.Close(); err != nil {
					logger.Warn("failed to close broker connection", zap.Error(err))
				}
			}()
		}
	}

	reports := service.New(pg, geocoder, images, publisher, metricsRegistry, logger, cfg.MaxCorrectionDistanceM)
	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)

	srvDeps := api.NewServer(logger, pg, reports, geocoder, tokens, metricsRegistry, cfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      srvDeps.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Civic report server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
