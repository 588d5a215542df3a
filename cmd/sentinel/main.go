// Package main is the entry point for the fleet-sentinel detection service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/config"
	"fleet-sentinel/internal/detection"
	"fleet-sentinel/internal/ingest"
	"fleet-sentinel/internal/kafka"
	"fleet-sentinel/internal/logging"
	"fleet-sentinel/internal/metrics"
	"fleet-sentinel/internal/queue"
	"fleet-sentinel/internal/schema"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"version", version,
		"http_port", cfg.Server.HTTPPort,
		"auth_enabled", cfg.Auth.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
		"redis_enabled", cfg.Redis.Enabled,
		"power_average_mode", cfg.Detection.AbnormalPower.AverageMode,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("sentinel exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	detectionMetrics := metrics.NewDetection(registry)

	outbox := queue.NewRingBuffer[alerting.Alert](cfg.Outbox.Size)
	sink := alerting.NewSink(
		alerting.WithOutbox(outbox),
		alerting.WithMetrics(detectionMetrics),
		alerting.WithLogger(logger.With("component", "sink")),
	)

	engine, err := detection.NewEngine(cfg.Detection, sink,
		detection.WithLogger(logger),
		detection.WithMetrics(detectionMetrics),
	)
	if err != nil {
		return err
	}

	validator := schema.NewValidatorWithConfig(cfg.Validation)
	handler := ingest.NewHandler(engine, validator, sink, logger).
		WithMaxPayload(cfg.Ingest.MaxPayloadSize).
		WithMaxBatch(cfg.Ingest.MaxBatchSize).
		WithOutbox(outbox)

	channels := []alerting.Channel{alerting.NewLogChannel(logger.With("component", "alerts"))}
	if cfg.Webhook.Enabled {
		channels = append(channels, alerting.NewWebhookChannel(cfg.Webhook.Name, cfg.Webhook.URL, cfg.Webhook.Headers))
	}
	if cfg.Slack.Enabled {
		channels = append(channels, alerting.NewSlackChannel(cfg.Slack.WebhookURL, cfg.Slack.Channel, cfg.Slack.Username))
	}

	var closers []func() error

	if cfg.Redis.Enabled {
		client, err := alerting.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		closers = append(closers, client.Close)
		channels = append(channels, alerting.NewRedisChannel(client, cfg.Redis.Channel))
		handler.WithCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		kafkaLogger := logger.With("component", "kafka")
		if cfg.Kafka.AlertsTopic != "" {
			producer, err := kafka.NewProducer(&cfg.Kafka, kafkaLogger)
			if err != nil {
				return err
			}
			closers = append(closers, producer.Close)
			channels = append(channels, kafka.NewAlertChannel(producer))
		}

		consumer, err = kafka.NewConsumer(&cfg.Kafka, kafka.EventHandler(engine, validator, kafkaLogger), kafkaLogger)
		if err != nil {
			return err
		}
		handler.WithCheck("kafka", cfg.Kafka.Ping)
	}

	forwarder := alerting.NewForwarder(outbox, cfg.Forwarder, logger, channels...)
	forwarder.Start(ctx)

	if consumer != nil {
		if err := consumer.StartAsync(); err != nil {
			return err
		}
	}

	var limiter *ingest.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ingest.NewRateLimiter(cfg.RateLimit)
		defer limiter.Stop()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      ingest.WithMiddleware(handler.Routes(registry), cfg, limiter, logger.With("component", "http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("kafka consumer stop error", "error", err)
		}
	}

	// Workers drain the outbox before returning.
	forwarder.Stop()
	cancel()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	fm := forwarder.Metrics()
	stats := engine.Stats()
	logger.Info("shutdown complete",
		"alerts_recorded", sink.Len(),
		"alerts_delivered", fm.Delivered,
		"alerts_dead_lettered", fm.DeadLetter,
		"failed_login_sources", stats.FailedLoginSources,
		"power_devices", stats.PowerDevices,
	)
	return nil
}
