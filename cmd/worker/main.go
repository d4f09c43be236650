package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chiyaghar/teashop/internal/config"
	"github.com/chiyaghar/teashop/internal/messaging"
	"github.com/chiyaghar/teashop/internal/notify"
	"github.com/chiyaghar/teashop/internal/telemetry"
	"github.com/chiyaghar/teashop/internal/worker"
)

const consumerGroup = "teashop-notification-worker"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Parse()
	if err != nil {
		logger.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "teashop-worker", "0.1.0", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.KafkaNotificationTopic, consumerGroup, messaging.WithLogger(logger))
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	dispatcher := notify.NewDispatcher(logger,
		notify.NewSparrowProvider(cfg.Sparrow.URL, cfg.Sparrow.Token, cfg.Sparrow.From, httpClient),
		notify.NewTwilioProvider(cfg.Twilio.URL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, httpClient),
	)

	notificationHandler := worker.NewNotificationHandler(dispatcher, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaNotificationTopic)

	if err := consumer.Consume(ctx, notificationHandler.Handle); err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
