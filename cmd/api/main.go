package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chiyaghar/teashop/internal/auth"
	"github.com/chiyaghar/teashop/internal/broadcast"
	"github.com/chiyaghar/teashop/internal/config"
	"github.com/chiyaghar/teashop/internal/messaging"
	"github.com/chiyaghar/teashop/internal/notify"
	"github.com/chiyaghar/teashop/internal/orders"
	"github.com/chiyaghar/teashop/internal/store"
	"github.com/chiyaghar/teashop/internal/telemetry"
)

const (
	serviceName    = "teashop-api"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Parse()
	if err != nil {
		logger.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer")
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		return errors.Wrap(err, "init meter")
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	st := store.Open(ctx, cfg, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("failed to close order store", "error", err)
		}
	}()

	hub := broadcast.NewHub(logger, broadcast.WithKeepAlive(cfg.KeepAlive))

	smsClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	dispatcher := notify.NewDispatcher(logger,
		notify.NewSparrowProvider(cfg.Sparrow.URL, cfg.Sparrow.Token, cfg.Sparrow.From, smsClient),
		notify.NewTwilioProvider(cfg.Twilio.URL, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, smsClient),
	)

	var (
		publisher orders.Publisher = hub
		notifier  orders.Notifier  = dispatcher
		relay     *messaging.StatusRelay
	)
	if len(cfg.KafkaBrokers) > 0 {
		relay = messaging.NewStatusRelay(cfg.KafkaBrokers, cfg.KafkaStatusTopic, hub, logger)
		defer func() { _ = relay.Close() }()
		publisher = relay

		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
		defer func() { _ = producer.Close() }()
		notifier = notify.NewQueue(producer, dispatcher, logger)

		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers)
	}

	manager := orders.NewManager(st, publisher, notifier, logger)
	defer manager.Wait()

	rt := router{
		orders:  orders.NewHandler(manager, cfg.Production(), logger),
		streams: broadcast.NewHandler(hub, cfg.CORSOrigins, logger),
		staff:   auth.NewStaff(cfg.AdminKey, cfg.JWTSecret, cfg.AdminEmails, logger).Require,
		store:   st,
		metrics: metricsHandler,
		origins: cfg.CORSOrigins,
		logger:  logger,
	}

	// No WriteTimeout: event streams stay open for as long as the client
	// listens.
	server := &http.Server{
		Addr: cfg.Addr,
		Handler: otelhttp.NewHandler(rt.handler(), serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	server.RegisterOnShutdown(hub.Close)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api", "addr", cfg.Addr, "store", st.Kind(), "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	return g.Wait()
}
