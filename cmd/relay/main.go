package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"corelay/internal/awsutil"
	"corelay/internal/config"
	"corelay/internal/delivery"
	"corelay/internal/httpserver"
	"corelay/internal/logging"
	"corelay/internal/observability"
	"corelay/internal/providers/openai"
	"corelay/internal/providers/twilio"
	sqsqueue "corelay/internal/queue/sqs"
	"corelay/internal/service"
	"corelay/internal/store/memory"
	"corelay/internal/store/pg"
	"corelay/internal/util"
)

func main() {
	cfg := config.LoadRelay()
	logging.Init("relay", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.Register(prometheus.DefaultRegisterer)

	var st service.Store
	readyChecks := []httpserver.ReadyzCheck{}
	if cfg.DBDSN != "" {
		db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
		if err != nil {
			slog.Error("relay db connect failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		st = pg.New(db)
		readyChecks = append(readyChecks, func(ctx context.Context) error {
			return db.Ping(ctx)
		})
	} else {
		slog.Warn("DB_DSN not set, using in-memory store")
		st = memory.New()
	}

	carrier := &twilio.Client{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		BaseURL:    cfg.TwilioBaseURL,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
	sender := &delivery.Sender{
		Carrier: carrier,
		Limiter: rate.NewLimiter(rate.Limit(cfg.TwilioRPSPerPod), cfg.TwilioBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "twilio",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
		}),
	}

	moderator := &openai.Client{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}

	var events service.OutcomePublisher
	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("relay sqs client init failed", "err", err)
			os.Exit(1)
		}
		events = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	}

	svc := &service.RelayService{
		Store:     st,
		Moderator: moderator,
		Sender:    sender,
		Events:    events,
		MessageID: util.NewMessageID,
		PairID:    util.NewPairID,
	}

	s := httpserver.New()
	api := &httpserver.API{
		Svc:             svc,
		VerifySignature: twilio.VerifySignature,
		AuthToken:       cfg.TwilioAuthToken,
		PublicURL:       cfg.PublicWebhookURL,
	}
	api.Register(s.Mux)

	s.Mux.Handle("/metrics", promhttp.Handler())
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, readyChecks...))

	s.Mux.Use(httpserver.Metrics(observability.APIRequests))
	handler := httpserver.Logging(s.Mux)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("relay shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("relay listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("relay server failed", "err", err)
		os.Exit(1)
	}
}
