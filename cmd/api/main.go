package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agendia-app/agendia-platform/cmd/mainconfig"
	"github.com/agendia-app/agendia-platform/internal/api/handlers"
	"github.com/agendia-app/agendia-platform/internal/api/router"
	appconfig "github.com/agendia-app/agendia-platform/internal/config"
	"github.com/agendia-app/agendia-platform/internal/conversation"
	"github.com/agendia-app/agendia-platform/internal/followup"
	"github.com/agendia-app/agendia-platform/internal/messaging"
	"github.com/agendia-app/agendia-platform/internal/messaging/gateway"
	"github.com/agendia-app/agendia-platform/internal/observability/metrics"
	"github.com/agendia-app/agendia-platform/internal/queue"
	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/internal/validation"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agendia API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var queueClient queue.Client
	if cfg.UseMemoryQueue {
		queueClient = queue.NewMemoryQueue(1024)
		logger.Warn("using in-memory queue; jobs are lost on restart")
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queueClient = queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
	}

	jobStore := queue.NewJobStore(pool)
	publisher := queue.NewPublisher(queueClient, jobStore, logger)

	var transcriber handlers.Transcriber
	var sender *messaging.Service
	if cfg.GatewayAPIKey != "" {
		gatewayClient, err := gateway.New(gateway.Config{
			BaseURL: cfg.GatewayBaseURL,
			APIKey:  cfg.GatewayAPIKey,
			Timeout: cfg.GatewayTimeout,
		})
		if err != nil {
			logger.Error("failed to build gateway client", "error", err)
			os.Exit(1)
		}
		sender = messaging.NewService(gatewayClient, logger)
		transcriber = sender
	} else {
		logger.Warn("GATEWAY_API_KEY not set; audio transcription and manual sweeps disabled")
	}

	registry := prometheus.NewRegistry()

	companies := store.NewCompanyStore(pool)
	clients := store.NewClientStore(pool)
	appointments := store.NewAppointmentStore(pool)

	routerCfg := &router.Config{
		Logger:         logger,
		Webhook:        handlers.NewWebhookHandler(publisher, transcriber, logger),
		Health:         handlers.NewHealthHandler(jobStore, logger),
		JobStatus:      handlers.NewJobStatusHandler(jobStore, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	// The manual sweep endpoint shares the engine with the follow-up worker.
	if sender != nil {
		engine := followup.NewEngine(
			companies,
			clients,
			appointments,
			followup.NewModeStore(pool),
			followup.NewNotificationStore(pool),
			sender,
			logger,
			followup.WithMetrics(metrics.NewFollowUpMetrics(registry)),
		)
		routerCfg.FollowUps = handlers.NewFollowUpHandler(engine, logger)
	}

	// With the memory queue there is no external worker, so drain jobs in
	// process. Requires the gateway, otherwise replies have nowhere to go.
	var dispatcher *queue.Dispatcher
	if cfg.UseMemoryQueue && sender != nil {
		memory := conversation.NewInMemoryStore(cfg.ExtractionMemoryTTL)
		assembler := conversation.NewAssembler(companies, clients, appointments, memory, logger)
		pipe := conversation.NewPipeline(
			assembler,
			memory,
			validation.NewPipeline(appointments, logger),
			conversation.NewTemplateReplies(),
			sender,
			messaging.NewStore(pool),
			appointments,
			clients,
			logger,
			conversation.WithReplyTimeout(cfg.ReplyTimeout),
		)
		dispatcher = queue.NewDispatcher(
			queueClient,
			func(ctx context.Context, job queue.Payload) error {
				return pipe.ProcessInbound(ctx, conversation.InboundMessage{
					JobID:          job.JobID.String(),
					CompanyID:      job.CompanyID,
					SubjectAddress: job.SubjectAddress,
					RawText:        job.RawText,
					Metadata:       job.Metadata,
					ReceivedAt:     job.ReceivedAt,
				})
			},
			jobStore,
			logger,
			metrics.NewPipelineMetrics(registry),
			queue.WithWorkerCount(cfg.WorkerCount),
			queue.WithMaxAttempts(cfg.JobMaxAttempts),
			queue.WithRetryBaseDelay(cfg.RetryBaseDelay),
		)
		dispatcher.Start(ctx)
		logger.Info("in-process dispatcher consuming the memory queue")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}

	logger.Info("server stopped")
}
