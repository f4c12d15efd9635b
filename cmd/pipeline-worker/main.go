package main

import (
	"context"
	"crypto/tls"
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
	"github.com/redis/go-redis/v9"

	"github.com/agendia-app/agendia-platform/cmd/mainconfig"
	appconfig "github.com/agendia-app/agendia-platform/internal/config"
	"github.com/agendia-app/agendia-platform/internal/conversation"
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
	logger.Info("starting pipeline worker", "env", cfg.Env, "workers", cfg.WorkerCount)

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

	if cfg.GatewayAPIKey == "" {
		logger.Error("GATEWAY_API_KEY is required")
		os.Exit(1)
	}
	gatewayClient, err := gateway.New(gateway.Config{
		BaseURL: cfg.GatewayBaseURL,
		APIKey:  cfg.GatewayAPIKey,
		Timeout: cfg.GatewayTimeout,
	})
	if err != nil {
		logger.Error("failed to build gateway client", "error", err)
		os.Exit(1)
	}
	messenger := messaging.NewService(gatewayClient, logger)

	var memory conversation.MemoryStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		memory = conversation.NewRedisMemoryStore(redis.NewClient(opts), cfg.ExtractionMemoryTTL)
		logger.Info("extraction memory backed by Redis", "addr", cfg.RedisAddr)
	} else {
		memory = conversation.NewInMemoryStore(cfg.ExtractionMemoryTTL)
		logger.Warn("extraction memory is process-local; run a single worker or configure REDIS_ADDR")
	}

	companies := store.NewCompanyStore(pool)
	clients := store.NewClientStore(pool)
	appointments := store.NewAppointmentStore(pool)

	assembler := conversation.NewAssembler(companies, clients, appointments, memory, logger)
	validator := validation.NewPipeline(appointments, logger)
	pipe := conversation.NewPipeline(
		assembler,
		memory,
		validator,
		conversation.NewTemplateReplies(),
		messenger,
		messaging.NewStore(pool),
		appointments,
		clients,
		logger,
		conversation.WithReplyTimeout(cfg.ReplyTimeout),
	)

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

	registry := prometheus.NewRegistry()
	dispatcher := queue.NewDispatcher(
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
		queue.NewJobStore(pool),
		logger,
		metrics.NewPipelineMetrics(registry),
		queue.WithWorkerCount(cfg.WorkerCount),
		queue.WithMaxAttempts(cfg.JobMaxAttempts),
		queue.WithRetryBaseDelay(cfg.RetryBaseDelay),
		queue.WithReceiveWaitSeconds(cfg.ReceiveWaitSecs),
		queue.WithReceiveBatchSize(cfg.ReceiveBatchSize),
	)

	dispatcher.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down pipeline worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	waitCh := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("pipeline worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("pipeline worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
