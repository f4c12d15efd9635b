package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/agendia-app/agendia-platform/internal/config"
	"github.com/agendia-app/agendia-platform/internal/followup"
	"github.com/agendia-app/agendia-platform/internal/messaging"
	"github.com/agendia-app/agendia-platform/internal/messaging/gateway"
	"github.com/agendia-app/agendia-platform/internal/observability/metrics"
	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting followup worker", "env", cfg.Env, "interval", cfg.SweepInterval.String())

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

	registry := prometheus.NewRegistry()
	engine := followup.NewEngine(
		store.NewCompanyStore(pool),
		store.NewClientStore(pool),
		store.NewAppointmentStore(pool),
		followup.NewModeStore(pool),
		followup.NewNotificationStore(pool),
		messaging.NewService(gatewayClient, logger),
		logger,
		followup.WithMetrics(metrics.NewFollowUpMetrics(registry)),
	)
	sweeper := followup.NewSweeper(engine, cfg.SweepInterval, logger)

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

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down followup worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	select {
	case <-done:
		logger.Info("followup worker stopped")
	case <-shutdownCtx.Done():
		logger.Error("followup worker shutdown timed out", "error", shutdownCtx.Err())
	}
}
