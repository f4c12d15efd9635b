package followup

import (
	"context"
	"time"

	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// Sweeper drives the engine on a fixed interval until the context is
// cancelled.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *logging.Logger
}

// NewSweeper creates a periodic sweep runner.
func NewSweeper(engine *Engine, interval time.Duration, logger *logging.Logger) *Sweeper {
	if engine == nil {
		panic("followup: engine cannot be nil")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{engine: engine, interval: interval, logger: logger}
}

// Run sweeps immediately, then on every tick. It blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("followup sweeper started", "interval", s.interval.String())

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("followup sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.engine.ProcessAllCompanies(ctx); err != nil {
		s.logger.Error("followup sweep failed", "error", err)
	}
}
