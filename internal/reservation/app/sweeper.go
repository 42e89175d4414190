package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/argsms/rangepool/internal/clock"
)

// Sweeper periodically releases expired temporary holds. Each tick processes
// at most one bounded engine sweep; the domain expiry windows themselves are
// the engine's concern.
type Sweeper struct {
	engine   *Engine
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(engine *Engine, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		engine:   engine,
		clock:    clk,
		interval: interval,
		logger:   logger.With("service", "sweeper"),
	}
}

// Run blocks, sweeping on every tick until the context is cancelled.
// Individual sweep failures are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.engine.SweepExpired(ctx, s.clock.Now()); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}
