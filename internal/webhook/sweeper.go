package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/khanyab/applyflow/internal/metrics"
)

// Sweeper periodically retries unprocessed webhook deliveries.
type Sweeper struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
	stop       chan struct{}
}

// NewSweeper creates a new webhook sweeper.
func NewSweeper(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.reconciler.Sweep(ctx)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("webhook sweep failed", "error", err)
		return
	}
	metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	if count > 0 {
		s.logger.Info("webhook sweep reprocessed deliveries", "count", count)
	}
}
