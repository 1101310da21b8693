package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
	"github.com/vnmchuo/agentboard-billing/internal/telemetry"
)

// Sweeper marks issued invoices overdue once their due date has passed.
type Sweeper struct {
	store    billing.Store
	dueAfter time.Duration
	interval time.Duration
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(store billing.Store, dueDays int, interval time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		dueAfter: time.Duration(dueDays) * 24 * time.Hour,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// SweepOnce returns the number of invoices moved to overdue.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	issued, err := s.store.List(ctx, billing.Filter{Status: billing.StatusIssued})
	if err != nil {
		return 0, err
	}

	now := s.now()
	marked := 0
	for _, inv := range issued {
		if inv.IssuedAt == nil || now.Before(inv.IssuedAt.Add(s.dueAfter)) {
			continue
		}
		err := s.store.UpdateStatus(ctx, inv.ID, billing.StatusIssued, billing.StatusOverdue)
		if errors.Is(err, billing.ErrInvalidTransition) || errors.Is(err, billing.ErrNotFound) {
			// changed or removed since the listing
			continue
		}
		if err != nil {
			return marked, err
		}
		marked++
		s.metrics.InvoicesSwept.Inc()
		s.metrics.StatusTransitions.WithLabelValues(string(billing.StatusIssued), string(billing.StatusOverdue)).Inc()
	}
	return marked, nil
}

// Run sweeps every interval until ctx is done. A zero interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("overdue sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("invoices marked overdue", zap.Int("count", n))
			}
		}
	}
}
