// Package reconcile reports appointments that were booked without a billing transaction.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/observability/metrics"
	"github.com/hackgods/clinic-scheduling/pkg/logging"
)

// Scanner is read-only: it never touches appointments or transactions.
type Scanner struct {
	finder   appointment.UnbilledFinder
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	lookback int // days before today to include
	now      func() time.Time
}

func NewScanner(finder appointment.UnbilledFinder, m *metrics.SchedulingMetrics, logger *logging.Logger, lookbackDays int) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	return &Scanner{
		finder:   finder,
		metrics:  m,
		logger:   logger.With("component", "reconcile"),
		lookback: lookbackDays,
		now:      time.Now,
	}
}

// RunOnce lists unbilled appointments from the lookback start and exports the count.
func (s *Scanner) RunOnce(ctx context.Context) ([]appointment.Appointment, error) {
	since := appointment.DateOf(s.now()).AddDays(-s.lookback)
	list, err := s.finder.ListUnbilled(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("scan unbilled appointments: %w", err)
	}
	s.metrics.SetUnbilled(len(list))
	for _, a := range list {
		s.logger.Warn("appointment without billing transaction",
			"appointment_id", a.ID.String(),
			"practitioner_id", a.PractitionerID.String(),
			"date", a.Date.String(),
			"start", a.StartTime.String(),
		)
	}
	return list, nil
}

// Run scans immediately and then every interval until ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scanner) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	list, err := s.RunOnce(runCtx)
	if err != nil {
		s.logger.Error("reconcile run error", "error", err.Error())
		return
	}
	s.logger.Info("reconcile run complete", "unbilled", len(list), "duration_ms", time.Since(start).Milliseconds())
}
