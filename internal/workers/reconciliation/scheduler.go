// Package reconciliation schedules the stale-pending status sweep: any
// transaction stuck pending past its age ceiling gets its provider polled
// and is settled through the same path webhooks use.
package reconciliation

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/pkg/logger"
)

const sweepBatchSize = 50

// Scheduler runs the pending-transaction sweep on a cron spec.
type Scheduler struct {
	reconciler *reconciler.Service
	cron       *cron.Cron
	spec       string
	maxAge     time.Duration
	logger     *logger.Logger
}

// NewScheduler creates a reconciliation scheduler.
func NewScheduler(reconcilerService *reconciler.Service, cfg *config.ReconciliationConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconcilerService,
		cron:       cron.New(),
		spec:       cfg.CronSpec,
		maxAge:     time.Duration(cfg.PendingMaxAge) * time.Minute,
		logger:     log,
	}
}

// Start registers the sweep and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.run(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("reconciliation scheduler started",
		"cron_spec", s.spec, "pending_max_age", s.maxAge.String())
	return nil
}

// Stop halts the cron runner and waits for a running sweep.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("reconciliation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	started := time.Now()
	if err := s.reconciler.ResolvePending(ctx, s.maxAge, sweepBatchSize); err != nil {
		s.logger.Error("reconciliation sweep failed", "error", err)
		return
	}
	s.logger.Debug("reconciliation sweep finished", "duration", time.Since(started).String())
}
