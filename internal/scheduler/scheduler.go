// Package scheduler drives the periodic batch pipeline: a cron entry
// triggers full matching runs and a second entry reaps runs that were
// left in progress by a crashed process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/usecase/backfill"
)

// runner starts one batch run.
type runner interface {
	Execute(ctx context.Context) (domain.BatchRun, error)
}

// backfiller fills missing embeddings ahead of a run.
type backfiller interface {
	Run(ctx context.Context) (backfill.Result, error)
}

// reaper fails runs stuck in progress longer than olderThan.
type reaper interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config holds the cron specs and the staleness cutoff.
type Config struct {
	RunSpec    string
	ReaperSpec string
	StaleAfter time.Duration
}

// Scheduler wraps robfig/cron around the batch run controller.
type Scheduler struct {
	cron     *cron.Cron
	runner   runner
	reaper   reaper
	backfill backfiller
	cfg      Config
	logger   *zap.Logger
}

// New creates a Scheduler. Jobs are registered on Start.
func New(r runner, rp reaper, cfg Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: r,
		reaper: rp,
		cfg:    cfg,
		logger: logger,
	}
}

// WithBackfill makes each scheduled run start with an embedding
// backfill pass so new candidates and postings are matchable.
func (s *Scheduler) WithBackfill(b backfiller) *Scheduler {
	s.backfill = b
	return s
}

// Start registers both cron entries and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.RunSpec, func() { s.triggerRun(ctx) }); err != nil {
		return fmt.Errorf("register run job: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.ReaperSpec, func() { s.reapStale(ctx) }); err != nil {
		return fmt.Errorf("register reaper job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("run_spec", s.cfg.RunSpec),
		zap.String("reaper_spec", s.cfg.ReaperSpec))

	// Reap immediately so runs orphaned by a crash don't wait for the
	// first tick.
	go s.reapStale(ctx)
	return nil
}

// Stop stops the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) triggerRun(ctx context.Context) {
	if s.backfill != nil {
		res, err := s.backfill.Run(ctx)
		if err != nil {
			// Entities left without a vector simply stay unmatched.
			s.logger.Warn("Pre-run backfill failed", zap.Error(err))
		} else {
			s.logger.Info("Pre-run backfill finished",
				zap.Int("candidates_embedded", res.CandidatesEmbedded),
				zap.Int("jobs_embedded", res.JobsEmbedded))
		}
	}

	run, err := s.runner.Execute(ctx)
	if errors.Is(err, domain.ErrRunInProgress) {
		s.logger.Warn("Skipping scheduled run, another run is in progress")
		return
	}
	if err != nil {
		s.logger.Error("Scheduled run failed",
			zap.String("run_id", run.ID),
			zap.Error(err))
		return
	}
	s.logger.Info("Scheduled run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("candidates_evaluated", run.Stats.CandidatesEvaluated),
		zap.Int("applications_submitted", run.Stats.ApplicationsSubmitted))
}

func (s *Scheduler) reapStale(ctx context.Context) {
	n, err := s.reaper.FailStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		s.logger.Error("Stale run reaper failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Warn("Failed stale runs", zap.Int("count", n))
	}
}
