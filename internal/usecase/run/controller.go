// Package run owns the lifecycle of one daily batch run: allocate the
// run record, drive matching and submission across the candidate pool,
// aggregate counters, and finalize the record exactly once.
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/matchd/internal/domain"
	"github.com/kailas-cloud/matchd/internal/domain/match"
	"github.com/kailas-cloud/matchd/internal/metrics"
	"github.com/kailas-cloud/matchd/internal/usecase/eligibility"
	"github.com/kailas-cloud/matchd/internal/usecase/evaluation"
)

// Defaults for pool paging, worker concurrency, and the pause between
// successive submissions for one candidate (backpressure for the
// external submission endpoint, not a correctness requirement).
const (
	DefaultPageSize        = 50
	DefaultConcurrency     = 4
	DefaultSubmissionDelay = 100 * time.Millisecond
)

// Controller executes batch runs. One run at a time per controller;
// concurrent Execute calls are rejected with ErrRunInProgress.
type Controller struct {
	pool      CandidatePool
	matcher   Matcher
	prefs     PreferenceStore
	apps      ApplicationReader
	submitter Submitter
	runs      RunStore
	quota     QuotaReserver
	sink      MetricsSink
	logger    *zap.Logger

	pageSize    int
	concurrency int
	delay       time.Duration
	now         func() time.Time

	inFlight atomic.Bool
}

// NewController creates a batch run controller.
func NewController(
	pool CandidatePool, matcher Matcher, prefs PreferenceStore,
	apps ApplicationReader, submitter Submitter, runs RunStore,
	quota QuotaReserver, sink MetricsSink, logger *zap.Logger,
) *Controller {
	return &Controller{
		pool:        pool,
		matcher:     matcher,
		prefs:       prefs,
		apps:        apps,
		submitter:   submitter,
		runs:        runs,
		quota:       quota,
		sink:        sink,
		logger:      logger,
		pageSize:    DefaultPageSize,
		concurrency: DefaultConcurrency,
		delay:       DefaultSubmissionDelay,
		now:         time.Now,
	}
}

// WithPageSize overrides the candidate pool page size.
func (c *Controller) WithPageSize(size int) *Controller {
	if size > 0 {
		c.pageSize = size
	}
	return c
}

// WithConcurrency overrides the candidate worker count.
func (c *Controller) WithConcurrency(n int) *Controller {
	if n > 0 {
		c.concurrency = n
	}
	return c
}

// WithSubmissionDelay overrides the inter-submission throttle.
func (c *Controller) WithSubmissionDelay(d time.Duration) *Controller {
	if d >= 0 {
		c.delay = d
	}
	return c
}

// WithClock overrides the time source (tests).
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Execute performs one full batch run and returns the finalized run
// record. Per-candidate failures are isolated; only run-level errors
// (allocation, pool enumeration) transition the run to failed.
func (c *Controller) Execute(ctx context.Context) (domain.BatchRun, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return domain.BatchRun{}, domain.ErrRunInProgress
	}
	defer c.inFlight.Store(false)

	run, err := c.runs.Create(ctx)
	if err != nil {
		return domain.BatchRun{}, fmt.Errorf("%w: %w", domain.ErrRunAllocation, err)
	}

	logger := c.logger.With(zap.String("run_id", run.ID))
	logger.Info("Batch run started")
	metrics.RunsStarted.Inc()

	rm := evaluation.NewRunMetrics(run.ID, run.StartedAt)
	stats, runErr := c.processPool(ctx, logger, rm)
	run.Stats = stats

	completedAt := c.now().UTC()
	run.CompletedAt = &completedAt

	if runErr != nil {
		run.Status = domain.RunFailed
		run.ErrorSummary = runErr.Error()
	} else {
		run.Status = domain.RunCompleted
	}

	if err := c.runs.Finalize(ctx, run.ID, run.Status, run.Stats, run.ErrorSummary); err != nil {
		logger.Error("Failed to finalize run record", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("finalize run: %w", err)
			run.Status = domain.RunFailed
			run.ErrorSummary = runErr.Error()
		}
	}

	snap := rm.Finalize(completedAt)
	if c.sink != nil {
		if err := c.sink.Save(ctx, snap); err != nil {
			logger.Warn("Failed to persist run metrics", zap.Error(err))
		}
	}

	metrics.ObserveRunCompleted(run.Status, completedAt.Sub(run.StartedAt))
	logger.Info("Batch run finished",
		zap.String("status", string(run.Status)),
		zap.Int("candidates_evaluated", run.Stats.CandidatesEvaluated),
		zap.Int("matches_found", run.Stats.MatchesFound),
		zap.Int("applications_submitted", run.Stats.ApplicationsSubmitted),
		zap.Int("applications_skipped", run.Stats.ApplicationsSkipped),
	)

	if runErr != nil {
		return run, runErr
	}
	return run, nil
}

// processPool pages through the candidate pool and fans pages out to a
// bounded worker group. A page-enumeration failure is run-level; a
// single candidate's failure is logged and absorbed.
func (c *Controller) processPool(
	ctx context.Context, logger *zap.Logger, rm *evaluation.RunMetrics,
) (domain.RunStats, error) {
	var (
		mu    sync.Mutex
		total domain.RunStats
	)

	offset := 0
	for {
		candidates, err := c.pool.ListAutoApplyCandidates(ctx, offset, c.pageSize)
		if err != nil {
			return total, fmt.Errorf("list candidate pool at offset %d: %w", offset, err)
		}
		if len(candidates) == 0 {
			return total, nil
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, c.concurrency)
		for _, cand := range candidates {
			wg.Add(1)
			sem <- struct{}{}
			go func(cand domain.CandidateProfile) {
				defer wg.Done()
				defer func() { <-sem }()

				stats := c.processCandidate(ctx, logger, cand, rm)
				mu.Lock()
				total.Add(stats)
				mu.Unlock()
			}(cand)
		}
		wg.Wait()

		if len(candidates) < c.pageSize {
			return total, nil
		}
		offset += c.pageSize
	}
}

// processCandidate runs matching, gating, and submission for one
// candidate. Errors here never escalate to run level.
func (c *Controller) processCandidate(
	ctx context.Context, logger *zap.Logger,
	cand domain.CandidateProfile, rm *evaluation.RunMetrics,
) domain.RunStats {
	stats := domain.RunStats{CandidatesEvaluated: 1}
	if err := rm.FoldCandidate(); err != nil {
		logger.Warn("Metrics fold rejected", zap.Error(err))
	}

	prefs, err := c.prefs.Get(ctx, cand.ID)
	if errors.Is(err, domain.ErrNotFound) {
		prefs = domain.DefaultPreferences(cand.ID)
	} else if err != nil {
		logger.Warn("Failed to read preferences, skipping candidate",
			zap.String("candidate_id", cand.ID), zap.Error(err))
		metrics.CandidateFailures.Inc()
		return stats
	}
	if err := prefs.Validate(); err != nil {
		logger.Warn("Invalid preferences, skipping candidate",
			zap.String("candidate_id", cand.ID), zap.Error(err))
		metrics.CandidateFailures.Inc()
		return stats
	}

	todayCount, err := c.apps.CountToday(ctx, cand.ID)
	if err != nil {
		logger.Warn("Failed to read today's application count, skipping candidate",
			zap.String("candidate_id", cand.ID), zap.Error(err))
		metrics.CandidateFailures.Inc()
		return stats
	}

	matches, err := c.matcher.MatchCandidate(ctx, cand)
	if err != nil {
		logger.Warn("Matching failed, skipping candidate",
			zap.String("candidate_id", cand.ID), zap.Error(err))
		metrics.CandidateFailures.Inc()
		return stats
	}
	stats.MatchesFound = len(matches)
	metrics.MatchesScored.Add(float64(len(matches)))
	if err := rm.FoldMatches(matches); err != nil {
		logger.Warn("Metrics fold rejected", zap.Error(err))
	}

	gate := eligibility.NewGate(prefs, todayCount)
	limiter := rate.NewLimiter(rate.Every(c.delay), 1)
	if c.delay == 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	results := make([]domain.SubmissionResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, c.submitMatch(ctx, logger, gate, limiter, prefs, m))
	}

	for _, res := range results {
		if res.Success {
			stats.ApplicationsSubmitted++
		} else {
			stats.ApplicationsSkipped++
		}
	}
	if err := rm.FoldSubmissions(results); err != nil {
		logger.Warn("Metrics fold rejected", zap.Error(err))
	}
	return stats
}

// submitMatch gates one match and, when eligible, reserves quota and
// submits. A duplicate insert is downgraded to an "Already applied"
// skip; any other submission failure becomes a skip carrying the error
// message, never a retry.
func (c *Controller) submitMatch(
	ctx context.Context, logger *zap.Logger,
	gate *eligibility.Gate, limiter *rate.Limiter,
	prefs domain.Preferences, m match.Match,
) domain.SubmissionResult {
	now := c.now().UTC()

	var alreadyApplied bool
	if gate.Remaining() > 0 && m.Score >= prefs.AutoApplyMinScore {
		applied, err := c.apps.HasApplication(ctx, m.CandidateID, m.JobPostingID)
		if err != nil {
			logger.Warn("Dedup check failed",
				zap.String("candidate_id", m.CandidateID),
				zap.String("job_id", m.JobPostingID),
				zap.Error(err))
			metrics.SubmissionsSkipped.WithLabelValues("error").Inc()
			return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, err.Error(), now)
		}
		alreadyApplied = applied
	}

	decision := gate.Evaluate(m, alreadyApplied)
	if !decision.Eligible {
		metrics.SubmissionsSkipped.WithLabelValues(metrics.SkipLabel(decision.SkipReason)).Inc()
		return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, decision.SkipReason, now)
	}

	if err := limiter.Wait(ctx); err != nil {
		return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, err.Error(), now)
	}

	reserved, err := c.quota.Reserve(ctx, m.CandidateID, prefs.MaxApplicationsPerDay)
	if err != nil {
		logger.Warn("Quota reservation failed",
			zap.String("candidate_id", m.CandidateID), zap.Error(err))
		metrics.SubmissionsSkipped.WithLabelValues("error").Inc()
		return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, err.Error(), now)
	}
	if !reserved {
		metrics.SubmissionsSkipped.WithLabelValues(metrics.SkipLabel(domain.SkipDailyLimitReached)).Inc()
		return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, domain.SkipDailyLimitReached, now)
	}

	rec := domain.ApplicationRecord{
		CandidateID:  m.CandidateID,
		JobPostingID: m.JobPostingID,
		MatchScore:   m.Score,
		Source:       "auto",
		SubmittedAt:  now,
	}

	appID, err := c.submitter.Submit(ctx, rec)
	if errors.Is(err, domain.ErrDuplicateApplication) {
		// Second line of defense at the storage layer; recovered, not propagated.
		c.releaseQuota(ctx, logger, m.CandidateID)
		metrics.SubmissionsSkipped.WithLabelValues(metrics.SkipLabel(domain.SkipAlreadyApplied)).Inc()
		return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, domain.SkipAlreadyApplied, now)
	}
	if err != nil {
		c.releaseQuota(ctx, logger, m.CandidateID)
		logger.Warn("Submission failed",
			zap.String("candidate_id", m.CandidateID),
			zap.String("job_id", m.JobPostingID),
			zap.Error(err))
		metrics.SubmissionsSkipped.WithLabelValues("error").Inc()
		return domain.Skipped(m.CandidateID, m.JobPostingID, m.Score, err.Error(), now)
	}

	gate.Consume()
	metrics.SubmissionsTotal.Inc()
	return domain.Submitted(m.CandidateID, m.JobPostingID, m.Score, appID, now)
}

func (c *Controller) releaseQuota(ctx context.Context, logger *zap.Logger, candidateID string) {
	if err := c.quota.Release(ctx, candidateID); err != nil {
		logger.Warn("Quota release failed", zap.String("candidate_id", candidateID), zap.Error(err))
	}
}
