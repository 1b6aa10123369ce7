// Package scheduler implements the Planner: a periodic loop that enqueues
// TrackingJobs without doing any provider work itself. It is the only
// component that decides "when", leaving "how" to the worker.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/citewatch/tracker/internal/metrics"
	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

// scoringOps is the subset of scoring.Service the planner's periodic loops
// need; declared narrowly here so scheduler doesn't import internal/scoring
// and gain a dependency edge back toward the package that already depends
// on internal/store the same way scheduler does.
type scoringOps interface {
	GenerateDailyMetrics(ctx context.Context, projectID string, date time.Time) error
	ComputeVisibilityScore(ctx context.Context, projectID string, asOf time.Time) (*model.VisibilityScore, error)
}

// maxConcurrentProjects bounds the per-project fan-out inside the planner's
// periodic loops (daily tracker, score recompute).
const maxConcurrentProjects = 8

// BatchHandle is returned to a caller that kicked off an asynchronous
// TrackProject batch, so the request handler can return immediately
// instead of blocking on the work (REDESIGN FLAGS: no fire-and-forget
// goroutines from a request handler).
type BatchHandle struct {
	BatchID      string
	ProjectID    string
	JobsEnqueued int
	Duplicates   int
}

// ScheduleRequest bulk-inserts pending jobs, de-duplicated by
// (projectId, keywordId, platform, scheduledAt).
type ScheduleRequest struct {
	ProjectID   string
	KeywordIDs  []string // nil/empty means all active keywords
	Platforms   []model.Provider
	ScheduledAt time.Time
}

// RetentionConfig configures the planner's weekly retention loop.
type RetentionConfig struct {
	CitationsDays int
	AlertsDays    int
	JobsDays      int
	StaleAfter    time.Duration
}

// Planner enqueues TrackingJobs on demand and drives three periodic loops
// via robfig/cron: the daily tracker, a 6-hourly score recompute, and a
// weekly retention sweep (spec §4.5).
type Planner struct {
	store           store.Store
	enabledPlatform func() []model.Provider
	cron            *cron.Cron
	dailyRunAt      string
	dispatch        func(context.Context, *model.TrackingJob) error
	scoring         scoringOps
	retention       RetentionConfig
}

// SetScoringService wires the scoring service the daily tracker uses to
// aggregate the prior day's citations into DailyMetric rows before it
// enqueues the current day's jobs, and that the score recompute loop uses
// to refresh every active project's VisibilityScore. Optional: if unset,
// both loops skip their scoring step.
func (p *Planner) SetScoringService(s scoringOps) {
	p.scoring = s
}

// SetRetentionConfig wires the windows the weekly retention loop sweeps
// against. Optional: if unset, StartRetentionLoop returns an error rather
// than sweeping with meaningless zero-day windows.
func (p *Planner) SetRetentionConfig(cfg RetentionConfig) {
	p.retention = cfg
}

// SetDispatcher wires a callback invoked once per newly-created job, right
// after it lands in the store. In production this starts the job's
// Temporal workflow execution immediately instead of waiting for a
// separate poller to notice the pending row.
func (p *Planner) SetDispatcher(fn func(context.Context, *model.TrackingJob) error) {
	p.dispatch = fn
}

// New builds a Planner. enabledProviders reports the currently registered
// adapters (the registry's Enabled()), so the daily tracker never
// schedules a provider whose credential was removed since last restart.
func New(st store.Store, enabledProviders func() []model.Provider, dailyRunAt string) *Planner {
	if dailyRunAt == "" {
		dailyRunAt = "02:00"
	}
	return &Planner{
		store:           st,
		enabledPlatform: enabledProviders,
		cron:            cron.New(),
		dailyRunAt:      dailyRunAt,
	}
}

// ScheduleJobs bulk-inserts pending jobs for req, returning counts of how
// many were newly created vs already existed (deduped).
func (p *Planner) ScheduleJobs(ctx context.Context, req ScheduleRequest) (created, duplicates int, err error) {
	keywordIDs := req.KeywordIDs
	if len(keywordIDs) == 0 {
		keywords, err := p.store.ListActiveKeywords(ctx, req.ProjectID)
		if err != nil {
			return 0, 0, err
		}
		keywordIDs = make([]string, len(keywords))
		for i, k := range keywords {
			keywordIDs[i] = k.ID
		}
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = p.enabledPlatform()
	}

	scheduledAt := req.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	for _, keywordID := range keywordIDs {
		for _, platform := range platforms {
			job := &model.TrackingJob{
				ID:          uuid.NewString(),
				ProjectID:   req.ProjectID,
				KeywordID:   keywordID,
				Platform:    platform,
				Status:      model.JobPending,
				ScheduledAt: scheduledAt,
			}
			stored, isNew, err := p.store.EnqueueJob(ctx, job)
			if err != nil {
				return created, duplicates, err
			}
			if isNew {
				created++
				metrics.JobsEnqueuedTotal.WithLabelValues(string(platform)).Inc()
				if p.dispatch != nil {
					if err := p.dispatch(ctx, stored); err != nil {
						zap.L().Error("dispatch job to worker failed",
							zap.String("job_id", stored.ID), zap.Error(err))
					}
				}
			} else {
				duplicates++
			}
		}
	}
	return created, duplicates, nil
}

// TrackProjectAsync enqueues one job per (active keyword, requested
// platform) at "now" and returns immediately with a handle; the worker
// process picks the jobs up independently.
func (p *Planner) TrackProjectAsync(ctx context.Context, projectID string, platforms []model.Provider) (*BatchHandle, error) {
	created, duplicates, err := p.ScheduleJobs(ctx, ScheduleRequest{ProjectID: projectID, Platforms: platforms})
	if err != nil {
		return nil, err
	}
	return &BatchHandle{
		BatchID:      uuid.NewString(),
		ProjectID:    projectID,
		JobsEnqueued: created,
		Duplicates:   duplicates,
	}, nil
}

// StartDailyTracker registers the once-per-24h cron trigger (spec §9's
// Open Question, resolved in favor of exactly-once via a fixed schedule
// rather than minute-polling) that enqueues jobs for every active
// project. It does not block; call Stop to unregister.
func (p *Planner) StartDailyTracker(ctx context.Context) error {
	spec, err := dailyCronSpec(p.dailyRunAt)
	if err != nil {
		return fmt.Errorf("scheduler: parse daily_run_at %q: %w", p.dailyRunAt, err)
	}

	_, err = p.cron.AddFunc(spec, func() { p.runDailyTick(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: register daily tracker: %w", err)
	}
	p.cron.Start()
	return nil
}

// runDailyTick aggregates yesterday's citations into DailyMetric rows, then
// enqueues today's jobs, fanned out across active projects (bounded to
// maxConcurrentProjects in flight). Split out from StartDailyTracker so it
// can be exercised directly in tests without waiting on a real cron fire.
func (p *Planner) runDailyTick(ctx context.Context) {
	projects, err := p.store.ListActiveProjects(ctx)
	if err != nil {
		zap.L().Error("daily tracker: list active projects failed", zap.Error(err))
		return
	}
	yesterday := time.Now().AddDate(0, 0, -1)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProjects)
	for _, project := range projects {
		project := project
		g.Go(func() error {
			if p.scoring != nil {
				if err := p.scoring.GenerateDailyMetrics(gCtx, project.ID, yesterday); err != nil {
					zap.L().Error("daily tracker: generate daily metrics failed",
						zap.String("project_id", project.ID), zap.Error(err))
				}
			}
			if _, err := p.TrackProjectAsync(gCtx, project.ID, nil); err != nil {
				zap.L().Error("daily tracker: schedule project failed",
					zap.String("project_id", project.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// StartScoreRecompute registers a 6-hourly cron trigger (spec §4.5's "Score
// recompute: every 6 h" loop) that refreshes every active project's
// VisibilityScore. It does not block; call Stop to unregister.
func (p *Planner) StartScoreRecompute(ctx context.Context) error {
	_, err := p.cron.AddFunc("0 */6 * * *", func() { p.runScoreRecomputeTick(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: register score recompute: %w", err)
	}
	p.cron.Start()
	return nil
}

// runScoreRecomputeTick fans ComputeVisibilityScore/InsertVisibilityScore
// out across active projects, bounded to maxConcurrentProjects in flight.
func (p *Planner) runScoreRecomputeTick(ctx context.Context) {
	if p.scoring == nil {
		return
	}
	projects, err := p.store.ListActiveProjects(ctx)
	if err != nil {
		zap.L().Error("score recompute: list active projects failed", zap.Error(err))
		return
	}

	now := time.Now()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProjects)
	for _, project := range projects {
		project := project
		g.Go(func() error {
			score, err := p.scoring.ComputeVisibilityScore(gCtx, project.ID, now)
			if err != nil {
				zap.L().Error("score recompute: compute failed",
					zap.String("project_id", project.ID), zap.Error(err))
				return nil
			}
			if err := p.store.InsertVisibilityScore(gCtx, score); err != nil {
				zap.L().Error("score recompute: persist failed",
					zap.String("project_id", project.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// StartRetentionLoop registers a weekly cron trigger (spec §4.5's
// "Retention: weekly" loop, Sunday 03:00 local) that runs RunRetentionSweep
// and ReapStaleJobs against the windows set via SetRetentionConfig. It does
// not block; call Stop to unregister.
func (p *Planner) StartRetentionLoop(ctx context.Context) error {
	_, err := p.cron.AddFunc("0 3 * * 0", func() { p.runRetentionTick(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: register retention loop: %w", err)
	}
	p.cron.Start()
	return nil
}

func (p *Planner) runRetentionTick(ctx context.Context) {
	cfg := p.retention
	if err := p.RunRetentionSweep(ctx, cfg.CitationsDays, cfg.AlertsDays, cfg.JobsDays); err != nil {
		zap.L().Error("retention loop: sweep failed", zap.Error(err))
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	if reaped, err := p.ReapStaleJobs(ctx, staleAfter); err != nil {
		zap.L().Error("retention loop: reap stale jobs failed", zap.Error(err))
	} else {
		zap.L().Info("retention loop: reaped stale jobs", zap.Int("count", reaped))
	}
}

// Stop halts the cron scheduler, waiting for any in-flight tick to finish.
func (p *Planner) Stop() {
	<-p.cron.Stop().Done()
}

// dailyCronSpec turns "HH:MM" into a 5-field cron spec that fires once a
// day at that local time.
func dailyCronSpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// ReapStaleJobs transitions jobs stuck in "processing" for longer than
// olderThan back to "retrying", per spec §5's reaper semantics
// (2 x the shutdown grace window).
func (p *Planner) ReapStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	return p.store.ReapStaleProcessingJobs(ctx, time.Now().Add(-olderThan))
}

// RunRetentionSweep deletes Citations, Alerts, and TrackingJobs past their
// configured retention windows.
func (p *Planner) RunRetentionSweep(ctx context.Context, citationsDays, alertsDays, jobsDays int) error {
	now := time.Now()
	if _, err := p.store.DeleteCitationsOlderThan(ctx, now.AddDate(0, 0, -citationsDays)); err != nil {
		return err
	}
	if _, err := p.store.DeleteAlertsOlderThan(ctx, now.AddDate(0, 0, -alertsDays)); err != nil {
		return err
	}
	if _, err := p.store.DeleteJobsOlderThan(ctx, now.AddDate(0, 0, -jobsDays)); err != nil {
		return err
	}
	return nil
}
