package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/resilience"
	"github.com/citewatch/tracker/internal/store"
	"github.com/citewatch/tracker/internal/tracking"
)

// TickResult is ActivityTick's return value, reported back into the
// workflow so it can decide whether to error out (driving Temporal's own
// activity retry policy).
type TickResult struct {
	JobID         string
	Status        model.JobStatus
	CitationFound bool
	Error         string
	Retriable     bool
}

// Activities bundles the dependencies ActivityTick needs to load a job,
// run it through the tracking engine, and record the outcome.
type Activities struct {
	Store  store.Store
	Engine *tracking.Engine
	// MaxAttempts mirrors the workflow's RetryPolicy.MaximumAttempts so the
	// activity knows whether this failure is the last one (job -> failed)
	// or an intermediate one (job -> retrying, reclaimable on the next
	// Temporal-driven attempt).
	MaxAttempts int32
}

// ActivityTickName is the registered activity name, kept stable across
// deploys since Temporal matches replaying history against it by name.
const ActivityTickName = "TrackingTick"

// Tick loads jobID, claims it, runs the tracking engine for its
// (keyword, platform) pair, and persists the terminal or retrying state.
// A non-nil error signals Temporal to apply the workflow's retry policy.
// Every failed track returns one, whether the job is left retrying or, on
// the final attempt, marked failed and dead-lettered.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: jobID}

	job, err := a.Store.GetJob(ctx, jobID)
	if err != nil {
		return res, fmt.Errorf("worker: load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		res.Status = job.Status
		res.CitationFound = job.CitationFound
		return res, nil
	}

	claimedAt := time.Now()
	claimed, err := a.Store.ClaimJob(ctx, jobID, claimedAt)
	if err != nil {
		return res, fmt.Errorf("worker: claim job %s: %w", jobID, err)
	}
	if !claimed {
		// Another attempt (or the reaper) already owns it; nothing to do.
		res.Status = model.JobProcessing
		return res, nil
	}

	keyword, err := a.Store.GetKeyword(ctx, job.KeywordID)
	if err != nil {
		a.failJob(ctx, job, err.Error())
		res.Status = model.JobFailed
		return res, fmt.Errorf("worker: load keyword %s: %w", job.KeywordID, err)
	}
	project, err := a.Store.GetProject(ctx, job.ProjectID)
	if err != nil {
		a.failJob(ctx, job, err.Error())
		res.Status = model.JobFailed
		return res, fmt.Errorf("worker: load project %s: %w", job.ProjectID, err)
	}

	stop := a.startHeartbeat(ctx)
	defer stop()

	result := a.Engine.TrackSingle(ctx, keyword, project, job.Platform, tracking.Options{})

	now := time.Now()
	job.StartedAt = &claimedAt

	if result.Success {
		job.Status = model.JobCompleted
		job.CitationFound = result.CitationFound
		job.ErrorMessage = ""
		job.CompletedAt = &now
	} else {
		job.ErrorMessage = result.Error
		job.RetryCount++
		if a.finalAttempt(ctx) {
			job.Status = model.JobFailed
			job.CompletedAt = &now
			a.deadLetter(ctx, job, result.Error)
		} else {
			job.Status = model.JobRetrying
		}
	}

	if err := a.Store.UpdateJob(ctx, job); err != nil {
		zap.L().Error("worker: update job after tick failed", zap.String("job_id", jobID), zap.Error(err))
		return res, fmt.Errorf("worker: update job %s: %w", jobID, err)
	}

	res.Status = job.Status
	res.CitationFound = job.CitationFound
	if !result.Success {
		res.Error = result.Error
		res.Retriable = true
		return res, fmt.Errorf("worker: track job %s failed: %s", jobID, result.Error)
	}
	return res, nil
}

// finalAttempt reports whether this is the last Temporal-scheduled
// attempt for the current activity execution, so a failure should mark
// the job terminally failed rather than retrying. Outside a live activity
// context (unit tests calling Tick directly) activity.GetInfo panics; in
// that case there is no retry policy in play, so treat it as final.
func (a *Activities) finalAttempt(ctx context.Context) (final bool) {
	if a.MaxAttempts <= 0 {
		return true
	}
	defer func() {
		if recover() != nil {
			final = true
		}
	}()
	info := activity.GetInfo(ctx)
	return info.Attempt >= a.MaxAttempts
}

// deadLetter records a job that exhausted the workflow's RetryPolicy so it
// can be replayed manually later. The insert itself is wrapped in
// resilience.Do since losing a DLQ write to a transient store blip would
// silently drop the job's failure history.
func (a *Activities) deadLetter(ctx context.Context, job *model.TrackingJob, failureMsg string) {
	entry := &resilience.DLQEntry{
		Job:          *job,
		Error:        failureMsg,
		ErrorType:    resilience.ClassifyError(errors.New(failureMsg)),
		FailedPhase:  "tracking_tick",
		RetryCount:   job.RetryCount,
		MaxRetries:   int(a.MaxAttempts),
		CreatedAt:    time.Now(),
		LastFailedAt: time.Now(),
	}

	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		return a.Store.InsertDLQEntry(ctx, entry)
	})
	if err != nil {
		zap.L().Error("worker: dead-letter insert failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (a *Activities) failJob(ctx context.Context, job *model.TrackingJob, message string) {
	job.Status = model.JobFailed
	job.ErrorMessage = message
	now := time.Now()
	job.CompletedAt = &now
	if err := a.Store.UpdateJob(ctx, job); err != nil {
		zap.L().Error("worker: mark job failed also failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// startHeartbeat pings Temporal every 10s so a slow provider call doesn't
// trip the workflow's HeartbeatTimeout.
func (a *Activities) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
