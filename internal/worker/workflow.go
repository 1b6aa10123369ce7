package worker

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// WorkflowName is the registered workflow type name.
const WorkflowName = "TrackingWorkflow"

// TrackingWorkflowID builds the deterministic workflow ID for one
// (project, keyword, platform, scheduledAt) job, so re-enqueuing the same
// job never starts a duplicate execution.
func TrackingWorkflowID(projectID, keywordID, platform string, scheduledAt time.Time) string {
	return fmt.Sprintf("tracking:%s:%s:%s:%s", projectID, keywordID, platform, scheduledAt.UTC().Format(time.RFC3339))
}

// TrackingWorkflow drives one TrackingJob to completion. All of the
// actual work happens in ActivityTick; Temporal's RetryPolicy governs
// how many times a transient provider or store failure gets retried
// before the job is marked failed for good.
func TrackingWorkflow(ctx workflow.Context, jobID string, deadline time.Duration, maxAttempts int32) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: deadline,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    maxAttempts,
		},
	})

	var out TickResult
	err := workflow.ExecuteActivity(ctx, ActivityTickName, jobID).Get(ctx, &out)
	if err != nil {
		// All retries exhausted; the job row itself already carries the
		// failure detail (Activities.Tick writes it before returning the
		// error that drives this retry policy).
		return err
	}
	return nil
}
