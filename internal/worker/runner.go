package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/config"
	"github.com/citewatch/tracker/internal/model"
)

// Dispatcher starts one Temporal workflow execution per TrackingJob. The
// scheduler calls it right after a job row is created; the workflow ID is
// derived deterministically so re-enqueuing the same job is a no-op.
type Dispatcher struct {
	tc        temporalsdkclient.Client
	taskQueue string
	deadline  time.Duration
	attempts  int32
}

// NewDispatcher builds a Dispatcher bound to an already-connected
// Temporal client.
func NewDispatcher(tc temporalsdkclient.Client, cfg config.QueueConfig, wcfg config.WorkerConfig) *Dispatcher {
	return &Dispatcher{
		tc:        tc,
		taskQueue: cfg.TaskQueue,
		deadline:  wcfg.JobDeadline(),
		attempts:  int32(wcfg.MaxRetries) + 1,
	}
}

// Dispatch starts j's workflow. It matches the func(context.Context,
// *model.TrackingJob) error shape scheduler.Planner.SetDispatcher expects.
func (d *Dispatcher) Dispatch(ctx context.Context, j *model.TrackingJob) error {
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:        TrackingWorkflowID(j.ProjectID, j.KeywordID, string(j.Platform), j.ScheduledAt),
		TaskQueue: d.taskQueue,
	}
	_, err := d.tc.ExecuteWorkflow(ctx, opts, WorkflowName, j.ID, d.deadline, d.attempts)
	if err != nil {
		return fmt.Errorf("worker: start workflow for job %s: %w", j.ID, err)
	}
	return nil
}

// Runner owns the Temporal worker process: it polls taskQueue, executing
// TrackingWorkflow and ActivityTick.
type Runner struct {
	tc   temporalsdkclient.Client
	acts *Activities
	cfg  config.QueueConfig
	w    worker.Worker
}

// NewRunner builds a Runner. acts.MaxAttempts should already be set to
// match the value the Dispatcher passes into each workflow.
func NewRunner(tc temporalsdkclient.Client, acts *Activities, cfg config.QueueConfig) *Runner {
	return &Runner{tc: tc, acts: acts, cfg: cfg}
}

// Start registers the workflow/activity and begins polling. It returns
// once polling has started; call Stop (or cancel ctx) to drain and exit.
func (r *Runner) Start(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 5
	}
	r.w = worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	r.w.RegisterWorkflowWithOptions(TrackingWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.w.RegisterActivityWithOptions(r.acts.Tick, activity.RegisterOptions{Name: ActivityTickName})

	if err := r.w.Start(); err != nil {
		return fmt.Errorf("worker: start polling %s/%s: %w", r.cfg.Namespace, r.cfg.TaskQueue, err)
	}
	zap.L().Info("worker started",
		zap.String("namespace", r.cfg.Namespace), zap.String("task_queue", r.cfg.TaskQueue), zap.Int("concurrency", concurrency))

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop drains in-flight activities and stops polling.
func (r *Runner) Stop() {
	if r.w != nil {
		r.w.Stop()
	}
}
