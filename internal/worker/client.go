// Package worker hosts the Temporal workflow and activity that execute
// TrackingJobs: one workflow per job, one activity that drives the
// tracking engine and reports the outcome back to the store.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/config"
)

// DialClient connects to Temporal with retry/backoff, per the connection
// pattern used across the reference pack for standing up a broker client
// before the process is considered healthy.
func DialClient(ctx context.Context, cfg config.QueueConfig) (client.Client, error) {
	opts := client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	}

	const (
		dialTimeout = 5 * time.Second
		maxWait     = 60 * time.Second
		baseBackoff = 250 * time.Millisecond
		maxBackoff  = 5 * time.Second
	)

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		c, err := client.DialContext(dialCtx, opts)
		cancel()
		if err == nil {
			if attempt > 1 {
				zap.L().Info("connected to task queue broker",
					zap.String("host_port", cfg.HostPort), zap.Int("attempts", attempt))
			}
			return c, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("worker: dial task queue broker (host_port=%s namespace=%s): %w", cfg.HostPort, cfg.Namespace, err)
		}

		zap.L().Warn("task queue broker not reachable, retrying",
			zap.String("host_port", cfg.HostPort), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(clampBackoff(baseBackoff, maxBackoff, attempt))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if sleep >= max {
			return max
		}
	}
	if sleep > max {
		return max
	}
	return sleep
}
