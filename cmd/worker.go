package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the tracking job worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initWorkerEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		for provider, status := range env.Registry.WarmUp(ctx, cfg.Worker.WarmupRate(), 1) {
			if !status.OK {
				zap.L().Warn("provider warm-up healthcheck failed",
					zap.String("provider", string(provider)), zap.String("message", status.Message))
			}
		}

		runner := worker.NewRunner(env.Temporal, env.Activities, cfg.Queue)
		if err := runner.Start(ctx, cfg.Worker.Concurrency); err != nil {
			return eris.Wrap(err, "start worker")
		}

		<-ctx.Done()
		zap.L().Info("worker shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
