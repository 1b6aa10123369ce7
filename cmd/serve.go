package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control surface",
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

		if err := env.Planner.StartDailyTracker(ctx); err != nil {
			return eris.Wrap(err, "start daily tracker")
		}
		if err := env.Planner.StartScoreRecompute(ctx); err != nil {
			return eris.Wrap(err, "start score recompute loop")
		}
		if err := env.Planner.StartRetentionLoop(ctx); err != nil {
			return eris.Wrap(err, "start retention loop")
		}
		defer env.Planner.Stop()

		app := api.NewServer(apiDeps(env.coreEnv))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down api server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.GraceWindow())
			defer cancel()
			_ = api.Shutdown(shutdownCtx, app)
		}()

		zap.L().Info("starting api server", zap.Int("port", port))
		if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
