package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var reapStaleAfter time.Duration

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Run the retention sweep and reap stale processing jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initCoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Planner.RunRetentionSweep(cmd.Context(),
			cfg.Retention.CitationsDays, cfg.Retention.AlertsDays, cfg.Retention.JobsDays,
		); err != nil {
			return eris.Wrap(err, "retention sweep")
		}

		reaped, err := env.Planner.ReapStaleJobs(cmd.Context(), reapStaleAfter)
		if err != nil {
			return eris.Wrap(err, "reap stale jobs")
		}

		fmt.Printf("retention sweep complete, reaped %d stale jobs\n", reaped)
		return nil
	},
}

func init() {
	retentionCmd.Flags().DurationVar(&reapStaleAfter, "stale-after", time.Hour, "mark processing jobs stale after this long with no update")
	rootCmd.AddCommand(retentionCmd)
}
