package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/citewatch/tracker/internal/scheduler"
)

var scheduleProjectID string
var schedulePlatforms []string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Enqueue tracking jobs for a project's active keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleProjectID == "" {
			return eris.New("--project is required")
		}

		env, err := initWorkerEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		platforms := parsePlatforms(schedulePlatforms, nil)
		created, duplicates, err := env.Planner.ScheduleJobs(cmd.Context(), scheduler.ScheduleRequest{
			ProjectID: scheduleProjectID,
			Platforms: platforms,
		})
		if err != nil {
			return eris.Wrap(err, "schedule jobs")
		}

		fmt.Printf("created=%d duplicates=%d\n", created, duplicates)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleProjectID, "project", "", "project ID")
	scheduleCmd.Flags().StringSliceVar(&schedulePlatforms, "platforms", nil, "providers to schedule (default: all configured)")
	rootCmd.AddCommand(scheduleCmd)
}
