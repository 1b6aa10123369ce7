package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/tracking"
)

var batchRecheckProjectID string
var batchRecheckPlatform string

var batchRecheckCmd = &cobra.Command{
	Use:   "batch-recheck",
	Short: "Recheck every active keyword in a project against one provider in bulk",
	Long: "For providers whose adapter supports a native batch API (currently " +
		"Claude, via Anthropic's Message Batches), submits every active " +
		"keyword as one batch instead of one request per keyword. Providers " +
		"without batch support fall back to sequential per-keyword queries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if batchRecheckProjectID == "" {
			return eris.New("--project is required")
		}
		if batchRecheckPlatform == "" {
			return eris.New("--platform is required")
		}

		env, err := initCoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		project, err := env.Store.GetProject(cmd.Context(), batchRecheckProjectID)
		if err != nil {
			return eris.Wrapf(err, "load project %s", batchRecheckProjectID)
		}
		keywords, err := env.Store.ListActiveKeywords(cmd.Context(), batchRecheckProjectID)
		if err != nil {
			return eris.Wrap(err, "list active keywords")
		}

		results, err := env.Engine.BatchRecheck(cmd.Context(), project, keywords, model.Provider(batchRecheckPlatform), tracking.Options{})
		if err != nil {
			return eris.Wrap(err, "batch recheck")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	batchRecheckCmd.Flags().StringVar(&batchRecheckProjectID, "project", "", "project ID to recheck")
	batchRecheckCmd.Flags().StringVar(&batchRecheckPlatform, "platform", "", "provider to recheck against")
	rootCmd.AddCommand(batchRecheckCmd)
}
