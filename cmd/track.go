package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/tracking"
)

var trackKeywordID string
var trackPlatforms []string

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run a one-shot synchronous tracking pass for a keyword",
	RunE: func(cmd *cobra.Command, args []string) error {
		if trackKeywordID == "" {
			return eris.New("--keyword is required")
		}

		env, err := initCoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		keyword, err := env.Store.GetKeyword(cmd.Context(), trackKeywordID)
		if err != nil {
			return eris.Wrapf(err, "load keyword %s", trackKeywordID)
		}
		project, err := env.Store.GetProject(cmd.Context(), keyword.ProjectID)
		if err != nil {
			return eris.Wrapf(err, "load project %s", keyword.ProjectID)
		}

		platforms := parsePlatforms(trackPlatforms, env.Registry.Enabled())

		results, err := env.Engine.TrackKeyword(cmd.Context(), keyword, project, platforms, tracking.Options{})
		if err != nil {
			return eris.Wrap(err, "track keyword")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func parsePlatforms(raw []string, fallback []model.Provider) []model.Provider {
	if len(raw) == 0 {
		return fallback
	}
	out := make([]model.Provider, 0, len(raw))
	for _, p := range raw {
		out = append(out, model.Provider(p))
	}
	return out
}

func init() {
	trackCmd.Flags().StringVar(&trackKeywordID, "keyword", "", "keyword ID to track")
	trackCmd.Flags().StringSliceVar(&trackPlatforms, "platforms", nil, "providers to query (default: all configured)")
	rootCmd.AddCommand(trackCmd)
}
