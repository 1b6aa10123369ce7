package main

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/model"
)

var backfillFile string
var backfillBatchSize int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Bulk-load historical citations from a JSON-lines export",
	Long: "Reads one model.Citation JSON object per line and upserts them in " +
		"batches via Store.BackfillCitations (pgx COPY on Postgres, a single " +
		"transaction on SQLite). Intended for migrating a prior tracker " +
		"instance's data or seeding a historical dataset.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFile == "" {
			return eris.New("--file is required")
		}

		env, err := initCoreEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(backfillFile)
		if err != nil {
			return eris.Wrapf(err, "open %s", backfillFile)
		}
		defer f.Close()

		batch := make([]model.Citation, 0, backfillBatchSize)
		var total int64
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := env.Store.BackfillCitations(cmd.Context(), batch)
			if err != nil {
				return eris.Wrap(err, "backfill batch")
			}
			total += n
			batch = batch[:0]
			return nil
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var c model.Citation
			if err := json.Unmarshal(raw, &c); err != nil {
				return eris.Wrapf(err, "backfill: parse line %d", line)
			}
			batch = append(batch, c)
			if len(batch) >= backfillBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return eris.Wrap(err, "backfill: read input")
		}
		if err := flush(); err != nil {
			return err
		}

		zap.L().Info("backfill complete", zap.Int64("rows_upserted", total), zap.String("file", backfillFile))
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFile, "file", "", "path to a JSON-lines file of citations")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 1000, "rows per BackfillCitations call")
	rootCmd.AddCommand(backfillCmd)
}
