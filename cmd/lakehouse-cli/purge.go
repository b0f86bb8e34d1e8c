package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/cache"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/lineage"
)

func newPurgeCmd() *cobra.Command {
	var (
		embeddings    bool
		retentionDays int
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop cached embeddings and expired lineage",
		Long: `Purge removes derived data that can be rebuilt or has outlived its retention:

  --embeddings          cached question embeddings for the configured model
  --lineage-days N      lineage batches recorded more than N days ago

Use --dry-run to see what would be removed. Lineage deletion is irreversible.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			if !embeddings && retentionDays <= 0 {
				return errors.New("nothing to purge: pass --embeddings and/or --lineage-days")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result := map[string]int{}
			if embeddings {
				prefix := cache.EmbeddingKey(a.Embedder.Model(), "")
				if dryRun {
					ui.Info("Would delete cached embeddings under %q", prefix)
				} else {
					n, err := a.Cache.DeleteByPrefix(ctx, prefix)
					if err != nil {
						return fmt.Errorf("purge embeddings: %w", err)
					}
					result["embeddings"] = n
					ui.Success("Deleted %d cached embedding(s)", n)
				}
			}

			if retentionDays > 0 {
				cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
				store := lineage.NewObjectStore(a.Store, cfg.Storage.MetaBucket, cfg.Lineage.Prefix)
				n, err := store.Purge(ctx, cutoff, dryRun)
				if err != nil {
					return fmt.Errorf("purge lineage: %w", err)
				}
				result["lineage_batches"] = n
				verb := "Deleted"
				if dryRun {
					verb = "Would delete"
				}
				ui.Success("%s %d lineage batch(es) before %s", verb, n, cutoff.Format("2006-01-02"))
			}

			logger.Info().
				Bool("dry_run", dryRun).
				Int("embeddings", result["embeddings"]).
				Int("lineage_batches", result["lineage_batches"]).
				Msg("Purge complete")
			if outputJSON {
				return printJSON(result)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&embeddings, "embeddings", false, "delete cached embeddings for the configured model")
	cmd.Flags().IntVar(&retentionDays, "lineage-days", 0, "delete lineage older than this many days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without deleting")
	return cmd
}
