package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/lineage"
)

func newLineageCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show the lineage trail for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			day := time.Now().UTC()
			if date != "" {
				var err error
				if day, err = time.Parse("2006-01-02", date); err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}
			if !cfg.Lineage.Enabled {
				return errors.New("lineage is disabled (lineage.enabled)")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			store := lineage.NewObjectStore(a.Store, cfg.Storage.MetaBucket, cfg.Lineage.Prefix)
			events, err := store.Events(ctx, day)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(events)
			}
			if len(events) == 0 {
				ui.Info("No lineage recorded on %s", day.Format("2006-01-02"))
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					e.OccurredAt.Format(time.TimeOnly),
					string(e.Action),
					e.Resource,
					Truncate(e.Location, 64),
				})
			}
			ui.Section("Lineage " + day.Format("2006-01-02"))
			ui.Table([]string{"Time", "Action", "Resource", "Location"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "day to show (YYYY-MM-DD, default today UTC)")
	return cmd
}
