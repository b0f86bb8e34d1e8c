package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/app"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/refine"
)

func newRefineCmd() *cobra.Command {
	var sources []string

	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Refine bronze sources into silver",
		Long: `Clean every configured bronze source and write today's silver partition,
then apply the configured joins. Only the transformation runs; extraction and
cataloging are left to 'run'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			if len(sources) == 0 {
				sources = cfg.Refine.Sources
			}
			if len(sources) == 0 {
				return errors.New("no sources: set refine.sources or pass --source")
			}

			var bar *progressbar.ProgressBar
			a, err := openApp(ctx, app.WithSourceObserver(func(src string, _ *refine.DatasetPartition, err error) {
				if bar == nil {
					return
				}
				if err != nil {
					bar.Describe("refining (" + src + " failed)")
				}
				_ = bar.Add(1)
			}))
			if err != nil {
				return err
			}
			defer a.Close()

			joins, err := a.JoinMap(ctx)
			if err != nil {
				return err
			}

			bar = ui.SourceBar("refining", len(sources))
			summary, err := a.Refiner.RefineAll(ctx, sources, joins)
			if err != nil {
				return err
			}

			if outputJSON {
				if err := printJSON(summary); err != nil {
					return err
				}
			} else {
				printSummary(ui, summary)
			}
			if n := len(summary.Errors); n > 0 {
				ui.Error("%d source(s) failed", n)
				return fmt.Errorf("%d of %d sources failed", n, len(sources))
			}
			ui.Success("Refined %d source(s)", len(sources))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "source to refine (repeatable, default: refine.sources)")
	return cmd
}

func printSummary(ui *UI, s *refine.Summary) {
	ui.Section("Refined " + s.IngestDate)

	names := make([]string, 0, len(s.Partitions))
	for name := range s.Partitions {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names)+len(s.Errors))
	for _, name := range names {
		p := s.Partitions[name]
		rows = append(rows, []string{
			name,
			string(p.Format),
			fmt.Sprint(p.InputRows),
			fmt.Sprint(p.Rows),
			fmt.Sprint(p.Duplicates),
			fmt.Sprint(p.NullRows),
			strings.Join(p.DroppedColumns, ","),
			joinStatus(p.Join),
		})
	}

	failed := make([]string, 0, len(s.Errors))
	for name := range s.Errors {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		rows = append(rows, []string{name, "-", "-", "-", "-", "-", "-", Truncate("error: "+s.Errors[name], 48)})
	}

	ui.Table([]string{"Source", "Format", "Input", "Rows", "Dupes", "Nulls", "Dropped", "Join"}, rows)
	for _, name := range names {
		ui.KeyValue(name, s.Partitions[name].Location)
	}
}

func joinStatus(j *refine.JoinOutcome) string {
	switch {
	case j == nil:
		return ""
	case j.Skipped:
		return Truncate("skipped: "+j.Reason, 48)
	default:
		return fmt.Sprintf("%s (%d rows)", j.With, j.Rows)
	}
}
