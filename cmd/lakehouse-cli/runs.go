package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/runlog"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded pipeline runs",
	}
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsGetCmd())
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.RunLog.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if outputJSON {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				ui.Info("No runs recorded")
				return nil
			}
			ui.Table([]string{"Run ID", "Status", "Started", "Duration", "Results", "Reason"}, runRows(runs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func newRunsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [run-id]",
		Short: "Show one run and its stage records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.RunLog.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get run %s: %w", args[0], err)
			}
			records, err := a.RunLog.List(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}

			if outputJSON {
				return printJSON(struct {
					Run     *runlog.Run     `json:"run"`
					Records []runlog.Record `json:"records"`
				}{run, records})
			}

			ui.Section("Run " + run.RunID)
			ui.KeyValue("Status", run.Status)
			ui.KeyValue("Started", run.StartedAt.Format(time.RFC3339))
			ui.KeyValue("Duration", runDuration(*run))
			if run.Reason != "" {
				ui.KeyValue("Reason", run.Reason)
			}
			if run.Insight != "" {
				ui.KeyValue("Insight", run.Insight)
			}
			ui.Newline()
			ui.Table([]string{"#", "Stage", "Job", "Job Run", "Table", "Status", "Error"}, recordRows(records))
			return nil
		},
	}
}

func runDuration(r runlog.Run) string {
	if r.CompletedAt == nil {
		return "running"
	}
	return FormatDuration(r.CompletedAt.Sub(r.StartedAt))
}

func runRows(runs []runlog.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.RunID,
			r.Status,
			r.StartedAt.Format(time.RFC3339),
			runDuration(r),
			fmt.Sprint(r.Results),
			Truncate(r.Reason, 40),
		})
	}
	return rows
}

func recordRows(records []runlog.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			fmt.Sprint(r.Seq),
			r.Stage,
			r.JobName,
			r.JobRunID,
			r.TableName,
			r.Status,
			Truncate(r.Error, 40),
		})
	}
	return rows
}
