package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/app"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	var abort bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: `Run extraction, transformation and cataloging in order.

The command exits non-zero when the run fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)

			stages := pipeline.StageConfigFrom(cfg)
			if cmd.Flags().Changed("abort-on-required-failure") {
				stages.AbortOnRequiredFailure = abort
			}

			var bar *mpb.Bar
			a, err := openApp(ctx, app.WithResultObserver(func(r pipeline.StageResult) {
				if bar != nil && r.Status != pipeline.ResultStarted {
					bar.Increment()
				}
			}))
			if err != nil {
				ui.Close()
				return err
			}
			defer a.Close()

			bar = ui.StageBar("units", int64(countUnits(stages)))
			start := time.Now()
			run, err := a.Orchestrator.Run(ctx, stages)
			if bar != nil {
				// Skipped stages never report, so finish the bar explicitly.
				bar.SetTotal(-1, true)
			}
			ui.Close()
			if err != nil {
				ui.Error("Pipeline could not start: %v", err)
				return err
			}

			if outputJSON {
				if err := printJSON(run); err != nil {
					return err
				}
			} else {
				printRun(ui, run, time.Since(start))
			}
			if run.Status != pipeline.RunSucceeded {
				return fmt.Errorf("run %s %s", run.RunID, run.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&abort, "abort-on-required-failure", false, "stop after the first failed required unit")
	return cmd
}

func countUnits(stages pipeline.StageConfig) int {
	n := 0
	for _, s := range stages.Stages {
		n += len(s.Units)
	}
	return n
}

func printRun(ui *UI, run *pipeline.PipelineRun, elapsed time.Duration) {
	ui.Section("Pipeline Run")
	ui.KeyValue("Run ID", run.RunID)
	ui.KeyValue("Status", string(run.Status))
	ui.KeyValue("Duration", FormatDuration(elapsed))
	if run.Reason != "" {
		ui.KeyValue("Reason", run.Reason)
	}
	ui.Newline()

	ui.Table([]string{"#", "Stage", "Unit", "Status", "Table", "Error"}, resultRows(run.Results))

	if run.Insight != "" {
		ui.Section("Insight")
		fmt.Fprintln(ui.out, run.Insight)
	}
	ui.Newline()
	if run.Status == pipeline.RunSucceeded {
		ui.Success("Pipeline succeeded")
		return
	}
	ui.Error("Pipeline failed: %d unit(s) failed", len(run.Failed()))
}

func resultRows(results []pipeline.StageResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			fmt.Sprint(r.Seq),
			string(r.Stage),
			r.UnitID,
			string(r.Status),
			r.TableName,
			Truncate(r.Error, 48),
		})
	}
	return rows
}
