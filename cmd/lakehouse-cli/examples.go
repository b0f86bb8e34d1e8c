package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/fewshot"
)

func newExamplesCmd() *cobra.Command {
	var (
		nearest string
		topK    int
	)

	cmd := &cobra.Command{
		Use:   "examples",
		Short: "Show the few-shot example corpus",
		Long: `List the examples used to prime query translation. With --nearest the
examples closest to the given question are shown with their similarity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if nearest == "" {
				examples := a.Index.Examples()
				if outputJSON {
					return printJSON(examples)
				}
				ui.Section(fmt.Sprintf("%d examples (%s)", len(examples), a.Embedder.Model()))
				ui.Table([]string{"#", "Question", "Payload"}, exampleRows(examples, nil))
				return nil
			}

			vec, err := a.Embedder.EmbedSingle(ctx, nearest)
			if err != nil {
				return fmt.Errorf("embed question: %w", err)
			}
			matches := a.Index.Nearest(vec, topK)
			if outputJSON {
				return printJSON(matches)
			}
			if len(matches) == 0 {
				ui.Warning("No examples matched")
				return nil
			}
			examples := make([]fewshot.Example, len(matches))
			scores := make([]float64, len(matches))
			for i, m := range matches {
				examples[i] = m.Example
				scores[i] = m.Score
			}
			ui.Section("Nearest examples")
			ui.Table([]string{"#", "Question", "Payload", "Score"}, exampleRows(examples, scores))
			return nil
		},
	}

	cmd.Flags().StringVar(&nearest, "nearest", "", "show the examples closest to this question")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "number of nearest examples")
	return cmd
}

// exampleRows renders examples with an optional score column.
func exampleRows(examples []fewshot.Example, scores []float64) [][]string {
	rows := make([][]string, 0, len(examples))
	for i, ex := range examples {
		keys := make([]string, 0, len(ex.Payload))
		for k := range ex.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for j, k := range keys {
			pairs[j] = k + "=" + ex.Payload[k]
		}

		row := []string{fmt.Sprint(i + 1), Truncate(ex.Question, 48), Truncate(strings.Join(pairs, " "), 56)}
		if scores != nil {
			row = append(row, fmt.Sprintf("%.3f", scores[i]))
		}
		rows = append(rows, row)
	}
	return rows
}
