package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/assistant"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/translate"
)

func newQueryCmd() *cobra.Command {
	var translateOnly bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a question about the gold layer",
		Long: `Translate a natural-language question into SQL, run it against the gold
table and print the deduplicated rows.

With --translate-only the SQL is printed without running it.`,
		Example: `  lakehouse-cli query "Which phones made the most profit last month?"
  lakehouse-cli query --translate-only "How many Dell laptops did we sell?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(outputJSON, noColor)
			defer ui.Close()

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return assistant.ErrEmptyQuestion
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if translateOnly {
				s := ui.Spinner("Translating...")
				resp := a.Translator.Translate(ctx, question)
				ui.StopSpinner(s)
				if outputJSON {
					return printJSON(resp)
				}
				printTranslation(ui, resp)
				return nil
			}

			s := ui.Spinner("Querying...")
			answer, err := a.Assistant.Ask(ctx, question)
			ui.StopSpinner(s)
			if err != nil {
				ui.Error("Query failed: %v", err)
				return err
			}
			if outputJSON {
				return printJSON(answer)
			}
			printAnswer(ui, answer)
			return nil
		},
	}

	cmd.Flags().BoolVar(&translateOnly, "translate-only", false, "print the generated SQL without running it")
	return cmd
}

func printTranslation(ui *UI, resp translate.Response) {
	ui.Section("Translation")
	ui.KeyValue("Action", string(resp.Action))
	if resp.SQL != "" {
		ui.KeyValue("SQL", resp.SQL)
	}
	ui.KeyValue("Reply", resp.Reply)
}

func printAnswer(ui *UI, answer *assistant.Answer) {
	ui.Section("Answer")
	fmt.Fprintln(ui.out, answer.Reply)
	if answer.Action != translate.ActionQuery {
		return
	}

	ui.Newline()
	ui.KeyValue("SQL", answer.SQL)
	if answer.Error != "" {
		ui.Warning("Query did not complete: %s", answer.Error)
		return
	}
	if len(answer.Data) == 0 {
		ui.Info("No rows returned")
		return
	}
	ui.Newline()
	headers, rows := dataTable(answer.Data)
	ui.Table(headers, rows)
	ui.Info("%d row(s)", len(rows))
}

// dataTable lays out result rows under the union of their column names,
// sorted for stable output.
func dataTable(data []map[string]string) ([]string, [][]string) {
	seen := make(map[string]bool)
	var headers []string
	for _, row := range data {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				headers = append(headers, col)
			}
		}
	}
	sort.Strings(headers)

	rows := make([][]string, 0, len(data))
	for _, row := range data {
		cells := make([]string, len(headers))
		for i, col := range headers {
			cells[i] = Truncate(row[col], 40)
		}
		rows = append(rows, cells)
	}
	return headers, rows
}
