package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI writes human-oriented output. In JSON mode every method is a no-op so
// stdout carries only the encoded result.
type UI struct {
	out      io.Writer
	err      io.Writer
	progress *mpb.Progress
	noColor  bool
	jsonMode bool
}

// NewUI creates a UI on stdout and stderr.
func NewUI(jsonMode, noColor bool) *UI {
	ui := &UI{out: os.Stdout, err: os.Stderr, noColor: noColor || !IsTerminal(), jsonMode: jsonMode}
	if !jsonMode {
		ui.progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	}
	return ui
}

// Close waits for progress bars to finish rendering.
func (ui *UI) Close() {
	if ui.progress == nil {
		return
	}
	if IsTerminal() {
		ui.progress.Wait()
	} else {
		ui.progress.Shutdown()
	}
}

func (ui *UI) line(w io.Writer, attr color.Attribute, symbol, format string, args ...any) {
	if ui.jsonMode {
		return
	}
	msg := fmt.Sprintf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	if ui.noColor {
		fmt.Fprint(w, msg)
		return
	}
	color.New(attr).Fprint(w, msg)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...any) { ui.line(ui.out, color.FgGreen, "✓", format, args...) }

// Error prints an error message.
func (ui *UI) Error(format string, args ...any) { ui.line(ui.err, color.FgRed, "✗", format, args...) }

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...any) { ui.line(ui.out, color.FgYellow, "⚠", format, args...) }

// Info prints an info message.
func (ui *UI) Info(format string, args ...any) { ui.line(ui.out, color.FgCyan, "ℹ", format, args...) }

// Step prints a step message.
func (ui *UI) Step(format string, args ...any) { ui.line(ui.out, color.FgBlue, "→", format, args...) }

// StageBar tracks completed pipeline units.
func (ui *UI) StageBar(name string, total int64) *mpb.Bar {
	if ui.progress == nil || total <= 0 {
		return nil
	}
	return ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}), " done"),
		),
	)
}

// SourceBar tracks refined sources.
func (ui *UI) SourceBar(description string, total int) *progressbar.ProgressBar {
	if ui.jsonMode || total <= 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(ui.err),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!ui.noColor),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(ui.err) }),
	)
}

// Spinner starts a spinner for indeterminate work. Stop it with StopSpinner.
func (ui *UI) Spinner(suffix string) *spinner.Spinner {
	if ui.jsonMode {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Writer = ui.err
	s.Start()
	return s
}

// StopSpinner stops s if it is running.
func (ui *UI) StopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}

type border struct {
	h, v       string
	tl, tm, tr string
	ml, mm, mr string
	bl, bm, br string
}

var (
	boxBorder   = border{"─", "│", "┌", "┬", "┐", "├", "┼", "┤", "└", "┴", "┘"}
	asciiBorder = border{"-", "|", "+", "+", "+", "+", "+", "+", "+", "+", "+"}
)

// Table prints rows under headers. Cells beyond the header count are dropped.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}
	b := boxBorder
	if ui.noColor {
		b = asciiBorder
	}
	renderTable(ui.out, b, headers, rows, ui.headerColor())
}

func (ui *UI) headerColor() func(string) string {
	if ui.noColor {
		return func(s string) string { return s }
	}
	sprint := color.New(color.FgCyan, color.Bold).SprintFunc()
	return func(s string) string { return sprint(s) }
}

func renderTable(w io.Writer, b border, headers []string, rows [][]string, paint func(string) string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && displayWidth(cell) > widths[i] {
				widths[i] = displayWidth(cell)
			}
		}
	}

	rule := func(left, mid, right string) {
		parts := make([]string, len(widths))
		for i, width := range widths {
			parts[i] = strings.Repeat(b.h, width+2)
		}
		fmt.Fprintln(w, paint(left+strings.Join(parts, mid)+right))
	}
	cells := func(row []string, style func(string) string) {
		parts := make([]string, len(widths))
		for i, width := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			parts[i] = " " + style(cell) + strings.Repeat(" ", width-displayWidth(cell)) + " "
		}
		fmt.Fprintln(w, b.v+strings.Join(parts, b.v)+b.v)
	}

	rule(b.tl, b.tm, b.tr)
	cells(headers, paint)
	rule(b.ml, b.mm, b.mr)
	for _, row := range rows {
		cells(row, func(s string) string { return s })
	}
	rule(b.bl, b.bm, b.br)
}

func displayWidth(s string) int {
	return len([]rune(s))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	header := fmt.Sprintf("━━━ %s ━━━", strings.ToUpper(title))
	if ui.noColor {
		fmt.Fprintln(ui.out, header)
		return
	}
	color.New(color.FgMagenta, color.Bold).Fprintln(ui.out, header)
}

// KeyValue prints an aligned key-value pair.
func (ui *UI) KeyValue(key, value string) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(ui.out, "  %-16s %s\n", key+":", value)
		return
	}
	fmt.Fprintf(ui.out, "  %s %s\n", color.New(color.FgWhite, color.Bold).Sprintf("%-16s", key+":"), value)
}

// Newline prints an empty line.
func (ui *UI) Newline() {
	if !ui.jsonMode {
		fmt.Fprintln(ui.out)
	}
}

// FormatDuration renders d with a unit suited to its size.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
