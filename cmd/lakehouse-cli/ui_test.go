package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/fewshot"
	"github.com/spherical-ai/spherical/libs/lakehouse-agent/internal/pipeline"
)

func plain(s string) string { return s }

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, asciiBorder, []string{"Stage", "Status"}, [][]string{
		{"transform", "succeeded"},
		{"catalog"},
	}, plain)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "+-----------+-----------+", lines[0])
	assert.Equal(t, "| Stage     | Status    |", lines[1])
	assert.Equal(t, "| transform | succeeded |", lines[3])
	assert.Equal(t, "| catalog   |           |", lines[4])
	assert.Equal(t, lines[0], lines[5])
}

func TestRenderTableBoxWidth(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, boxBorder, []string{"Reply"}, [][]string{{"héllo"}}, plain)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	for _, l := range lines {
		assert.Equal(t, 9, displayWidth(l), l)
	}
}

func TestUITableJSONMode(t *testing.T) {
	var buf bytes.Buffer
	ui := &UI{out: &buf, err: &buf, jsonMode: true}
	ui.Table([]string{"a"}, [][]string{{"1"}})
	ui.Success("done")
	ui.KeyValue("k", "v")
	assert.Empty(t, buf.String())
}

func TestUIPlainOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	ui := &UI{out: &out, err: &errOut, noColor: true}
	ui.Success("refined %d", 2)
	ui.Error("boom")
	ui.KeyValue("Run ID", "r1")

	assert.Equal(t, "✓ refined 2\n  Run ID:          r1\n", out.String())
	assert.Equal(t, "✗ boom\n", errOut.String())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long text", 5, "too …"},
		{"abc", 1, "…"},
		{"abc", 0, "abc"},
		{"ñandú", 3, "ña…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.max), "%q/%d", tt.in, tt.max)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
}

func TestDataTable(t *testing.T) {
	headers, rows := dataTable([]map[string]string{
		{"model": "iPhone 14", "brand": "Apple"},
		{"brand": "Dell", "profit": "300"},
	})
	assert.Equal(t, []string{"brand", "model", "profit"}, headers)
	assert.Equal(t, [][]string{
		{"Apple", "iPhone 14", ""},
		{"Dell", "", "300"},
	}, rows)
}

func TestExampleRows(t *testing.T) {
	examples := []fewshot.Example{
		{Question: "Top phones?", Payload: map[string]string{"model": "iPhone 14", "brand": "Apple"}},
	}
	assert.Equal(t, [][]string{{"1", "Top phones?", "brand=Apple model=iPhone 14"}}, exampleRows(examples, nil))
	assert.Equal(t, "0.875", exampleRows(examples, []float64{0.875})[0][3])
}

func TestCountUnitsAndRows(t *testing.T) {
	stages := pipeline.StageConfig{Stages: []pipeline.StageSpec{
		{Stage: pipeline.StageTransform, Units: []pipeline.Unit{{ID: "a"}, {ID: "b"}}},
		{Stage: pipeline.StageCatalog, Units: []pipeline.Unit{{ID: "gold-crawler"}}},
		{Stage: pipeline.StageExtractConnectors},
	}}
	assert.Equal(t, 3, countUnits(stages))

	rows := resultRows([]pipeline.StageResult{
		{Seq: 1, Stage: pipeline.StageTransform, UnitID: "a", Status: pipeline.ResultFailed, Error: "job failed"},
	})
	assert.Equal(t, [][]string{{"1", "transform", "a", "failed", "", "job failed"}}, rows)
}
