package markdown

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadingClampsLevel(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  string
	}{
		{name: "level below range clamps to one", level: 0, want: "# Summary\n\n"},
		{name: "level in range", level: 3, want: "### Summary\n\n"},
		{name: "level above range clamps to six", level: 9, want: "###### Summary\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := New().Heading(tt.level, "Summary")
			assert.Equal(t, tt.want, report.String())
		})
	}
}

func TestTablePadsShortRows(t *testing.T) {
	report := New().Table(
		[]string{"Name", "Region", "Monthly Cost"},
		[][]string{
			{"orders-alb", "us-east-1", "$22.50"},
			{"legacy-clb"},
		},
	)

	want := "| Name | Region | Monthly Cost |\n" +
		"| --- | --- | --- |\n" +
		"| orders-alb | us-east-1 | $22.50 |\n" +
		"| legacy-clb |  |  |\n\n"
	assert.Equal(t, want, report.String())
}

func TestTableIgnoresEmptyHeaders(t *testing.T) {
	report := New().Table(nil, [][]string{{"a"}})
	assert.Empty(t, report.String())
}

func TestDocumentComposition(t *testing.T) {
	report := New().
		Heading(1, "Cleanup Report").
		Paragraph("2 resources deleted.").
		List([]string{"orders-alb", "legacy-clb"}).
		Rule()

	out := report.String()
	assert.Contains(t, out, "# Cleanup Report\n\n")
	assert.Contains(t, out, "2 resources deleted.\n\n")
	assert.Contains(t, out, "- orders-alb\n- legacy-clb\n\n")
	assert.Contains(t, out, "---\n\n")
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	report := New().Heading(1, "Cleanup Report")

	require.NoError(t, report.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Cleanup Report\n\n", string(data))
}
