package markdown

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Report is a markdown document built incrementally by the cleanup
// commands and either rendered to the terminal or saved as a raw file.
type Report struct {
	content strings.Builder
}

func New() *Report {
	return &Report{}
}

// Heading adds a heading at the given level (clamped to 1-6).
func (r *Report) Heading(level int, text string) *Report {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	r.content.WriteString(strings.Repeat("#", level) + " " + text + "\n\n")
	return r
}

func (r *Report) Paragraph(text string) *Report {
	r.content.WriteString(text + "\n\n")
	return r
}

func (r *Report) List(items []string) *Report {
	for _, item := range items {
		r.content.WriteString("- " + item + "\n")
	}
	r.content.WriteString("\n")
	return r
}

func (r *Report) Rule() *Report {
	r.content.WriteString("---\n\n")
	return r
}

// Table writes a markdown table. Rows shorter than the header are padded
// with empty cells so the table stays well formed.
func (r *Report) Table(headers []string, rows [][]string) *Report {
	if len(headers) == 0 {
		return r
	}

	r.content.WriteString("| " + strings.Join(headers, " | ") + " |\n")

	separators := make([]string, len(headers))
	for i := range separators {
		separators[i] = "---"
	}
	r.content.WriteString("| " + strings.Join(separators, " | ") + " |\n")

	for _, row := range rows {
		padded := make([]string, len(headers))
		copy(padded, row)
		r.content.WriteString("| " + strings.Join(padded, " | ") + " |\n")
	}

	r.content.WriteString("\n")
	return r
}

func (r *Report) String() string {
	return r.content.String()
}

func (r *Report) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write([]byte(r.content.String()))
	return int64(n), err
}

// RenderToTerminal writes the document to stdout through glamour. If the
// renderer cannot be built the raw markdown is written instead.
func (r *Report) RenderToTerminal() error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(180),
	)
	if err != nil {
		_, err = r.WriteTo(os.Stdout)
		return err
	}

	out, err := renderer.Render(r.content.String())
	if err != nil {
		_, err = r.WriteTo(os.Stdout)
		return err
	}

	_, err = os.Stdout.Write([]byte(out + "\n"))
	return err
}

// SaveToFile writes the raw markdown to the given path.
func (r *Report) SaveToFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %v", path, err)
	}
	defer file.Close()

	if _, err := r.WriteTo(file); err != nil {
		return fmt.Errorf("failed to write report to %s: %v", path, err)
	}

	slog.Info("✅ Report saved", "file", path)
	return nil
}
