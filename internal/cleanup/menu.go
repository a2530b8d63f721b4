package cleanup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// Menu presents the numbered selection list. Input is either a
// keyword (e.g. "all" or a sweep-specific filter like "unused") or a
// comma-separated list of 1-based numbers. A single bad token rejects
// the whole line so a typo never deletes the wrong resource.
type Menu struct {
	prompter *Prompter
	filters  []Filter
}

func NewMenu(prompter *Prompter, filters []Filter) *Menu {
	return &Menu{prompter: prompter, filters: filters}
}

// Select prints the items and reads a selection, returning 0-based
// indices. An empty answer cancels and returns nil with no error.
// AutoApprove selects everything.
func (m *Menu) Select(items []Item) ([]int, error) {
	if len(items) == 0 {
		return nil, nil
	}

	out := m.prompter.out
	for i, item := range items {
		marker := "  "
		if item.Safety.IsRisky() {
			marker = color.YellowString("⚠️ ")
		}
		fmt.Fprintf(out, "%s%3d. %s\n", marker, i+1, item.Display)
	}
	fmt.Fprintln(out)

	if m.prompter.AutoApprove {
		return allIndices(len(items)), nil
	}

	for {
		fmt.Fprintf(out, "Select resources to delete (%s, or press Enter to cancel): ", m.grammarHint())
		answer, err := m.prompter.readLine()
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return nil, nil
		}

		indices, ok := m.parse(answer, items)
		if !ok {
			fmt.Fprintln(out, color.RedString("Invalid selection, nothing chosen. Try again."))
			continue
		}
		if len(indices) == 0 {
			fmt.Fprintln(out, "No resources match that selection. Try again.")
			continue
		}
		return indices, nil
	}
}

func (m *Menu) grammarHint() string {
	keywords := []string{"numbers like 1,3", "'all'"}
	for _, f := range m.filters {
		keywords = append(keywords, fmt.Sprintf("'%s'", f.Keyword))
	}
	return strings.Join(keywords, ", ")
}

func (m *Menu) parse(answer string, items []Item) ([]int, bool) {
	lowered := strings.ToLower(strings.TrimSpace(answer))

	if lowered == "all" {
		return allIndices(len(items)), true
	}

	for _, filter := range m.filters {
		if lowered != strings.ToLower(filter.Keyword) {
			continue
		}
		var indices []int
		for i, item := range items {
			if filter.Match(item) {
				indices = append(indices, i)
			}
		}
		return indices, true
	}

	var indices []int
	seen := make(map[int]bool)
	for _, token := range strings.Split(lowered, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		number, err := strconv.Atoi(token)
		if err != nil || number < 1 || number > len(items) {
			return nil, false
		}
		if seen[number-1] {
			continue
		}
		seen[number-1] = true
		indices = append(indices, number-1)
	}
	if len(indices) == 0 {
		return nil, false
	}
	return indices, true
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
