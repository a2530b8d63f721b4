package cleanup

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styles centralizes the picker's visual styling
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Warning  lipgloss.Style
	Help     lipgloss.Style
	Border   lipgloss.Style
}

func NewStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(1, 0),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 0, 1, 0),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(1, 0, 0, 0),
		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}

type pickerItem struct {
	index    int
	display  string
	risky    bool
	selected bool
}

func (p pickerItem) FilterValue() string { return p.display }

type pickerDelegate struct{}

func (d pickerDelegate) Height() int                             { return 1 }
func (d pickerDelegate) Spacing() int                            { return 0 }
func (d pickerDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d pickerDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(pickerItem)
	if !ok {
		return
	}

	checkbox := "☐"
	if item.selected {
		checkbox = "☑"
	}
	warning := "  "
	if item.risky {
		warning = "⚠️"
	}

	str := fmt.Sprintf("  %s %s %s", checkbox, warning, item.display)
	if index == m.Index() {
		str = fmt.Sprintf("▶ %s %s %s", checkbox, warning, item.display)
	}

	fmt.Fprint(w, str)
}

// pickerModel is a single-screen multi-select over the sweep's items
type pickerModel struct {
	kind      string
	itemList  list.Model
	selected  map[int]bool
	confirmed bool
	styles    Styles
}

func newPickerModel(kind string, items []Item) pickerModel {
	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = pickerItem{
			index:   i,
			display: item.Display,
			risky:   item.Safety.IsRisky(),
		}
	}

	l := list.New(listItems, pickerDelegate{}, 100, 20)
	l.Title = ""
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)

	return pickerModel{
		kind:     kind,
		itemList: l,
		selected: make(map[int]bool),
		styles:   NewStyles(),
	}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.selected = make(map[int]bool)
			return m, tea.Quit
		case " ":
			if item, ok := m.itemList.SelectedItem().(pickerItem); ok {
				m.selected[item.index] = !m.selected[item.index]
				m = m.refreshCheckboxes()
			}
			return m, nil
		case "a":
			for _, listItem := range m.itemList.Items() {
				if item, ok := listItem.(pickerItem); ok {
					m.selected[item.index] = true
				}
			}
			m = m.refreshCheckboxes()
			return m, nil
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.itemList.SetSize(msg.Width-6, msg.Height-8)
		return m, nil
	}

	var cmd tea.Cmd
	m.itemList, cmd = m.itemList.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	title := m.styles.Title.Render(fmt.Sprintf("🧹 Select %s to delete", m.kind))
	subtitle := m.styles.Subtitle.Render(fmt.Sprintf("%d selected", len(m.pickedIndices())))
	help := m.styles.Help.Render("space toggle • a select all • enter confirm • q cancel")

	return m.styles.Border.Render(fmt.Sprintf("%s\n%s\n%s\n%s", title, subtitle, m.itemList.View(), help))
}

func (m pickerModel) refreshCheckboxes() pickerModel {
	items := make([]list.Item, len(m.itemList.Items()))
	for i, listItem := range m.itemList.Items() {
		if item, ok := listItem.(pickerItem); ok {
			item.selected = m.selected[item.index]
			items[i] = item
		}
	}
	m.itemList.SetItems(items)
	return m
}

func (m pickerModel) pickedIndices() []int {
	var indices []int
	for index, picked := range m.selected {
		if picked {
			indices = append(indices, index)
		}
	}
	sort.Ints(indices)
	return indices
}

// PickWithTUI runs the full-screen picker and returns the 0-based
// indices of the chosen items. Cancelling returns an empty selection.
func PickWithTUI(kind string, items []Item) ([]int, error) {
	program := tea.NewProgram(newPickerModel(kind, items), tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("picker error: %w", err)
	}

	model, ok := finalModel.(pickerModel)
	if !ok || !model.confirmed {
		return nil, nil
	}
	return model.pickedIndices(), nil
}
