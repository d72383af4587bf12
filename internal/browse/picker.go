package browse

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/synopsis/internal/catalog"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerRowStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerCursorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	pickerFooterStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(1, 0, 0, 2)
)

// pickerHeight is the number of year rows shown at once.
const pickerHeight = 15

// progressWidth is the width of the per-year completion bar.
const progressWidth = 20

type pickerModel struct {
	years  []catalog.YearStats
	cursor int
	offset int
	chosen int // -1 = no choice yet, -2 = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, keys.Quit), key.Matches(km, keys.Back):
		m.chosen = -2
		return m, tea.Quit
	case key.Matches(km, keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(km, keys.Down):
		m.cursor = min(m.cursor+1, max(len(m.years)-1, 0))
	case km.String() == "g", km.String() == "home":
		m.cursor = 0
	case km.String() == "G", km.String() == "end":
		m.cursor = max(len(m.years)-1, 0)
	case key.Matches(km, keys.Open):
		m.chosen = m.cursor
		return m, tea.Quit
	}

	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+pickerHeight {
		m.offset = m.cursor - pickerHeight + 1
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render("Synopsis · pick a season year"))
	b.WriteByte('\n')

	end := min(m.offset+pickerHeight, len(m.years))
	for i := m.offset; i < end; i++ {
		y := m.years[i]
		row := fmt.Sprintf("%d %s %4d/%-4d enriched", y.Year, progressBar(y), y.Eligible-y.Pending, y.Eligible)
		if i == m.cursor {
			b.WriteString(pickerCursorStyle.Render("> " + row))
		} else {
			b.WriteString(pickerRowStyle.Render(row))
		}
		b.WriteByte('\n')
	}

	b.WriteString(pickerFooterStyle.Render(fmt.Sprintf("%d of %d  ·  ↑/↓ move  g/G first/last  enter open  q quit", m.cursor+1, len(m.years))))
	return b.String()
}

func progressBar(y catalog.YearStats) string {
	filled := 0
	if y.Eligible > 0 {
		filled = progressWidth * (y.Eligible - y.Pending) / y.Eligible
	}
	return pickerBarStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", progressWidth-filled)
}

// RunYearPicker shows an interactive season year selector. It returns the
// index of the chosen year, or -1 if the user quit.
func RunYearPicker(years []catalog.YearStats) (int, error) {
	result, err := tea.NewProgram(pickerModel{years: years, chosen: -1}).Run()
	if err != nil {
		return -1, err
	}
	if chosen := result.(pickerModel).chosen; chosen >= 0 {
		return chosen, nil
	}
	return -1, nil
}
