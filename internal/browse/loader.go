package browse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/synopsis/internal/catalog"
)

// errCancelled is returned by RunLoader when the user presses ctrl+c.
var errCancelled = errors.New("cancelled")

// YearFunc loads the entries of one season year.
type YearFunc func(ctx context.Context, year int) (enriched, pending []catalog.Entry, err error)

type yearLoadedMsg struct {
	enriched []catalog.Entry
	pending  []catalog.Entry
	err      error
}

type loaderModel struct {
	year     int
	load     YearFunc
	spinner  spinner.Model
	enriched []catalog.Entry
	pending  []catalog.Entry
	err      error
	done     bool
}

func newLoaderModel(year int, load YearFunc) loaderModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("33"))),
	)
	return loaderModel{year: year, load: load, spinner: s}
}

func (m loaderModel) Init() tea.Cmd {
	load, year := m.load, m.year
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		enriched, pending, err := load(ctx, year)
		return yearLoadedMsg{enriched: enriched, pending: pending, err: err}
	})
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case yearLoadedMsg:
		m.enriched, m.pending, m.err = msg.enriched, msg.pending, msg.err
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err = errCancelled
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Joining %d metadata with stored summaries...\n", m.spinner.View(), m.year)
}

// RunLoader shows a spinner while a year loads. It renders inline (no alt screen).
func RunLoader(year int, load YearFunc) (enriched, pending []catalog.Entry, err error) {
	result, err := tea.NewProgram(newLoaderModel(year, load)).Run()
	if err != nil {
		return nil, nil, err
	}
	final := result.(loaderModel)
	return final.enriched, final.pending, final.err
}
