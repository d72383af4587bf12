package browse

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/amishk599/synopsis/internal/catalog"
)

const anilistURL = "https://anilist.co/anime/"

// Lines per entry in the list pane (title + subtitle).
const rowHeight = 2

const (
	tabEnriched = iota
	tabPending
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	focusedPaneStyle = paneStyle.
				BorderForeground(lipgloss.Color("39"))

	tabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("245"))

	activeTabStyle = tabStyle.
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24"))

	yearStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	rowTitleStyle    = lipgloss.NewStyle().Bold(true)
	rowMetaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cursorTitleStyle = rowTitleStyle.Foreground(lipgloss.Color("39"))
	cursorMetaStyle  = rowMetaStyle.Foreground(lipgloss.Color("111"))

	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(14)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	ruleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	bodyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// browseModel shows one season year as a list of entries beside a preview of
// the entry under the cursor. Enter expands the preview to the full screen.
type browseModel struct {
	year    int
	tabs    [2][]catalog.Entry
	tab     int
	cursors [2]int

	list    viewport.Model
	preview viewport.Model
	width   int
	height  int
	ready   bool

	expanded        bool
	full            viewport.Model
	showDescription bool

	help     help.Model
	wantQuit bool
}

func newBrowseModel(year int, enriched, pending []catalog.Entry) browseModel {
	sortByPopularity(enriched)
	sortByPopularity(pending)
	m := browseModel{year: year, help: help.New()}
	m.tabs[tabEnriched] = enriched
	m.tabs[tabPending] = pending
	if len(enriched) == 0 && len(pending) > 0 {
		m.tab = tabPending
	}
	return m
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.layout()
		return m, nil
	case tea.KeyMsg:
		if m.expanded {
			return m.updateExpanded(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m browseModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.wantQuit = true
		return m, tea.Quit
	case key.Matches(msg, keys.Back):
		return m, tea.Quit
	case key.Matches(msg, keys.SwitchTab):
		m.tab = 1 - m.tab
		m.refresh()
	case key.Matches(msg, keys.Up):
		m.move(-1)
	case key.Matches(msg, keys.Down):
		m.move(1)
	case key.Matches(msg, keys.Open):
		if _, ok := m.selected(); ok {
			m.expanded = true
			m.showDescription = false
			m.full.SetContent(m.renderEntry(m.full.Width))
			m.full.GotoTop()
		}
	default:
		var cmd tea.Cmd
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m browseModel) updateExpanded(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.wantQuit = true
		return m, tea.Quit
	case key.Matches(msg, keys.Back):
		m.expanded = false
		return m, nil
	case key.Matches(msg, keys.AniList):
		if e, ok := m.selected(); ok {
			openURL(anilistURL + strconv.FormatInt(e.Record.ID, 10))
		}
		return m, nil
	case key.Matches(msg, keys.Description):
		m.showDescription = !m.showDescription
		m.full.SetContent(m.renderEntry(m.full.Width))
		return m, nil
	}
	var cmd tea.Cmd
	m.full, cmd = m.full.Update(msg)
	return m, cmd
}

func (m *browseModel) move(delta int) {
	n := len(m.tabs[m.tab])
	if n == 0 {
		return
	}
	m.cursors[m.tab] = min(max(m.cursors[m.tab]+delta, 0), n-1)
	m.refresh()

	top := m.cursors[m.tab] * rowHeight
	switch {
	case top < m.list.YOffset:
		m.list.SetYOffset(top)
	case top+rowHeight > m.list.YOffset+m.list.Height:
		m.list.SetYOffset(top + rowHeight - m.list.Height)
	}
}

func (m browseModel) selected() (catalog.Entry, bool) {
	entries := m.tabs[m.tab]
	if len(entries) == 0 {
		return catalog.Entry{}, false
	}
	return entries[m.cursors[m.tab]], true
}

// layout sizes every viewport from the terminal size: one header line, pane
// borders, and one help line.
func (m *browseModel) layout() {
	inner := max(m.height-5, 4)
	listWidth := max(m.width*2/5-2, 24)
	previewWidth := max(m.width-listWidth-5, 24)

	if !m.ready {
		m.list = viewport.New(listWidth, inner)
		m.preview = viewport.New(previewWidth, inner)
		m.full = viewport.New(max(m.width-2, 24), inner)
		m.ready = true
	} else {
		m.list.Width, m.list.Height = listWidth, inner
		m.preview.Width, m.preview.Height = previewWidth, inner
		m.full.Width, m.full.Height = max(m.width-2, 24), inner
	}
	m.refresh()
	if m.expanded {
		m.full.SetContent(m.renderEntry(m.full.Width))
	}
}

func (m *browseModel) refresh() {
	m.list.SetContent(m.renderList())
	m.preview.SetContent(m.renderEntry(m.preview.Width))
	m.preview.GotoTop()
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		yearStyle.Render(strconv.Itoa(m.year)),
		m.renderTab(tabEnriched, "Enriched"),
		m.renderTab(tabPending, "Pending"),
	)

	if m.expanded {
		return header + "\n" +
			focusedPaneStyle.Render(m.full.View()) + "\n" +
			m.help.View(detailHelp{keys})
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		focusedPaneStyle.Render(m.list.View()),
		" ",
		paneStyle.Render(m.preview.View()),
	)
	return header + "\n" + body + "\n" + m.help.View(listHelp{keys})
}

func (m browseModel) renderTab(tab int, label string) string {
	text := fmt.Sprintf("%s %d", label, len(m.tabs[tab]))
	if tab == m.tab {
		return activeTabStyle.Render(text)
	}
	return tabStyle.Render(text)
}

func (m browseModel) renderList() string {
	entries := m.tabs[m.tab]
	if len(entries) == 0 {
		return hintStyle.Render("  nothing here")
	}

	width := max(m.list.Width-2, 10)
	rows := make([]string, 0, len(entries))
	for i, e := range entries {
		title, meta := rowTitleStyle, rowMetaStyle
		marker := "  "
		if i == m.cursors[m.tab] {
			title, meta = cursorTitleStyle, cursorMetaStyle
			marker = "▌ "
		}
		rows = append(rows,
			marker+title.Render(truncate(e.Record.Title.Display(), width)),
			marker+meta.Render(truncate(rowMeta(e), width)),
		)
	}
	return strings.Join(rows, "\n")
}

// renderEntry renders the selected entry for a pane of the given width.
func (m browseModel) renderEntry(width int) string {
	e, ok := m.selected()
	if !ok {
		return ""
	}
	rec := e.Record
	wrap := max(width-2, 20)

	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			b.WriteString(fieldLabelStyle.Render(label) + value + "\n")
		}
	}
	rule := func(label string) {
		b.WriteString("\n" + ruleStyle.Render(label+" "+strings.Repeat("─", max(wrap-len(label)-1, 3))) + "\n")
	}

	b.WriteString(headingStyle.Render(wordWrap(rec.Title.Display(), wrap)) + "\n\n")
	if rec.Title.English != "" {
		field("Romaji", rec.Title.Romaji)
	}
	field("Season", strings.TrimSpace(strings.ToLower(rec.Season)+" "+strconv.Itoa(rec.Year)))
	if rec.Popularity != nil {
		field("Popularity", humanize.Comma(int64(*rec.Popularity)))
	}
	if rec.MeanScore != nil {
		field("Score", strconv.Itoa(*rec.MeanScore)+"/100")
	}
	field("Genres", strings.Join(rec.Genres, ", "))
	field("AniList", anilistURL+strconv.FormatInt(rec.ID, 10))

	if res := e.Result; res != nil {
		rule("Summary")
		b.WriteString(bodyStyle.Render(wordWrap(res.Summary, wrap)) + "\n\n")
		field("Themes", wordWrap(strings.Join(res.Themes, ", "), max(wrap-14, 10)))
		field("Tagged", strings.Join(res.Genres, ", "))
		if !res.EnrichedAt.IsZero() {
			field("Enriched", humanize.Time(res.EnrichedAt))
		}
	} else {
		b.WriteString("\n" + hintStyle.Render("not enriched yet") + "\n")
	}

	if m.expanded && rec.Description != "" {
		if m.showDescription {
			rule("Description")
			b.WriteString(bodyStyle.Render(wordWrap(rec.Description, wrap)) + "\n")
		} else {
			b.WriteString("\n" + hintStyle.Render("press r for the original description") + "\n")
		}
	}
	return b.String()
}

func rowMeta(e catalog.Entry) string {
	var parts []string
	if e.Record.Season != "" {
		parts = append(parts, strings.ToLower(e.Record.Season))
	}
	if e.Record.Popularity != nil {
		parts = append(parts, humanize.Comma(int64(*e.Record.Popularity))+" fans")
	}
	if e.Result != nil && len(e.Result.Themes) > 0 {
		parts = append(parts, strings.Join(e.Result.Themes, ", "))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " · ")
}

// sortByPopularity orders entries most popular first; entries without a
// popularity figure go last, in ID order.
func sortByPopularity(entries []catalog.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Record.Popularity, entries[j].Record.Popularity
		switch {
		case pi == nil && pj == nil:
			return entries[i].Record.ID < entries[j].Record.ID
		case pi == nil:
			return false
		case pj == nil:
			return true
		}
		return *pi > *pj
	})
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// wordWrap breaks text at spaces so no line exceeds width, keeping existing
// line breaks.
func wordWrap(text string, width int) string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				out = append(out, line)
				line = w
				continue
			}
			line += " " + w
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunBrowseTUI shows one season year. wantQuit is true if the user pressed
// q/ctrl+c, false if they backed out to the year picker.
func RunBrowseTUI(year int, enriched, pending []catalog.Entry) (bool, error) {
	result, err := tea.NewProgram(newBrowseModel(year, enriched, pending), tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	return result.(browseModel).wantQuit, nil
}
