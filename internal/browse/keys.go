package browse

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	SwitchTab   key.Binding
	Open        key.Binding
	Description key.Binding
	AniList     key.Binding
	Back        key.Binding
	Quit        key.Binding
}

var keys = keyMap{
	Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	SwitchTab:   key.NewBinding(key.WithKeys("tab", "left", "right", "h", "l"), key.WithHelp("tab", "enriched/pending")),
	Open:        key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detail")),
	Description: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "description")),
	AniList:     key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open on AniList")),
	Back:        key.NewBinding(key.WithKeys("esc", "backspace", "b"), key.WithHelp("esc", "back")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// listHelp is the help shown under the entry list.
type listHelp struct{ keyMap }

func (k listHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.SwitchTab, k.Open, k.Back, k.Quit}
}

func (k listHelp) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

// detailHelp is the help shown under a full-screen entry.
type detailHelp struct{ keyMap }

func (k detailHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Description, k.AniList, k.Back, k.Quit}
}

func (k detailHelp) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }
