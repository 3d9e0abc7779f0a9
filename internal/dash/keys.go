package dash

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard key bindings.
type KeyMap struct {
	NextPane key.Binding
	PrevPane key.Binding
	Search   key.Binding
	Status   key.Binding
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Optimize key.Binding
	Draft    key.Binding
	Approve  key.Binding
	Reject   key.Binding
	Refresh  key.Binding
	Close    key.Binding
	Quit     key.Binding
}

// DefaultKeyMap uses vim-style movement alongside arrow keys.
var DefaultKeyMap = KeyMap{
	NextPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
	PrevPane: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev pane")),
	Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Status:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "status filter")),
	Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Left:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "less")),
	Right:    key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "more")),
	Optimize: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "optimize")),
	Draft:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "review draft")),
	Approve:  key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("C-a", "approve")),
	Reject:   key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("C-x", "reject")),
	Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Close:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPane, k.Search, k.Status, k.Optimize, k.Draft, k.Refresh, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextPane, k.PrevPane, k.Up, k.Down, k.Left, k.Right},
		{k.Search, k.Status, k.Optimize, k.Draft, k.Approve, k.Reject},
		{k.Refresh, k.Close, k.Quit},
	}
}

// modalKeys is the help shown while the draft review is open.
type modalKeys struct{ KeyMap }

func (k modalKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Approve, k.Reject, k.Close}
}

func (k modalKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
