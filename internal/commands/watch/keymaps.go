package watch

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the watch dashboard.
type KeyMap struct {
	MarkRead key.Binding
	Resync   key.Binding
	Tab      key.Binding
	Help     key.Binding
	Quit     key.Binding
	Confirm  key.Binding
	Deny     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.MarkRead, k.Resync, k.Tab, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.MarkRead, k.Resync},
		{k.Tab, k.Help, k.Quit},
	}
}

// DefaultKeyMap returns a set of default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		MarkRead: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "mark notifications read"),
		),
		Resync: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "resync counters"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "events/uploads"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "cancel upload and quit"),
		),
		Deny: key.NewBinding(
			key.WithKeys("n", "N", "esc"),
			key.WithHelp("n", "stay"),
		),
	}
}
