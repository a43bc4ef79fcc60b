package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	toggle   key.Binding
	next     key.Binding
	previous key.Binding
	forward  key.Binding
	rewind   key.Binding
	louder   key.Binding
	quieter  key.Binding
	search   key.Binding
	enter    key.Binding
	back     key.Binding
	dismiss  key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:   key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/pause")),
		next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		previous: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		forward:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "+10s")),
		rewind:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "-10s")),
		louder:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume up")),
		quieter:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "volume down")),
		search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		dismiss:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss error")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.search, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.toggle, k.next, k.previous},
		{k.rewind, k.forward, k.louder, k.quieter},
		{k.search, k.dismiss, k.quit},
	}
}
