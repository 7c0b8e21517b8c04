package dashboard

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings.
type KeyMap struct {
	Cancel  key.Binding
	Details key.Binding
	Close   key.Binding
}

// NewKeyMap returns the default bindings.
func NewKeyMap() KeyMap {
	return KeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "cancel session"),
		),
		Details: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "toggle details"),
		),
		Close: key.NewBinding(
			key.WithKeys("enter", "esc"),
			key.WithHelp("enter", "close"),
		),
	}
}
