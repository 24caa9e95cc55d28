package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit        key.Binding
	refresh     key.Binding
	toggleHelp  key.Binding
	moveLeft    key.Binding
	moveRight   key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	grab        key.Binding
	cancel      key.Binding
	retry       key.Binding
	dismiss     key.Binding
	cycleFilter key.Binding
	itemInfo    key.Binding
	yank        key.Binding
	toggleStats key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		refresh:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:    key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "stage left")),
		moveRight:   key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "stage right")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "contact up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "contact down")),
		grab:        key.NewBinding(key.WithKeys("enter", "space"), key.WithHelp("enter", "grab/drop")),
		cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel drag")),
		retry:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry move")),
		dismiss:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "dismiss banner")),
		cycleFilter: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "cycle filter")),
		itemInfo:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "contact info")),
		yank:        key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy contact")),
		toggleStats: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "toggle stats")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.grab, k.itemInfo, k.cycleFilter, k.retry, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.grab, k.cancel, k.retry, k.dismiss, k.itemInfo, k.yank},
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown},
		{k.cycleFilter, k.toggleStats, k.refresh, k.toggleHelp, k.quit},
	}
}
