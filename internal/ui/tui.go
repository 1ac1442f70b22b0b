// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the key channels the app listens on
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user requests from the TUI to the app
type Controls struct {
	Reconnect chan struct{}
	Quit      chan struct{}
}

// NewControls creates the control channels
func NewControls() *Controls {
	return &Controls{
		Reconnect: make(chan struct{}, 1),
		Quit:      make(chan struct{}, 1),
	}
}

func (c *Controls) signalQuit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

func (c *Controls) signalReconnect() {
	if c == nil {
		return
	}
	select {
	case c.Reconnect <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(name string, controls *Controls) Model {
	return Model{
		name:     name,
		volume:   1.0,
		controls: controls,
	}
}

// Run creates the TUI program. The caller starts it with p.Run().
func Run(name string, controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(name, controls), tea.WithAltScreen())
}
