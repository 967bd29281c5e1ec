// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the status display
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Command is a transport action requested from the keyboard.
type Command int

const (
	CommandPlayPause Command = iota
	CommandStop
	CommandLoop
	CommandVolumeUp
	CommandVolumeDown
)

// Control holds channels for keyboard driven playback control
type Control struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(control *Control) Model {
	return Model{
		state:   "stopped",
		volume:  1,
		control: control,
	}
}

// Run starts the TUI
func Run(control *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(control), tea.WithAltScreen())
	return p, nil
}
