// ABOUTME: Bubbletea model for the playback status TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// maxErrors bounds the recent dispatch error list.
const maxErrors = 5

// Model represents the TUI state
type Model struct {
	// Show
	show     string
	state    string
	position time.Duration
	duration time.Duration
	loop     bool
	volume   float64

	// Cues
	emitted   int64
	remaining int

	// Devices
	devices int

	// Recent dispatch errors, newest last
	errors []string

	// Dimensions
	width  int
	height int

	control *Control
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case ErrorMsg:
		m.applyError(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderPlayback()
	s += m.renderStats()
	s += m.renderErrors()
	s += m.renderHelp()

	return s
}

// renderHeader renders the loaded show line
func (m Model) renderHeader() string {
	show := m.show
	if show == "" {
		show = "(no show loaded)"
	}

	return fmt.Sprintf(`┌─ OpenLights Core ────────────────────────────────────┐
│ Show:  %-46s │
├──────────────────────────────────────────────────────┤
`, truncate(show, 46))
}

// renderPlayback renders transport state and position
func (m Model) renderPlayback() string {
	loopText := "off"
	if m.loop {
		loopText = "on"
	}

	progress := renderBar(m.position, m.duration, 20)
	return fmt.Sprintf("│ State: %-10s Loop: %-4s Vol: %3.0f%%%-11s │\n"+
		"│ [%s] %s / %s%-12s │\n",
		m.state, loopText, m.volume*100, "",
		progress, clockFormat(m.position), clockFormat(m.duration), "")
}

// renderStats renders cue and device counters
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Cues:  fired: %-6d pending: %-6d devices: %-4d │
`, m.emitted, m.remaining, m.devices)
}

// renderErrors renders the recent dispatch error list
func (m Model) renderErrors() string {
	if len(m.errors) == 0 {
		return "│ Errors: none                                         │\n"
	}

	s := "│ Errors:                                              │\n"
	for _, e := range m.errors {
		s += fmt.Sprintf("│   %-50s │\n", truncate(e, 50))
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ space:Play/Pause  s:Stop  l:Loop  +/-:Vol  q:Quit   │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.control != nil {
			select {
			case m.control.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case " ":
		m.send(CommandPlayPause)
	case "s":
		m.send(CommandStop)
	case "l":
		m.send(CommandLoop)
	case "+", "=":
		m.send(CommandVolumeUp)
	case "-":
		m.send(CommandVolumeDown)
	}

	return m, nil
}

func (m Model) send(c Command) {
	if m.control == nil {
		return
	}
	select {
	case m.control.Commands <- c:
	default:
	}
}

// applyStatus updates model from a status snapshot
func (m *Model) applyStatus(msg StatusMsg) {
	m.show = msg.Show
	m.state = msg.State
	m.position = msg.Position
	m.duration = msg.Duration
	m.loop = msg.Loop
	m.volume = msg.Volume
	m.emitted = msg.Emitted
	m.remaining = msg.Remaining
	m.devices = msg.Devices
}

// applyError appends to the bounded error list
func (m *Model) applyError(msg ErrorMsg) {
	line := fmt.Sprintf("%s: %s", msg.Device, msg.Err)
	m.errors = append(m.errors, line)
	if len(m.errors) > maxErrors {
		m.errors = m.errors[len(m.errors)-maxErrors:]
	}
}

// StatusMsg updates TUI state from an engine snapshot
type StatusMsg struct {
	Show      string
	State     string
	Position  time.Duration
	Duration  time.Duration
	Loop      bool
	Volume    float64
	Emitted   int64
	Remaining int
	Devices   int
}

// ErrorMsg reports a dispatch failure
type ErrorMsg struct {
	Device string
	Err    string
}

// Utility functions
func renderBar(value, max time.Duration, width int) string {
	filled := 0
	if max > 0 {
		filled = int(int64(value) * int64(width) / int64(max))
		if filled > width {
			filled = width
		}
	}
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func clockFormat(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}
