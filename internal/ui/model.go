// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Renders connection, session state, buffer and playback position
package ui

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/slimplayer/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected bool
	server    string
	name      string

	// Session
	state     session.State
	sessionID uint64
	codec     string
	lastEvent string
	elapsed   time.Duration
	underrun  bool

	// Buffer
	occupancy int
	capacity  int
	received  uint64

	// Output
	volume float64
	muted  bool

	jiffies uint32
	errMsg  string

	showDebug bool
	controls  *Controls

	// Dimensions
	width  int
	height int
}

// StatusMsg carries one published status snapshot
type StatusMsg struct {
	Status session.Status
}

// ConnMsg reports a control connection change
type ConnMsg struct {
	Connected bool
	Server    string
}

// ErrorMsg surfaces an error the player wants the user to see
type ErrorMsg struct {
	Err error
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
		m.applyStatus(msg.Status)
	case ConnMsg:
		m.connected = msg.Connected
		if msg.Server != "" {
			m.server = msg.Server
		}
		if !msg.Connected {
			m.state = session.StateDisconnected
		}
	case ErrorMsg:
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
		}
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
	s += m.renderStream()
	s += m.renderBuffer()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders player name and connection status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.server)
	}

	return fmt.Sprintf(`┌─ %-51s┐
│ Status: %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(m.name+" ", 51), truncate(connStatus, 45))
}

// renderStream renders state, codec and position
func (m Model) renderStream() string {
	s := fmt.Sprintf("│ State:  %-45s │\n", m.state.String())
	if m.sessionID == 0 {
		s += "│ No stream                                            │\n"
	} else {
		s += fmt.Sprintf("│ Stream: #%-6d %-8s %-28s │\n", m.sessionID, m.codec, formatElapsed(m.elapsed))
	}

	if m.errMsg != "" {
		s += fmt.Sprintf("│ Error:  %-45s │\n", truncate(m.errMsg, 45))
	}
	return s
}

// renderBuffer renders buffer occupancy and volume
func (m Model) renderBuffer() string {
	percent := 0
	if m.capacity > 0 {
		percent = m.occupancy * 100 / m.capacity
	}
	underrun := ""
	if m.underrun {
		underrun = " underrun"
	}

	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}
	vol := int(m.volume*100 + 0.5)

	return fmt.Sprintf("│                                                      │\n"+
		"│ Buffer: [%s] %3d%%%-21s │\n"+
		"│ Volume: [%s] %3d%%%-21s │\n",
		renderBar(percent, 100, 10), percent, underrun,
		renderBar(min(vol, 100), 100, 10), vol, muteIcon)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `├──────────────────────────────────────────────────────┤
│ r:Reconnect  d:Debug  q:Quit                         │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders raw counters
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Last event: %-38s │
│   Received:   %-38d │
│   Buffered:   %-38s │
│   Jiffies:    %-38d │
`, m.lastEvent, m.received, fmt.Sprintf("%d / %d bytes", m.occupancy, m.capacity), m.jiffies)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.signalQuit()
		return m, tea.Quit
	case "r":
		m.controls.signalReconnect()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates the model from a status snapshot
func (m *Model) applyStatus(st session.Status) {
	// acknowledgements of superseded commands say nothing about the
	// current session
	if st.Stale {
		return
	}

	m.state = st.State
	if st.State != session.StateDisconnected && st.State != session.StateHandshaking {
		m.connected = true
	}
	m.sessionID = st.SessionID
	m.codec = st.Codec
	m.lastEvent = st.Event
	m.elapsed = st.Elapsed()
	m.underrun = st.Underrun
	m.occupancy = st.Occupancy
	m.capacity = st.Capacity
	m.received = st.BytesReceived
	m.volume = st.Volume
	m.muted = st.Muted
	m.jiffies = st.Jiffies

	if st.Error != "" {
		m.errMsg = st.Error
	} else if st.State == session.StatePlaying {
		m.errMsg = ""
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := (value * width) / max
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

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
