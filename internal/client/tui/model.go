// Package tui is the client's terminal key surface: r toggles mute, q quits.
package tui

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dkeye/voicerelay/internal/client"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Width(12)

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)
)

// Controller is the part of the client runtime the view drives.
type Controller interface {
	Name() string
	Server() netip.AddrPort
	Connected() bool
	Muted() bool
	ToggleMute() bool
	Stats() client.Stats
	Status() <-chan client.Status
	Done() <-chan struct{}
}

const refreshInterval = 250 * time.Millisecond

type tickMsg time.Time

type statusMsg client.Status

type doneMsg struct{}

type Model struct {
	ctl    Controller
	stats  client.Stats
	muted  bool
	last   *client.Status
	closed bool
	width  int
}

func New(ctl Controller) Model {
	return Model{ctl: ctl, muted: ctl.Muted(), stats: ctl.Stats()}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitStatus(m.ctl), waitDone(m.ctl))
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitStatus(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case st := <-ctl.Status():
			return statusMsg(st)
		case <-ctl.Done():
			return doneMsg{}
		}
	}
}

func waitDone(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctl.Done()
		return doneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch strings.ToLower(msg.String()) {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.muted = m.ctl.ToggleMute()
		}
		return m, nil

	case tickMsg:
		m.stats = m.ctl.Stats()
		return m, tick()

	case statusMsg:
		st := client.Status(msg)
		m.last = &st
		return m, waitStatus(m.ctl)

	case doneMsg:
		m.closed = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("voice relay client"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	row("name", m.ctl.Name())
	row("server", m.ctl.Server().String())

	switch {
	case m.closed:
		row("connection", errorStyle.Render("closed"))
	case m.ctl.Connected():
		row("connection", liveStyle.Render("connected"))
	default:
		row("connection", dimStyle.Render("disconnected"))
	}

	if m.muted {
		row("mic", mutedStyle.Render("MUTED"))
	} else {
		row("mic", liveStyle.Render("live"))
	}

	row("sent", fmt.Sprintf("%d frames (%d dropped)", m.stats.Sent, m.stats.DroppedCapture))
	row("received", fmt.Sprintf("%d frames (%d dropped)", m.stats.Received, m.stats.DroppedPlayback))

	if m.last != nil {
		b.WriteString("\n")
		text := fmt.Sprintf("%s  %s", m.last.At.Format("15:04:05"), m.last.Message)
		if m.last.Kind == client.StatusError || m.last.Kind == client.StatusClosed {
			b.WriteString(errorStyle.Render(text))
		} else {
			b.WriteString(dimStyle.Render(text))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("r mute/unmute · q quit"))
	b.WriteString("\n")
	return b.String()
}
