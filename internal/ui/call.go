package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Controls are the call actions bound to keys in the call view.
type Controls interface {
	Call() error
	HangUp()
}

type UpdateKind int

const (
	UpdateConnected UpdateKind = iota
	UpdateStatus
	UpdatePeer
	UpdateState
	UpdateTrack
	UpdateEnded
	UpdateError
)

// CallUpdate is sent from the call goroutines to the view.
type CallUpdate struct {
	Kind UpdateKind
	Text string
	Err  error

	// Fatal closes the view after showing Err.
	Fatal bool
}

type callResultMsg struct{ err error }

type hungUpMsg struct{}

type clockMsg time.Time

type updatesClosedMsg struct{}

// CallModel is the bubbletea model of a running participant.
type CallModel struct {
	room   string
	self   string
	peer   string
	status string
	state  string
	tracks []string
	notice string

	connectedAt time.Time
	duration    time.Duration

	spinner  spinner.Model
	updates  <-chan CallUpdate
	controls Controls
	now      func() time.Time

	quitting bool
	err      error
}

func NewCallModel(room string, updates <-chan CallUpdate, controls Controls) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallModel{
		room:     room,
		status:   "Connecting",
		spinner:  s,
		updates:  updates,
		controls: controls,
		now:      time.Now,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdates(), clockCmd())
}

func (m *CallModel) waitForUpdates() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return updatesClosedMsg{}
		}
		return u
	}
}

func clockCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			controls := m.controls
			return m, func() tea.Msg { return callResultMsg{err: controls.Call()} }
		case "h":
			controls := m.controls
			return m, func() tea.Msg {
				controls.HangUp()
				return hungUpMsg{}
			}
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case CallUpdate:
		m.apply(msg)
		if msg.Fatal {
			m.err = msg.Err
			return m, tea.Quit
		}
		return m, m.waitForUpdates()

	case callResultMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}

	case hungUpMsg:
		m.apply(CallUpdate{Kind: UpdateEnded, Text: "You hung up"})

	case updatesClosedMsg:
		return m, tea.Quit

	case clockMsg:
		if !m.connectedAt.IsZero() {
			m.duration = time.Time(msg).Sub(m.connectedAt)
		}
		return m, clockCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *CallModel) apply(u CallUpdate) {
	switch u.Kind {
	case UpdateConnected:
		m.self = u.Text
		m.status = "Joining room"
	case UpdateStatus:
		m.status = u.Text
	case UpdatePeer:
		m.peer = u.Text
		if u.Text == "" {
			m.status = "Peer left, waiting for a peer"
			m.resetCall()
		} else {
			m.status = "Peer in room"
		}
	case UpdateState:
		m.state = u.Text
		if u.Text == "stable" && m.connectedAt.IsZero() {
			m.connectedAt = m.now()
			m.status = "In call"
		}
	case UpdateTrack:
		m.tracks = append(m.tracks, u.Text)
	case UpdateEnded:
		m.status = u.Text
		m.resetCall()
	case UpdateError:
		if u.Err != nil {
			m.notice = u.Err.Error()
		}
	}
}

func (m *CallModel) resetCall() {
	m.state = ""
	m.tracks = nil
	m.connectedAt = time.Time{}
	m.duration = 0
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("\n%s %s  %s %s  %s\n\n",
		IconCall, TitleStyle.Render("Warpcall"),
		IconRoom, BoldStyle.Render(m.room),
		MutedStyle.Render("you: "+cmpOr(m.self, "-")),
	))

	icon := m.spinner.View()
	if !m.connectedAt.IsZero() {
		icon = IconAudio
	}
	b.WriteString(fmt.Sprintf("%s %s\n", icon, m.status))

	peer := m.peer
	if peer == "" {
		peer = MutedStyle.Render("nobody yet")
	}
	b.WriteString(fmt.Sprintf("%s Peer: %s\n", IconPeer, peer))

	if m.state != "" {
		b.WriteString(fmt.Sprintf("   Negotiation: %s", StatusStyle.Render(m.state)))
		if !m.connectedAt.IsZero() {
			b.WriteString(fmt.Sprintf("  Call: %s", formatClock(m.duration)))
		}
		b.WriteString("\n")
	}

	for _, t := range m.tracks {
		b.WriteString(fmt.Sprintf("   Remote %s\n", t))
	}

	if m.notice != "" {
		b.WriteString(ErrorStyle.Render(IconError+" "+m.notice) + "\n")
	}

	b.WriteString("\n" + MutedStyle.Render("c call • h hang up • q quit"))
	return b.String()
}

// Err is the fatal error that closed the view, if any.
func (m *CallModel) Err() error {
	return m.err
}

func (m *CallModel) Duration() time.Duration {
	return m.duration
}

func (m *CallModel) Peer() string {
	return m.peer
}

func cmpOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// RunCall shows the call view until the user quits, a fatal update arrives or ctx ends.
func RunCall(ctx context.Context, m *CallModel) (*CallModel, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return m, err
	}
	if fm, ok := final.(*CallModel); ok {
		return fm, nil
	}
	return m, nil
}
