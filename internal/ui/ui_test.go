package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControls struct {
	calls   int
	hangUps int
	err     error
}

func (f *fakeControls) Call() error {
	f.calls++
	return f.err
}

func (f *fakeControls) HangUp() {
	f.hangUps++
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCallModelKeys(t *testing.T) {
	controls := &fakeControls{err: errors.New("no peer in the room")}
	m := NewCallModel("room1", make(chan CallUpdate), controls)

	_, cmd := m.Update(key("c"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, 1, controls.calls)
	assert.Contains(t, m.View(), "no peer in the room")

	_, cmd = m.Update(key("h"))
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, 1, controls.hangUps)
	assert.Contains(t, m.View(), "You hung up")

	_, cmd = m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, m.View())
}

func TestCallModelUpdates(t *testing.T) {
	m := NewCallModel("room1", make(chan CallUpdate), &fakeControls{})
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	m.Update(CallUpdate{Kind: UpdateConnected, Text: "c1"})
	assert.Contains(t, m.View(), "you: c1")

	m.Update(CallUpdate{Kind: UpdatePeer, Text: "bob@example.com"})
	m.Update(CallUpdate{Kind: UpdateState, Text: "offer-sent"})
	m.Update(CallUpdate{Kind: UpdateState, Text: "stable"})
	m.Update(CallUpdate{Kind: UpdateTrack, Text: "audio"})
	m.Update(clockMsg(start.Add(75 * time.Second)))

	view := m.View()
	assert.Contains(t, view, "bob@example.com")
	assert.Contains(t, view, "In call")
	assert.Contains(t, view, "01:15")
	assert.Contains(t, view, "Remote audio")
	assert.Equal(t, 75*time.Second, m.Duration())

	m.Update(CallUpdate{Kind: UpdatePeer, Text: ""})
	view = m.View()
	assert.Contains(t, view, "Peer left")
	assert.NotContains(t, view, "Remote audio")
	assert.Zero(t, m.Duration())
}

func TestCallModelFatalUpdateQuits(t *testing.T) {
	m := NewCallModel("room1", make(chan CallUpdate), &fakeControls{})

	_, cmd := m.Update(CallUpdate{Kind: UpdateError, Err: errors.New("room is full"), Fatal: true})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.EqualError(t, m.Err(), "room is full")
}

func TestCallModelStopsWhenUpdatesClose(t *testing.T) {
	updates := make(chan CallUpdate)
	close(updates)
	m := NewCallModel("room1", updates, &fakeControls{})

	msg := m.waitForUpdates()()
	assert.Equal(t, updatesClosedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestRoomsView(t *testing.T) {
	assert.Contains(t, RoomsView(nil), "No active rooms")

	view := RoomsView([]RoomRow{
		{ID: "room1", Members: 2, Capacity: 2},
		{ID: "standup", Members: 1, Capacity: 2},
	})
	assert.Contains(t, view, "room1")
	assert.Contains(t, view, "2/2")
	assert.Contains(t, view, "full")
	assert.Contains(t, view, "waiting")
}

func TestServersView(t *testing.T) {
	view := ServersView([]ServerRow{{Instance: "warpcall-lab", Host: "lab.local.", Port: 8080, URL: "ws://lab.local.:8080/ws"}})
	assert.Contains(t, view, "warpcall-lab")
	assert.Contains(t, view, "ws://lab.local.:8080/ws")
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	defer func() { Output = old }()

	PrintError("boom")
	PrintInfof("%d rooms", 3)
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "3 rooms")
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", formatClock(0))
	assert.Equal(t, "02:05", formatClock(125*time.Second+300*time.Millisecond))
}
