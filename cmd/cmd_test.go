package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/discovery"
	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/negotiation"
	"github.com/BioHazard786/Warpcall/internal/server"
	"github.com/BioHazard786/Warpcall/internal/signalclient"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func TestToUpdate(t *testing.T) {
	bob := &signalclient.Peer{ID: "c2", Label: "bob@example.com"}
	anon := &signalclient.Peer{ID: "c3"}
	boom := errors.New("boom")

	tests := []struct {
		name string
		ev   call.Event
		want ui.CallUpdate
	}{
		{"connected", call.Event{Kind: call.EventConnected, SelfID: "c1"}, ui.CallUpdate{Kind: ui.UpdateConnected, Text: "c1"}},
		{"joined alone", call.Event{Kind: call.EventJoined, RoomID: "room1"}, ui.CallUpdate{Kind: ui.UpdateStatus, Text: "Joined room1, waiting for a peer"}},
		{"joined with peer", call.Event{Kind: call.EventJoined, RoomID: "room1", Peer: bob}, ui.CallUpdate{Kind: ui.UpdatePeer, Text: "bob@example.com"}},
		{"peer joined without label", call.Event{Kind: call.EventPeerJoined, Peer: anon}, ui.CallUpdate{Kind: ui.UpdatePeer, Text: "c3"}},
		{"peer left", call.Event{Kind: call.EventPeerLeft}, ui.CallUpdate{Kind: ui.UpdatePeer}},
		{"calling", call.Event{Kind: call.EventCalling, Peer: bob}, ui.CallUpdate{Kind: ui.UpdateStatus, Text: "Calling bob@example.com"}},
		{"incoming", call.Event{Kind: call.EventIncomingCall, Peer: bob}, ui.CallUpdate{Kind: ui.UpdateStatus, Text: "Answering bob@example.com"}},
		{"state", call.Event{Kind: call.EventState, State: negotiation.Stable}, ui.CallUpdate{Kind: ui.UpdateState, Text: "stable"}},
		{"track", call.Event{Kind: call.EventTrack, Track: negotiation.TrackInfo{Kind: "audio"}}, ui.CallUpdate{Kind: ui.UpdateTrack, Text: "audio"}},
		{"hung up", call.Event{Kind: call.EventHungUp}, ui.CallUpdate{Kind: ui.UpdateEnded, Text: "Peer hung up"}},
		{"fatal error", call.Event{Kind: call.EventError, Err: boom, Fatal: true}, ui.CallUpdate{Kind: ui.UpdateError, Err: boom, Fatal: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toUpdate(tt.ev)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := toUpdate(call.Event{Kind: call.EventKind(99)})
	assert.False(t, ok)
}

func TestRelayEventsStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan call.Event, 1)
	out := make(chan ui.CallUpdate, 1)
	done := make(chan struct{})

	go func() {
		relayEvents(ctx, events, out)
		close(done)
	}()

	events <- call.Event{Kind: call.EventConnected, SelfID: "c1"}
	assert.Equal(t, ui.CallUpdate{Kind: ui.UpdateConnected, Text: "c1"}, <-out)

	cancel()
	<-done
}

func TestRunPlainReturnsFatalError(t *testing.T) {
	old := ui.Output
	ui.Output = io.Discard
	defer func() { ui.Output = old }()

	updates := make(chan ui.CallUpdate, 4)
	updates <- ui.CallUpdate{Kind: ui.UpdatePeer, Text: "bob@example.com"}
	updates <- ui.CallUpdate{Kind: ui.UpdateState, Text: "stable"}
	updates <- ui.CallUpdate{Kind: ui.UpdateError, Err: callerr.ErrRoomFull, Fatal: true}

	out := runPlain(context.Background(), updates)
	assert.Equal(t, "bob@example.com", out.peer)
	assert.ErrorIs(t, out.err, callerr.ErrRoomFull)
}

func TestPumpingSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.DiscardHandler)

	none := newPumpingSource(ctx, media.NoSource{}, logger)
	_, err := none.AcquireLocalTracks()
	assert.ErrorIs(t, err, media.ErrMediaUnavailable)

	src := newPumpingSource(ctx, media.NewSyntheticSource("alice"), logger)
	tracks, err := src.AcquireLocalTracks()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "audio", tracks[0].Kind)

	_, err = src.AcquireLocalTracks()
	require.NoError(t, err)
	src.Stop()
	src.Stop()
}

func TestFetchRooms(t *testing.T) {
	s, err := server.New(server.Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	rooms, err := fetchRooms(context.Background(), ts.URL, dns.NewResolver())
	require.NoError(t, err)
	assert.Equal(t, 2, rooms.Capacity)
	assert.Empty(t, rooms.Rooms)

	_, err = fetchRooms(context.Background(), ts.URL+"/missing", dns.NewResolver())
	assert.ErrorIs(t, err, callerr.ErrServerRejected)
}

func TestServerRows(t *testing.T) {
	rows := serverRows([]discovery.Server{{
		Instance: "warpcall-lab",
		Host:     "lab.local.",
		IPs:      []net.IP{net.ParseIP("192.168.1.20")},
		Port:     8080,
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "warpcall-lab", rows[0].Instance)
	assert.Equal(t, "ws://192.168.1.20:8080/ws", rows[0].URL)
}

func TestPeerName(t *testing.T) {
	assert.Empty(t, peerName(nil))
	assert.Equal(t, "c2", peerName(&signalclient.Peer{ID: "c2"}))
	assert.Equal(t, "bob", peerName(&signalclient.Peer{ID: "c2", Label: "bob"}))
}
