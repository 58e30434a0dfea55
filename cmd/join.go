package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/BioHazard786/Warpcall/internal/media"
	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/BioHazard786/Warpcall/internal/signalclient"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var (
	flagServer   string
	flagCodec    string
	flagLabel    string
	flagAutoCall bool
	flagMedia    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagPlain    bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a room and call the other participant",
	Long: `Join a room on the signaling server. When the other participant is present,
press c to call (or pass --call), h to hang up and q to leave.

Examples:
  warpcall join standup
  warpcall join standup --call --label alice@example.com
  warpcall join standup --server wss://signal.example.com/ws --codec msgpack
  warpcall join standup --relay --turn turn.example.com --turn-user u --turn-pass p`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(cmd.Context(), args[0])
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&flagServer, "server", "", "Signaling server websocket url (env SERVER_URL)")
	f.StringVar(&flagCodec, "codec", "", "Wire codec: json or msgpack (env CODEC)")
	f.StringVar(&flagLabel, "label", "", "Name shown to the other participant (default: hostname)")
	f.BoolVar(&flagAutoCall, "call", false, "Call as soon as a peer is in the room")
	f.StringVar(&flagMedia, "media", "synthetic", "Local media: synthetic or none")
	f.StringVar(&flagSTUN, "stun", "", "STUN server url (env STUN_SERVER)")
	f.StringVar(&flagTURN, "turn", "", "TURN server host (env TURN_SERVER)")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	f.BoolVar(&flagRelay, "relay", false, "Force media through the TURN server")
	f.BoolVar(&flagPlain, "plain", false, "Print events line by line instead of the interactive view")

	rootCmd.AddCommand(joinCmd)
}

// callOutcome is what the summary reports once the participant leaves.
type callOutcome struct {
	peer     string
	duration time.Duration
	err      error
}

func runJoin(ctx context.Context, roomID string) error {
	logger := slog.Default()

	cfg, err := config.Load(config.Options{
		ServerURL:  flagServer,
		Codec:      flagCodec,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return callerr.NewError("load config", err)
	}

	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return callerr.NewError("load config", err)
	}

	label := participantLabel()
	src, err := media.SourceByName(flagMedia, label)
	if err != nil {
		return callerr.NewError("select media", err)
	}
	pumping := newPumpingSource(ctx, src, logger)
	defer pumping.Stop()

	sp := ui.NewConnectionSpinner(fmt.Sprintf("Connecting to %s...", cfg.ServerURL))
	sp.Start()
	client := signalclient.NewClient(cfg.WebSocketURL(), codec, dns.NewResolver(), logger)
	if err := client.Connect(ctx); err != nil {
		sp.Error("Could not reach the signaling server")
		return callerr.WrapError("connect to server", err, cfg.ServerURL)
	}
	defer client.Close()
	sp.Success(fmt.Sprintf("Connected to %s", cfg.ServerURL))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan ui.CallUpdate, 64)
	engines := &engineTracker{}

	ctrl := call.NewController(call.Options{
		RoomID:   roomID,
		Label:    label,
		AutoCall: flagAutoCall,
		Source:   pumping,
		Signaler: client,
		Logger:   logger,
		NewEngine: func() (call.Engine, error) {
			eng, err := media.NewPeerEngine(media.EngineOptions{
				Configuration: media.ICEConfiguration(cfg),
				Logger:        logger,
			})
			if err != nil {
				return nil, err
			}
			eng.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
				if state == webrtc.PeerConnectionStateFailed {
					forward(runCtx, updates, ui.CallUpdate{
						Kind: ui.UpdateError,
						Err:  callerr.NewError("media", callerr.ErrConnectionFailed),
					})
				}
			})
			engines.add(eng)
			return eng, nil
		},
	})

	go func() {
		if err := client.Run(runCtx, ctrl); errors.Is(err, signalclient.ErrClosed) {
			forward(runCtx, updates, ui.CallUpdate{
				Kind:  ui.UpdateError,
				Err:   callerr.NewError("signaling", callerr.ErrConnectionLost),
				Fatal: true,
			})
		}
	}()
	go relayEvents(runCtx, ctrl.Events(), updates)

	var outcome callOutcome
	if flagPlain {
		outcome = runPlain(runCtx, updates)
	} else {
		outcome = runInteractive(runCtx, roomID, updates, ctrl)
	}

	ctrl.Leave()

	fmt.Println()
	fmt.Println(ui.CallSummaryView(ui.CallSummary{
		Room:     roomID,
		Peer:     outcome.peer,
		Duration: outcome.duration.Round(time.Second).String(),
		Packets:  engines.packets(),
	}))
	return outcome.err
}

func runInteractive(ctx context.Context, roomID string, updates <-chan ui.CallUpdate, ctrl *call.Controller) callOutcome {
	final, err := ui.RunCall(ctx, ui.NewCallModel(roomID, updates, ctrl))
	if err != nil {
		return callOutcome{err: err}
	}
	return callOutcome{peer: final.Peer(), duration: final.Duration(), err: final.Err()}
}

// runPlain prints updates until ctx ends or a fatal update arrives.
func runPlain(ctx context.Context, updates <-chan ui.CallUpdate) callOutcome {
	var (
		out         callOutcome
		connectedAt time.Time
	)
	endCall := func() {
		if !connectedAt.IsZero() {
			out.duration += time.Since(connectedAt)
			connectedAt = time.Time{}
		}
	}

	for {
		select {
		case <-ctx.Done():
			endCall()
			return out

		case u := <-updates:
			switch u.Kind {
			case ui.UpdateConnected:
				ui.PrintInfof("Signaling id %s", u.Text)
			case ui.UpdateStatus:
				ui.PrintInfo(u.Text)
			case ui.UpdatePeer:
				if u.Text == "" {
					endCall()
					ui.PrintWarning("Peer left the room")
				} else {
					out.peer = u.Text
					ui.PrintInfof("Peer in room: %s", u.Text)
				}
			case ui.UpdateState:
				if u.Text == "stable" && connectedAt.IsZero() {
					connectedAt = time.Now()
					ui.PrintSuccess("Call established")
				}
			case ui.UpdateTrack:
				ui.PrintInfof("Receiving remote %s", u.Text)
			case ui.UpdateEnded:
				endCall()
				ui.PrintWarning(u.Text)
			case ui.UpdateError:
				if u.Fatal {
					endCall()
					out.err = u.Err
					return out
				}
				ui.PrintError(u.Err.Error())
			}
		}
	}
}

func relayEvents(ctx context.Context, events <-chan call.Event, out chan<- ui.CallUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if u, ok := toUpdate(ev); ok {
				forward(ctx, out, u)
			}
		}
	}
}

// toUpdate maps controller events to what the view shows. Events without a visible
// effect are dropped.
func toUpdate(ev call.Event) (ui.CallUpdate, bool) {
	switch ev.Kind {
	case call.EventConnected:
		return ui.CallUpdate{Kind: ui.UpdateConnected, Text: ev.SelfID}, true
	case call.EventJoined:
		if ev.Peer != nil {
			return ui.CallUpdate{Kind: ui.UpdatePeer, Text: peerName(ev.Peer)}, true
		}
		return ui.CallUpdate{Kind: ui.UpdateStatus, Text: fmt.Sprintf("Joined %s, waiting for a peer", ev.RoomID)}, true
	case call.EventPeerJoined:
		return ui.CallUpdate{Kind: ui.UpdatePeer, Text: peerName(ev.Peer)}, true
	case call.EventPeerLeft:
		return ui.CallUpdate{Kind: ui.UpdatePeer}, true
	case call.EventCalling:
		return ui.CallUpdate{Kind: ui.UpdateStatus, Text: "Calling " + peerName(ev.Peer)}, true
	case call.EventIncomingCall:
		return ui.CallUpdate{Kind: ui.UpdateStatus, Text: "Answering " + peerName(ev.Peer)}, true
	case call.EventState:
		return ui.CallUpdate{Kind: ui.UpdateState, Text: ev.State.String()}, true
	case call.EventTrack:
		return ui.CallUpdate{Kind: ui.UpdateTrack, Text: ev.Track.Kind}, true
	case call.EventHungUp:
		return ui.CallUpdate{Kind: ui.UpdateEnded, Text: "Peer hung up"}, true
	case call.EventError:
		return ui.CallUpdate{Kind: ui.UpdateError, Err: ev.Err, Fatal: ev.Fatal}, true
	default:
		return ui.CallUpdate{}, false
	}
}

func forward(ctx context.Context, out chan<- ui.CallUpdate, u ui.CallUpdate) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}

func peerName(p *signalclient.Peer) string {
	if p == nil {
		return ""
	}
	if p.Label != "" {
		return p.Label
	}
	return p.ID
}

func participantLabel() string {
	if flagLabel != "" {
		return flagLabel
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// pumpingSource feeds silence into the tracks of the latest call.
type pumpingSource struct {
	ctx    context.Context
	src    media.Source
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newPumpingSource(ctx context.Context, src media.Source, logger *slog.Logger) *pumpingSource {
	return &pumpingSource{ctx: ctx, src: src, logger: logger}
}

func (p *pumpingSource) AcquireLocalTracks() ([]media.Track, error) {
	tracks, err := p.src.AcquireLocalTracks()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		if err := media.Pump(ctx, tracks); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Debug("media pump stopped", "error", err)
		}
	}()
	return tracks, nil
}

func (p *pumpingSource) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

type engineTracker struct {
	mu      sync.Mutex
	engines []*media.PeerEngine
}

func (t *engineTracker) add(e *media.PeerEngine) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.engines = append(t.engines, e)
}

// packets sums RTP received over every call of this session.
func (t *engineTracker) packets() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, e := range t.engines {
		n += e.PacketsReceived()
	}
	return n
}
