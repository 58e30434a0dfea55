package media

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/negotiation"
)

const defaultGatherTimeout = 10 * time.Second

// EngineOptions configures a PeerEngine.
type EngineOptions struct {
	Configuration webrtc.Configuration
	Logger        *slog.Logger

	// GatherTimeout bounds the wait for ICE gathering before a description is handed out.
	GatherTimeout time.Duration
}

// PeerEngine runs one pion peer connection for a negotiation.Session. Candidates are
// gathered before a description is returned, so SDP carries them and no trickle is needed.
type PeerEngine struct {
	api           *webrtc.API
	configuration webrtc.Configuration
	logger        *slog.Logger
	gatherTimeout time.Duration

	mu                  sync.Mutex
	pc                  *webrtc.PeerConnection
	tracks              []Track
	described           bool
	onNegotiationNeeded func()
	onTrack             func(negotiation.TrackInfo)
	onStateChange       func(webrtc.PeerConnectionState)

	packets atomic.Int64
}

var _ negotiation.Engine = (*PeerEngine)(nil)

func NewPeerEngine(opts EngineOptions) (*PeerEngine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = defaultGatherTimeout
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(logger)}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se))

	e := &PeerEngine{
		api:           api,
		configuration: opts.Configuration,
		logger:        logger,
		gatherTimeout: opts.GatherTimeout,
	}

	pc, err := e.newPeerConnection()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.pc = pc
	e.mu.Unlock()
	return e, nil
}

func (e *PeerEngine) newPeerConnection() (*webrtc.PeerConnection, error) {
	pc, err := e.api.NewPeerConnection(e.configuration)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	e.registerHandlers(pc)
	return pc, nil
}

// conn returns the live peer connection.
func (e *PeerEngine) conn() *webrtc.PeerConnection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pc
}

func (e *PeerEngine) registerHandlers(pc *webrtc.PeerConnection) {
	// current reports whether pc is still the engine's connection; events of a replaced one are dropped.
	current := func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.pc == pc
	}

	pc.OnNegotiationNeeded(func() {
		e.mu.Lock()
		handler, described := e.onNegotiationNeeded, e.described
		live := e.pc == pc
		e.mu.Unlock()

		// Before the first description the opening offer or answer covers every change.
		if handler == nil || !described || !live {
			return
		}
		go handler()
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		info := negotiation.TrackInfo{
			ID:       track.ID(),
			StreamID: track.StreamID(),
			Kind:     track.Kind().String(),
		}
		e.logger.Debug("remote track", "kind", info.Kind, "codec", track.Codec().MimeType)

		e.mu.Lock()
		handler := e.onTrack
		e.mu.Unlock()
		if handler != nil {
			go handler(info)
		}

		go e.drain(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if !current() {
			return
		}
		e.logger.Debug("peer connection state", "state", state.String())

		e.mu.Lock()
		handler := e.onStateChange
		e.mu.Unlock()
		if handler != nil {
			go handler(state)
		}
	})
}

// drain reads remote RTP so pion's buffers never fill.
func (e *PeerEngine) drain(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		e.packets.Add(1)
	}
}

func (e *PeerEngine) CreateOffer() (string, error) {
	pc := e.conn()

	// An opening offer without media sections would leave nothing to answer.
	if len(pc.GetTransceivers()) == 0 {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return "", fmt.Errorf("add audio transceiver: %w", err)
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return e.applyLocal(pc, offer)
}

func (e *PeerEngine) CreateAnswer(offer string) (string, error) {
	pc := e.conn()
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return e.applyLocal(pc, answer)
}

func (e *PeerEngine) applyLocal(pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)

	if err := pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(e.gatherTimeout):
		e.logger.Warn("ICE gathering incomplete, sending partial candidates")
	}

	e.mu.Lock()
	e.described = true
	e.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

func (e *PeerEngine) SetRemoteAnswer(answer string) error {
	if err := e.conn().SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (e *PeerEngine) Rollback() error {
	pc := e.conn()
	pending := pc.PendingLocalDescription()
	if pending == nil || pending.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("rollback: no local offer pending")
	}
	if pc.CurrentLocalDescription() == nil {
		return e.reset(pc)
	}
	if err := pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback, SDP: pending.SDP}); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// reset replaces a connection that never completed an exchange. Only its opening offer
// would be lost, so starting over is the same as rolling that offer back.
func (e *PeerEngine) reset(old *webrtc.PeerConnection) error {
	pc, err := e.newPeerConnection()
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	e.mu.Lock()
	e.pc = pc
	e.described = false
	tracks := e.tracks
	e.tracks = nil
	e.mu.Unlock()

	if err := old.Close(); err != nil {
		e.logger.Debug("closing withdrawn peer connection", "error", err)
	}
	return e.AddTracks(tracks)
}

// AddTracks starts sending the given local tracks. The resulting renegotiation is reported
// through OnNegotiationNeeded.
func (e *PeerEngine) AddTracks(tracks []Track) error {
	pc := e.conn()
	for _, t := range tracks {
		sender, err := pc.AddTrack(t.Local)
		if err != nil {
			return fmt.Errorf("add %s track: %w", t.Kind, err)
		}
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()

		e.mu.Lock()
		e.tracks = append(e.tracks, t)
		e.mu.Unlock()
	}
	return nil
}

func (e *PeerEngine) OnNegotiationNeeded(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onNegotiationNeeded = f
}

func (e *PeerEngine) OnTrack(f func(negotiation.TrackInfo)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrack = f
}

func (e *PeerEngine) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStateChange = f
}

func (e *PeerEngine) SignalingState() webrtc.SignalingState {
	return e.conn().SignalingState()
}

// LocalDescription returns the current local SDP, or "" before the first exchange.
func (e *PeerEngine) LocalDescription() string {
	if desc := e.conn().LocalDescription(); desc != nil {
		return desc.SDP
	}
	return ""
}

func (e *PeerEngine) RemoteDescription() string {
	if desc := e.conn().RemoteDescription(); desc != nil {
		return desc.SDP
	}
	return ""
}

// PacketsReceived counts RTP packets read from all remote tracks.
func (e *PeerEngine) PacketsReceived() int64 {
	return e.packets.Load()
}

func (e *PeerEngine) Close() error {
	return e.conn().Close()
}
