package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// ErrMediaUnavailable is returned when no local media can be captured.
var ErrMediaUnavailable = errors.New("media unavailable")

// Track is a local track ready to be added to a peer connection.
type Track struct {
	Kind  string
	Local webrtc.TrackLocal
}

// Source captures local media.
type Source interface {
	AcquireLocalTracks() ([]Track, error)
}

// silentOpusFrame is a 20ms Opus packet that decodes to silence.
var silentOpusFrame = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

// SyntheticSource produces a silent Opus audio track, standing in for a microphone on
// machines without capture devices.
type SyntheticSource struct {
	StreamID string
}

func NewSyntheticSource(streamID string) *SyntheticSource {
	return &SyntheticSource{StreamID: streamID}
}

func (s *SyntheticSource) AcquireLocalTracks() ([]Track, error) {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", s.StreamID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	return []Track{{Kind: webrtc.RTPCodecTypeAudio.String(), Local: audio}}, nil
}

// Pump writes silence into every sample track until ctx is done.
func Pump(ctx context.Context, tracks []Track) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, t := range tracks {
				sample, ok := t.Local.(*webrtc.TrackLocalStaticSample)
				if !ok {
					continue
				}
				if err := sample.WriteSample(pionmedia.Sample{Data: silentOpusFrame, Duration: frameDuration}); err != nil {
					return fmt.Errorf("write sample: %w", err)
				}
			}
		}
	}
}

// NoSource is used when media is disabled. Every acquisition fails.
type NoSource struct{}

func (NoSource) AcquireLocalTracks() ([]Track, error) {
	return nil, ErrMediaUnavailable
}

// SourceByName returns the source for a --media flag value.
func SourceByName(name, streamID string) (Source, error) {
	switch name {
	case "", "synthetic":
		return NewSyntheticSource(streamID), nil
	case "none":
		return NoSource{}, nil
	default:
		return nil, fmt.Errorf("unknown media source %q", name)
	}
}
