package negotiation

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// SessionID returns the origin session id of a session description.
func SessionID(raw string) (uint64, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return 0, fmt.Errorf("parse sdp: %w", err)
	}
	return desc.Origin.SessionID, nil
}

func sdpAttrs(raw string) []any {
	id, err := SessionID(raw)
	if err != nil {
		return []any{"sdp_bytes", len(raw)}
	}
	return []any{"sdp_session", id, "sdp_bytes", len(raw)}
}
