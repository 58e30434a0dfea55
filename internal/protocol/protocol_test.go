package protocol

import (
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		wantErr bool
	}{
		{"join", &Message{Type: KindJoinRoom, RoomID: "room1", Label: "a@x.com"}, false},
		{"join without room", &Message{Type: KindJoinRoom, Label: "a@x.com"}, true},
		{"join with long room", &Message{Type: KindJoinRoom, RoomID: strings.Repeat("r", 129)}, true},
		{"join with control chars", &Message{Type: KindJoinRoom, RoomID: "room\x00"}, true},
		{"call initiate", &Message{Type: KindCallInitiate, To: "c2", SDP: "O1"}, false},
		{"call initiate without target", &Message{Type: KindCallInitiate, SDP: "O1"}, true},
		{"call accept without sdp", &Message{Type: KindCallAccept, To: "c1"}, true},
		{"renegotiate request", &Message{Type: KindRenegotiateRequest, SDP: "O2"}, false},
		{"renegotiate response without sdp", &Message{Type: KindRenegotiateResponse}, true},
		{"leave", &Message{Type: KindLeaveRoom}, false},
		{"hang up", &Message{Type: KindHangUp}, false},
		{"server kind from client", &Message{Type: KindPeerJoined}, true},
		{"unknown kind", &Message{Type: "room:join"}, true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())
	assert.Equal(t, websocket.TextMessage, c.FrameType())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, c.FrameType())

	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestJSONOmitsUnusedFields(t *testing.T) {
	data, err := JSONCodec{}.Marshal(&Message{Type: KindPeerLeft})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"peer-left"}`, string(data))
}

func TestMsgpackCarriesSDPVerbatim(t *testing.T) {
	sdp := "v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\n"
	data, err := MsgpackCodec{}.Marshal(&Message{Type: KindCallInitiate, To: "c2", SDP: sdp})
	require.NoError(t, err)

	var got Message
	require.NoError(t, MsgpackCodec{}.Unmarshal(data, &got))
	assert.Equal(t, sdp, got.SDP)
	assert.Equal(t, KindCallInitiate, got.Type)
}

func TestRelayStripsRoutingInput(t *testing.T) {
	in := &Message{Type: KindRenegotiateRequest, SDP: "O2", RoomID: "spoofed", Label: "spoofed", From: "spoofed"}
	out := in.Relay("c1")

	assert.Equal(t, "c1", out.From)
	assert.Equal(t, "O2", out.SDP)
	assert.Empty(t, out.RoomID)
	assert.Empty(t, out.Label)
	assert.True(t, out.Type.IsRelay())
	assert.False(t, KindJoinRoom.IsRelay())
}
