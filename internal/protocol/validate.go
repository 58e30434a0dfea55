package protocol

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidMessage is returned for inbound messages that are malformed for their kind.
var ErrInvalidMessage = errors.New("invalid message")

var validate = validator.New(validator.WithRequiredStructEnabled())

type fieldRule struct {
	name  string
	value string
	tag   string
}

// Validate checks an inbound client message. Only client to server kinds are accepted.
func Validate(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: empty frame", ErrInvalidMessage)
	}

	var rules []fieldRule
	switch msg.Type {
	case KindJoinRoom:
		rules = []fieldRule{
			{"room_id", msg.RoomID, "required,max=128,printascii"},
			{"label", msg.Label, "omitempty,max=254"},
		}
	case KindCallInitiate, KindCallAccept:
		rules = []fieldRule{
			{"to", msg.To, "required,max=64"},
			{"sdp", msg.SDP, "required"},
		}
	case KindRenegotiateRequest, KindRenegotiateResponse:
		rules = []fieldRule{{"sdp", msg.SDP, "required"}}
	case KindLeaveRoom, KindHangUp:
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidMessage, msg.Type)
	}

	for _, r := range rules {
		if err := validate.Var(r.value, r.tag); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return fmt.Errorf("%w: %s failed %q", ErrInvalidMessage, r.name, verrs[0].Tag())
			}
			return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, r.name, err)
		}
	}
	return nil
}
