package broker

import (
	"errors"
	"fmt"

	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
)

// ErrRejected is returned when the rules refuse a player action.
type ErrRejected struct {
	Action string
	Err    error
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("Rejected: action %s: %v", e.Action, e.Err)
}

func (e *ErrRejected) Unwrap() error {
	return e.Err
}

func IsRejected(err error) bool {
	var e *ErrRejected
	return errors.As(err, &e)
}

// ErrorMessage converts a request error into the error message sent back to
// the client that caused it. ok is false for errors clients are not told about.
func ErrorMessage(err error) (msg *messages.Message, ok bool) {
	var kind string
	switch {
	case state.IsNoGame(err):
		kind = messages.ErrorKindNoGame
	case clients.IsNoPlayer(err):
		kind = messages.ErrorKindNoPlayer
	case messages.IsMalformedMessage(err):
		kind = messages.ErrorKindMalformedMessage
	case IsRejected(err):
		kind = messages.ErrorKindRejected
	default:
		return nil, false
	}
	msg, mErr := messages.NewMessage(messages.MessageTypeServerError, &messages.ServerError{
		Kind:   kind,
		Reason: err.Error(),
	})
	if mErr != nil {
		return nil, false
	}
	return msg, true
}
