package relay

import (
	"errors"
	"fmt"

	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
)

// Registry is the part of the client manager the relay needs
type Registry interface {
	Range(fn func(client *clients.Client) bool)
}

// Filter selects recipients. Empty fields match every client.
// Non-empty fields must all match.
type Filter struct {
	PlayerName string
	GameID     string
}

func (f Filter) matches(client *clients.Client) bool {
	if f.PlayerName != "" && client.Name != f.PlayerName {
		return false
	}
	if f.GameID != "" && client.GameID != f.GameID {
		return false
	}
	return true
}

func (f Filter) String() string {
	return fmt.Sprintf("player_name=%q game_id=%q", f.PlayerName, f.GameID)
}

// Relay fans messages out to the delivery channels of connected clients.
// It is the only path from game logic to connections.
type Relay struct {
	registry Registry
}

func New(registry Registry) *Relay {
	return &Relay{
		registry: registry,
	}
}

// Publish serializes msg once and enqueues it on every matching client's
// outbound channel without blocking. It returns the number of clients the
// message was enqueued for. Recipients whose channel is full are skipped and
// reported through ErrDeliveryFailed.
func (r *Relay) Publish(msg *messages.Message, filter Filter) (int, error) {
	b, err := messages.SerializeMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize %s message: %w", typeOf(msg), err)
	}

	delivered := 0
	var failed []string
	// sends happen under the registry read lock; connections close their
	// channel only after they were removed from the registry
	r.registry.Range(func(client *clients.Client) bool {
		if !filter.matches(client) || client.Outbound == nil {
			return true
		}
		select {
		case client.Outbound <- b:
			delivered++
		default:
			failed = append(failed, client.Name)
		}
		return true
	})

	if len(failed) > 0 {
		err := &ErrDeliveryFailed{MessageType: msg.Type, Recipients: failed}
		log.Warn("%v (%s)", err, filter)
		return delivered, err
	}
	log.Trace("Published %s to %d clients (%s)", msg.Type, delivered, filter)
	return delivered, nil
}

// PublishPayload builds a message from a payload and publishes it.
func (r *Relay) PublishPayload(messageType string, payload interface{}, filter Filter) (int, error) {
	msg, err := messages.NewMessage(messageType, payload)
	if err != nil {
		return 0, err
	}
	return r.Publish(msg, filter)
}

func typeOf(msg *messages.Message) string {
	if msg == nil {
		return "nil"
	}
	return msg.Type
}

// ErrDeliveryFailed reports recipients whose delivery channel could not take a message.
// It describes a problem with the recipients, never with the sender.
type ErrDeliveryFailed struct {
	MessageType string
	Recipients  []string
}

func (e *ErrDeliveryFailed) Error() string {
	return fmt.Sprintf("DeliveryFailed: could not enqueue %s message for %v", e.MessageType, e.Recipients)
}

func IsDeliveryFailed(err error) bool {
	var e *ErrDeliveryFailed
	return errors.As(err, &e)
}
