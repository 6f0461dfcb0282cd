package broker

import (
	"context"
	"fmt"

	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/game"
	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/queue"
	"github.com/davemo88/ggez-multiplayer/pkg/relay"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
)

// Broker ties the registries together for the HTTP and websocket layers.
type Broker struct {
	ClientManager *clients.ClientManager
	MatchQueue    queue.Queue
	Store         state.Store
	Rules         gametypes.Rules
	Relay         *relay.Relay
	Sessions      *game.SessionManager
}

type NewBrokerOptions struct {
	ClientManager *clients.ClientManager
	MatchQueue    queue.Queue
	Store         state.Store
	Rules         gametypes.Rules
	Relay         *relay.Relay
	Sessions      *game.SessionManager
}

func NewBroker(opts NewBrokerOptions) *Broker {
	b := &Broker{
		ClientManager: opts.ClientManager,
		MatchQueue:    opts.MatchQueue,
		Store:         opts.Store,
		Rules:         opts.Rules,
		Relay:         opts.Relay,
		Sessions:      opts.Sessions,
	}
	b.ClientManager.Events().RegisterHandler(b.handleClientEvent)
	return b
}

// handleClientEvent keeps the match queue free of removed clients
func (b *Broker) handleClientEvent(event clients.ClientEvent) {
	switch event.Type {
	case clients.ClientEventTypeRemove:
		if b.MatchQueue.Remove(event.Token) {
			log.Debug("Removed %s from the match queue", event.Name)
		}
	}
}

// Register creates a client for a player name and returns its token
func (b *Broker) Register(name string) (string, error) {
	token, err := b.ClientManager.Register(name)
	if err != nil {
		return "", err
	}
	log.Info("Registered player %s", name)
	return token, nil
}

// Exists reports whether a token belongs to a registered client
func (b *Broker) Exists(token string) bool {
	return b.ClientManager.Exists(token)
}

// Unregister forgets a client. The game it played in, if any, is left to its session.
func (b *Broker) Unregister(token string) error {
	if !b.ClientManager.Remove(token) {
		return &clients.ErrNoPlayer{Token: token}
	}
	log.Info("Unregistered client %s", token)
	return nil
}

// Connect attaches a connection's outbound channel to a client and queues it for a match.
// Clients already in a game are not queued again.
func (b *Broker) Connect(token string, outbound chan<- []byte) error {
	if err := b.ClientManager.AttachOutbound(token, outbound); err != nil {
		return err
	}
	client, err := b.ClientManager.GetClient(token)
	if err != nil {
		return err
	}
	if client.GameID == "" {
		b.MatchQueue.Enqueue(token)
	}
	return nil
}

// Disconnect drops a client after its connection closed.
// The client is gone from the registry once Disconnect returns.
func (b *Broker) Disconnect(token string) {
	if b.ClientManager.Remove(token) {
		log.Info("Client %s disconnected", token)
	}
}

// HandleAction applies a player action to the player's game through the rules
// and sends the player's resulting state back to them.
func (b *Broker) HandleAction(ctx context.Context, token string, action gametypes.Action) error {
	client, err := b.ClientManager.GetClient(token)
	if err != nil {
		return err
	}
	if client.GameID == "" {
		return &state.ErrNoGame{}
	}

	var rejected error
	gameState, err := b.Store.Update(ctx, client.GameID, func(gameState *gametypes.GameState) (*gametypes.GameState, error) {
		next, err := b.Rules.Apply(client.Name, action, gameState)
		if err != nil {
			rejected = err
			return nil, err
		}
		return next, nil
	})
	if rejected != nil {
		return &ErrRejected{Action: action.Type, Err: rejected}
	}
	if err != nil {
		return err
	}

	update, ok := game.PlayerUpdateFromState(client.GameID, client.Name, gameState)
	if !ok {
		return fmt.Errorf("player %s is not a participant of game %s", client.Name, client.GameID)
	}
	filter := relay.Filter{PlayerName: client.Name, GameID: client.GameID}
	if _, err := b.Relay.PublishPayload(messages.MessageTypeServerStateUpdate, update, filter); err != nil {
		log.Warn("Failed to send state to %s: %v", client.Name, err)
	}
	return nil
}

// Publish delivers an already built server message to the clients matching filter.
func (b *Broker) Publish(msg *messages.Message, filter relay.Filter) (int, error) {
	return b.Relay.Publish(msg, filter)
}

// Stats is a snapshot of the broker's registries
type Stats struct {
	Clients  int `json:"clients"`
	Queued   int `json:"queued"`
	Games    int `json:"games"`
	Sessions int `json:"sessions"`
}

func (b *Broker) Stats() Stats {
	return Stats{
		Clients:  b.ClientManager.Count(),
		Queued:   b.MatchQueue.Size(),
		Games:    b.Store.Count(),
		Sessions: b.Sessions.Count(),
	}
}
