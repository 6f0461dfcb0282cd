package clients

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	// ClientIDMaxRetries represents the maximum number of retries when generating a unique token
	ClientIDMaxRetries = 1024
)

// Client represents a registered player
type Client struct {
	Token string
	Name  string
	// GameID is empty until the player is matched
	GameID string
	// Outbound is nil until the websocket upgrade completes.
	// The connection owns the channel; the manager only holds a handle.
	Outbound chan<- []byte
}

// ClientManager manages registered clients
type ClientManager struct {
	clients     map[string]*Client
	clientsLock sync.RWMutex
	events      *ClientEventManager
	newToken    func() string
}

// NewClientManager creates a new ClientManager
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:  make(map[string]*Client),
		events:   NewClientEventManager(),
		newToken: newToken,
	}
}

func newToken() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Events returns the event manager notified about client lifecycle changes
func (cm *ClientManager) Events() *ClientEventManager {
	return cm.events
}

// Register adds a new client and returns its token
func (cm *ClientManager) Register(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("player name is empty")
	}

	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	for _, c := range cm.clients {
		if c.Name == name {
			return "", &ErrNameTaken{Name: name}
		}
	}

	token, err := cm.generateUniqueToken(ClientIDMaxRetries)
	if err != nil {
		return "", fmt.Errorf("failed to generate a unique token: %v", err)
	}
	cm.clients[token] = &Client{
		Token: token,
		Name:  name,
	}
	return token, nil
}

// AttachOutbound sets the delivery channel of a client.
// Attaching the same channel twice is a no-op.
func (cm *ClientManager) AttachOutbound(token string, outbound chan<- []byte) error {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	client, ok := cm.clients[token]
	if !ok {
		return &ErrNoPlayer{Token: token}
	}
	if client.Outbound != nil {
		if client.Outbound == outbound {
			return nil
		}
		return &ErrAlreadyConnected{Token: token}
	}
	client.Outbound = outbound
	return nil
}

// Match sets the game of several clients at once.
// Either every client is matched or none is.
func (cm *ClientManager) Match(gameID string, tokens ...string) error {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	for _, token := range tokens {
		client, ok := cm.clients[token]
		if !ok {
			return &ErrNoPlayer{Token: token}
		}
		if client.GameID != "" {
			return &ErrAlreadyMatched{Token: token, GameID: client.GameID}
		}
	}
	for _, token := range tokens {
		cm.clients[token].GameID = gameID
	}
	return nil
}

// Unmatch clears the game of the given clients that are still matched into gameID.
// Unknown tokens and clients of other games are left alone.
func (cm *ClientManager) Unmatch(gameID string, tokens ...string) {
	cm.clientsLock.Lock()
	defer cm.clientsLock.Unlock()

	for _, token := range tokens {
		if client, ok := cm.clients[token]; ok && client.GameID == gameID {
			client.GameID = ""
		}
	}
}

// GetClient returns a copy of a client
func (cm *ClientManager) GetClient(token string) (*Client, error) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()

	client, ok := cm.clients[token]
	if !ok {
		return nil, &ErrNoPlayer{Token: token}
	}
	c := *client
	return &c, nil
}

// Exists reports whether a token belongs to a registered client
func (cm *ClientManager) Exists(token string) bool {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	_, ok := cm.clients[token]
	return ok
}

// Remove drops a client and reports whether it was registered.
// Removal handlers run after the client is gone.
func (cm *ClientManager) Remove(token string) bool {
	cm.clientsLock.Lock()
	client, ok := cm.clients[token]
	if ok {
		delete(cm.clients, token)
	}
	cm.clientsLock.Unlock()

	if ok {
		cm.events.Trigger(ClientEvent{
			Type:   ClientEventTypeRemove,
			Token:  token,
			Name:   client.Name,
			GameID: client.GameID,
		})
	}
	return ok
}

// Range calls fn for every client while holding the read lock.
// fn must not block and must not call back into the manager.
// Returning false stops the iteration.
func (cm *ClientManager) Range(fn func(client *Client) bool) {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	for _, client := range cm.clients {
		if !fn(client) {
			return
		}
	}
}

// CountInGame returns the number of registered clients matched into a game
func (cm *ClientManager) CountInGame(gameID string) int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	n := 0
	for _, client := range cm.clients {
		if client.GameID == gameID {
			n++
		}
	}
	return n
}

// Count returns the number of registered clients
func (cm *ClientManager) Count() int {
	cm.clientsLock.RLock()
	defer cm.clientsLock.RUnlock()
	return len(cm.clients)
}

// generateUniqueToken generates a unique token with a maximum number of retries
// it reads from the clients, so it needs to be locked before calling
func (cm *ClientManager) generateUniqueToken(maxRetries int) (string, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		token := cm.newToken()
		if token == "" {
			continue
		}
		if _, ok := cm.clients[token]; !ok {
			return token, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique token after %d attempts", maxRetries)
}

// ErrNoPlayer is returned when a token has no registered client.
type ErrNoPlayer struct {
	Token string
}

func (e *ErrNoPlayer) Error() string {
	return fmt.Sprintf("NoPlayer: no client registered for token %s", e.Token)
}

func IsNoPlayer(err error) bool {
	var e *ErrNoPlayer
	return errors.As(err, &e)
}

// ErrNameTaken is returned when a live client already uses a player name.
type ErrNameTaken struct {
	Name string
}

func (e *ErrNameTaken) Error() string {
	return fmt.Sprintf("player name %s is already registered", e.Name)
}

func IsNameTaken(err error) bool {
	var e *ErrNameTaken
	return errors.As(err, &e)
}

// ErrAlreadyConnected is returned when a second connection is attached to a client.
type ErrAlreadyConnected struct {
	Token string
}

func (e *ErrAlreadyConnected) Error() string {
	return fmt.Sprintf("client %s already has a connection", e.Token)
}

func IsAlreadyConnected(err error) bool {
	var e *ErrAlreadyConnected
	return errors.As(err, &e)
}

// ErrAlreadyMatched is returned when a matched client is matched again.
type ErrAlreadyMatched struct {
	Token  string
	GameID string
}

func (e *ErrAlreadyMatched) Error() string {
	return fmt.Sprintf("client %s is already in game %s", e.Token, e.GameID)
}
