package state

import (
	"context"
	"errors"
	"fmt"

	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
)

// UpdateFunc receives a private copy of a game's state and returns its successor.
// Returning an error discards the update.
type UpdateFunc func(gameState *gametypes.GameState) (*gametypes.GameState, error)

// Store provides shared access to the states of active games.
// Implementations must be thread-safe.
type Store interface {
	// Get returns a copy of the state of a game.
	Get(ctx context.Context, gameID string) (*gametypes.GameState, error)
	// Set inserts or replaces the state of a game.
	Set(ctx context.Context, gameID string, gameState *gametypes.GameState) error
	// Update atomically reads, transforms and writes the state of a game
	// and returns a copy of the written state.
	Update(ctx context.Context, gameID string, fn UpdateFunc) (*gametypes.GameState, error)
	// Remove deletes a game and reports whether this call removed it.
	Remove(ctx context.Context, gameID string) bool
	// List returns the ids of all stored games.
	List(ctx context.Context) []string
	// Count returns the number of stored games.
	Count() int
}

// ErrNoGame is returned when a game id has no stored state.
type ErrNoGame struct {
	GameID string
}

func (e *ErrNoGame) Error() string {
	if e.GameID == "" {
		return "NoGame: player is not in a game"
	}
	return fmt.Sprintf("NoGame: no such game %s", e.GameID)
}

func IsNoGame(err error) bool {
	var e *ErrNoGame
	return errors.As(err, &e)
}
