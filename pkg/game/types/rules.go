package types

import "encoding/json"

// Action is a player-initiated input, e.g. {"type":"PressedA"}.
type Action struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Rules is the pluggable game simulation.
// Implementations receive a private copy of the state and may mutate and
// return it. They must not retain references to it.
type Rules interface {
	// Apply applies a player's action to the game state.
	// An error rejects the action and leaves the stored state untouched.
	Apply(player string, action Action, state *GameState) (*GameState, error)
	// Tick advances the simulation by one tick and reports whether the game is over.
	Tick(state *GameState) (*GameState, bool)
}
