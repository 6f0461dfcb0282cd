package types

import (
	"fmt"

	"github.com/davemo88/ggez-multiplayer/pkg/game/constants"
)

type GameState struct {
	// Participants lists the player names of the game in match order
	Participants []string `json:"participants"`
	// PlayerStates maps every participant to its state
	PlayerStates map[string]*PlayerState `json:"player_states"`
	// Tick is the number of completed ticks
	Tick int64 `json:"tick"`
	// Winner is set by rules that decide the game
	Winner string `json:"winner,omitempty"`
}

// NewGameState creates the initial state of a game between the given players,
// each with a default PlayerState.
func NewGameState(participants ...string) *GameState {
	g := &GameState{
		Participants: make([]string, 0, len(participants)),
		PlayerStates: make(map[string]*PlayerState, len(participants)),
	}
	for _, name := range participants {
		g.Participants = append(g.Participants, name)
		g.PlayerStates[name] = NewPlayerState()
	}
	return g
}

func (g *GameState) Copy() *GameState {
	newGameState := &GameState{
		Participants: make([]string, len(g.Participants)),
		PlayerStates: make(map[string]*PlayerState, len(g.PlayerStates)),
		Tick:         g.Tick,
		Winner:       g.Winner,
	}
	copy(newGameState.Participants, g.Participants)
	for name, player := range g.PlayerStates {
		newGameState.PlayerStates[name] = player.Copy()
	}
	return newGameState
}

// HasParticipant reports whether name takes part in the game.
func (g *GameState) HasParticipant(name string) bool {
	for _, p := range g.Participants {
		if p == name {
			return true
		}
	}
	return false
}

// Opponent returns the other participant of a two player game.
func (g *GameState) Opponent(name string) (string, bool) {
	if !g.HasParticipant(name) {
		return "", false
	}
	for _, p := range g.Participants {
		if p != name {
			return p, true
		}
	}
	return "", false
}

// Validate checks that the game has the expected number of participants and
// that the player states are keyed exactly by them.
func (g *GameState) Validate() error {
	if len(g.Participants) != constants.PlayersPerGame {
		return fmt.Errorf("game has %d participants, want %d", len(g.Participants), constants.PlayersPerGame)
	}
	if len(g.PlayerStates) != len(g.Participants) {
		return fmt.Errorf("game has %d participants but %d player states", len(g.Participants), len(g.PlayerStates))
	}
	for _, name := range g.Participants {
		if _, ok := g.PlayerStates[name]; !ok {
			return fmt.Errorf("participant %q has no player state", name)
		}
	}
	return nil
}
