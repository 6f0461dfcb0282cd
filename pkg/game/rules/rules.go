package rules

import (
	"fmt"

	"github.com/davemo88/ggez-multiplayer/pkg/game/constants"
	"github.com/davemo88/ggez-multiplayer/pkg/game/types"
)

const (
	// ActionPressedA is the only action understood by the bundled rules
	ActionPressedA = "PressedA"
)

// ErrUnknownAction is returned by rules that do not understand an action.
type ErrUnknownAction struct {
	Type string
}

func (e *ErrUnknownAction) Error() string {
	return fmt.Sprintf("unknown action %q", e.Type)
}

// New returns the rules registered under name.
func New(name string, raceTarget int) (types.Rules, error) {
	switch name {
	case "", "noop":
		return Noop{}, nil
	case "race":
		return NewPressRace(raceTarget), nil
	default:
		return nil, fmt.Errorf("unknown rules %q", name)
	}
}

// Noop counts actions and ticks but never ends a game.
type Noop struct{}

func (Noop) Apply(player string, action types.Action, state *types.GameState) (*types.GameState, error) {
	if ps, ok := state.PlayerStates[player]; ok {
		ps.Actions++
	}
	return state, nil
}

func (Noop) Tick(state *types.GameState) (*types.GameState, bool) {
	state.Tick++
	return state, false
}

// PressRace is won by the first player to press A Target times.
type PressRace struct {
	Target int
}

func NewPressRace(target int) *PressRace {
	if target <= 0 {
		target = constants.RaceTarget
	}
	return &PressRace{Target: target}
}

func (r *PressRace) Apply(player string, action types.Action, state *types.GameState) (*types.GameState, error) {
	ps, ok := state.PlayerStates[player]
	if !ok {
		return nil, fmt.Errorf("player %s is not a participant", player)
	}
	if action.Type != ActionPressedA {
		return nil, &ErrUnknownAction{Type: action.Type}
	}
	// presses after the game is decided are ignored
	if state.Winner != "" {
		return state, nil
	}
	ps.Actions++
	ps.Score++
	if ps.Score >= r.Target {
		state.Winner = player
	}
	return state, nil
}

func (r *PressRace) Tick(state *types.GameState) (*types.GameState, bool) {
	state.Tick++
	return state, state.Winner != ""
}
