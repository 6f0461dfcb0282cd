package game

import (
	"github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
)

// GameUpdateFromState builds the untargeted update shared by every participant.
func GameUpdateFromState(gameID string, state *types.GameState) *messages.ServerStateUpdate {
	return &messages.ServerStateUpdate{
		GameID: gameID,
		Tick:   state.Tick,
	}
}

// PlayerUpdateFromState builds the update addressed to a single participant.
func PlayerUpdateFromState(gameID string, player string, state *types.GameState) (*messages.ServerStateUpdate, bool) {
	playerState, ok := state.PlayerStates[player]
	if !ok {
		return nil, false
	}
	return &messages.ServerStateUpdate{
		GameID:      gameID,
		Tick:        state.Tick,
		PlayerName:  player,
		PlayerState: playerState.Copy(),
	}, true
}

// PlayerUpdatesFromState builds one update per participant, in participant order.
func PlayerUpdatesFromState(gameID string, state *types.GameState) []*messages.ServerStateUpdate {
	updates := make([]*messages.ServerStateUpdate, 0, len(state.Participants))
	for _, player := range state.Participants {
		if update, ok := PlayerUpdateFromState(gameID, player, state); ok {
			updates = append(updates, update)
		}
	}
	return updates
}
