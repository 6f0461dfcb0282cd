package workers

import (
	"context"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/clients"
	"github.com/davemo88/ggez-multiplayer/pkg/game"
	"github.com/davemo88/ggez-multiplayer/pkg/game/constants"
	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/queue"
	"github.com/davemo88/ggez-multiplayer/pkg/relay"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
	"github.com/google/uuid"
)

// SessionSpawner starts the session of a newly created game
type SessionSpawner interface {
	Spawn(ctx context.Context, gameID string) error
}

type MatchmakingWorker struct {
	clientManager *clients.ClientManager
	matchQueue    queue.Queue
	store         state.Store
	sessions      SessionSpawner
	publisher     game.Publisher
	interval      time.Duration
	newGameID     func() string
}

type NewMatchmakingWorkerOptions struct {
	ClientManager *clients.ClientManager
	MatchQueue    queue.Queue
	Store         state.Store
	Sessions      SessionSpawner
	Publisher     game.Publisher
	Interval      time.Duration
	// NewGameID defaults to random UUIDs
	NewGameID func() string
}

// NewMatchmakingWorker creates a new MatchmakingWorker.
// The worker polls the match queue, pairs the oldest waiting players,
// creates their game and starts its session.
func NewMatchmakingWorker(opts NewMatchmakingWorkerOptions) *MatchmakingWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = constants.MatchInterval
	}
	newGameID := opts.NewGameID
	if newGameID == nil {
		newGameID = uuid.NewString
	}
	return &MatchmakingWorker{
		clientManager: opts.ClientManager,
		matchQueue:    opts.MatchQueue,
		store:         opts.Store,
		sessions:      opts.Sessions,
		publisher:     opts.Publisher,
		interval:      interval,
		newGameID:     newGameID,
	}
}

func (w *MatchmakingWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if matched := w.matchTick(ctx); matched > 0 {
				log.Debug("Created %d games, %d players still waiting", matched, w.matchQueue.Size())
			}
		}
	}
}

// matchTick pairs waiting players oldest first and returns the number of games created.
// It stops at the first aborted pairing; the survivors are retried on the next poll.
func (w *MatchmakingWorker) matchTick(ctx context.Context) int {
	matched := 0
	for {
		a, b, ok := w.matchQueue.PopPair()
		if !ok {
			return matched
		}
		if !w.matchPair(ctx, a, b) {
			return matched
		}
		matched++
	}
}

// matchPair creates a game for two popped tokens.
// On failure every token that can still be matched goes back to the front of the queue.
func (w *MatchmakingWorker) matchPair(ctx context.Context, a string, b string) bool {
	clientA, errA := w.clientManager.GetClient(a)
	clientB, errB := w.clientManager.GetClient(b)
	if errA != nil || errB != nil {
		log.Debug("Aborting pairing of %s and %s: a player disconnected", a, b)
		w.requeue(a, b)
		return false
	}

	gameID := w.newGameID()
	gameState := gametypes.NewGameState(clientA.Name, clientB.Name)
	if err := w.store.Set(ctx, gameID, gameState); err != nil {
		log.Error("Failed to create game %s: %v", gameID, err)
		w.requeue(a, b)
		return false
	}

	if err := w.clientManager.Match(gameID, a, b); err != nil {
		log.Debug("Aborting pairing of %s and %s: %v", a, b, err)
		w.store.Remove(ctx, gameID)
		w.requeue(a, b)
		return false
	}

	if err := w.sessions.Spawn(ctx, gameID); err != nil {
		log.Error("Failed to spawn session for game %s: %v", gameID, err)
		w.clientManager.Unmatch(gameID, a, b)
		w.store.Remove(ctx, gameID)
		w.requeue(a, b)
		return false
	}

	log.Info("Matched %s and %s in game %s", clientA.Name, clientB.Name, gameID)
	for _, player := range gameState.Participants {
		opponent, _ := gameState.Opponent(player)
		w.notifyMatchFound(gameID, player, opponent)
	}
	return true
}

// requeue puts back, in their original order, the tokens that are still registered and unmatched.
func (w *MatchmakingWorker) requeue(tokens ...string) {
	for i := len(tokens) - 1; i >= 0; i-- {
		token := tokens[i]
		client, err := w.clientManager.GetClient(token)
		if err != nil || client.GameID != "" {
			continue
		}
		w.matchQueue.PushFront(token)
		// a client removed since the lookup found nothing to dequeue
		if !w.clientManager.Exists(token) {
			w.matchQueue.Remove(token)
		}
	}
}

func (w *MatchmakingWorker) notifyMatchFound(gameID string, player string, opponent string) {
	matchFound := &messages.ServerMatchFound{
		GameID:   gameID,
		Opponent: opponent,
	}
	filter := relay.Filter{PlayerName: player, GameID: gameID}
	if _, err := w.publisher.PublishPayload(messages.MessageTypeServerMatchFound, matchFound, filter); err != nil {
		log.Warn("Failed to notify %s of match %s: %v", player, gameID, err)
	}
}
