package game

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/game/rules"
	"github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/relay"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	messageType string
	payload     []byte
	filter      relay.Filter
}

type recordingPublisher struct {
	lock     sync.Mutex
	messages []published
	fail     bool
}

func (p *recordingPublisher) PublishPayload(messageType string, payload interface{}, filter relay.Filter) (int, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.messages = append(p.messages, published{messageType: messageType, payload: b, filter: filter})
	if p.fail {
		return 0, &relay.ErrDeliveryFailed{MessageType: messageType}
	}
	return 1, nil
}

func (p *recordingPublisher) ofType(messageType string) []published {
	p.lock.Lock()
	defer p.lock.Unlock()
	var out []published
	for _, m := range p.messages {
		if m.messageType == messageType {
			out = append(out, m)
		}
	}
	return out
}

// countingRules ends the game after endAfter ticks and counts every Tick call.
type countingRules struct {
	endAfter int64
	ticks    atomic.Int64
}

func (r *countingRules) Apply(player string, action types.Action, state *types.GameState) (*types.GameState, error) {
	return state, nil
}

func (r *countingRules) Tick(state *types.GameState) (*types.GameState, bool) {
	r.ticks.Add(1)
	state.Tick++
	if state.Tick >= r.endAfter {
		state.Winner = state.Participants[0]
		return state, true
	}
	return state, false
}

type fixedPresence int

func (p fixedPresence) CountInGame(gameID string) int {
	return int(p)
}

func newTestManager(store state.Store, r types.Rules, publisher Publisher, presence Presence) *SessionManager {
	return NewSessionManager(NewSessionManagerOptions{
		Store:        store,
		Rules:        r,
		Publisher:    publisher,
		Presence:     presence,
		TickInterval: 2 * time.Millisecond,
		AbandonAfter: 3,
	})
}

func TestSession_gameOverRemovesStateOnce(t *testing.T) {
	ctx := context.Background()
	store := state.NewInMemoryStore()
	require.NoError(t, store.Set(ctx, "g1", types.NewGameState("alice", "bob")))
	publisher := &recordingPublisher{}
	r := &countingRules{endAfter: 3}
	m := newTestManager(store, r, publisher, fixedPresence(2))

	require.NoError(t, m.Spawn(ctx, "g1"))
	m.Wait()

	_, err := store.Get(ctx, "g1")
	assert.True(t, state.IsNoGame(err))
	assert.False(t, m.Running("g1"))

	// no ticks after the game ended
	ticks := r.ticks.Load()
	assert.Equal(t, int64(3), ticks)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, ticks, r.ticks.Load())

	gameOvers := publisher.ofType(messages.MessageTypeServerGameOver)
	require.Len(t, gameOvers, 1)
	assert.JSONEq(t, `{"game_id":"g1","winner":"alice"}`, string(gameOvers[0].payload))
	assert.Equal(t, relay.Filter{GameID: "g1"}, gameOvers[0].filter)

	// one shared and two per-player updates per tick
	updates := publisher.ofType(messages.MessageTypeServerStateUpdate)
	assert.Len(t, updates, 9)
	assert.Equal(t, relay.Filter{GameID: "g1"}, updates[0].filter)
	assert.Equal(t, relay.Filter{PlayerName: "alice", GameID: "g1"}, updates[1].filter)
	assert.Equal(t, relay.Filter{PlayerName: "bob", GameID: "g1"}, updates[2].filter)
}

func TestSession_publishFailuresDoNotStopTicks(t *testing.T) {
	ctx := context.Background()
	store := state.NewInMemoryStore()
	require.NoError(t, store.Set(ctx, "g1", types.NewGameState("alice", "bob")))
	publisher := &recordingPublisher{fail: true}
	r := &countingRules{endAfter: 5}
	m := newTestManager(store, r, publisher, fixedPresence(2))

	require.NoError(t, m.Spawn(ctx, "g1"))
	m.Wait()

	assert.Equal(t, int64(5), r.ticks.Load())
	assert.Len(t, publisher.ofType(messages.MessageTypeServerGameOver), 1)
}

func TestSession_vanishedStateEndsSession(t *testing.T) {
	ctx := context.Background()
	store := state.NewInMemoryStore()
	publisher := &recordingPublisher{}
	m := newTestManager(store, rules.Noop{}, publisher, fixedPresence(2))

	require.NoError(t, m.Spawn(ctx, "missing"))
	m.Wait()

	assert.False(t, m.Running("missing"))
	assert.Empty(t, publisher.ofType(messages.MessageTypeServerGameOver))
}

func TestSession_abandoned(t *testing.T) {
	ctx := context.Background()
	store := state.NewInMemoryStore()
	require.NoError(t, store.Set(ctx, "g1", types.NewGameState("alice", "bob")))
	publisher := &recordingPublisher{}
	m := newTestManager(store, rules.Noop{}, publisher, fixedPresence(0))

	require.NoError(t, m.Spawn(ctx, "g1"))
	m.Wait()

	assert.Zero(t, store.Count())
	gameOvers := publisher.ofType(messages.MessageTypeServerGameOver)
	require.Len(t, gameOvers, 1)
	assert.JSONEq(t, `{"game_id":"g1","reason":"abandoned"}`, string(gameOvers[0].payload))
}

func TestSession_timeLimit(t *testing.T) {
	ctx := context.Background()
	store := state.NewInMemoryStore()
	require.NoError(t, store.Set(ctx, "g1", types.NewGameState("alice", "bob")))
	publisher := &recordingPublisher{}
	m := NewSessionManager(NewSessionManagerOptions{
		Store:           store,
		Rules:           rules.Noop{},
		Publisher:       publisher,
		TickInterval:    time.Millisecond,
		MaxGameDuration: 20 * time.Millisecond,
	})

	require.NoError(t, m.Spawn(ctx, "g1"))
	m.Wait()

	assert.Zero(t, store.Count())
	gameOvers := publisher.ofType(messages.MessageTypeServerGameOver)
	require.Len(t, gameOvers, 1)
	assert.JSONEq(t, `{"game_id":"g1","reason":"time limit reached"}`, string(gameOvers[0].payload))
}

func TestSessionManager_Spawn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := state.NewInMemoryStore()
	require.NoError(t, store.Set(ctx, "g1", types.NewGameState("alice", "bob")))
	m := newTestManager(store, rules.Noop{}, &recordingPublisher{}, fixedPresence(2))

	require.NoError(t, m.Spawn(ctx, "g1"))
	var exists *ErrSessionExists
	assert.ErrorAs(t, m.Spawn(ctx, "g1"), &exists)
	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Running("g1"))

	cancel()
	assert.Eventually(t, func() bool { return !m.Running("g1") }, time.Second, 5*time.Millisecond)
	m.Wait()

	assert.Zero(t, m.Count())
	assert.Error(t, m.Spawn(ctx, "g1"))
	assert.False(t, m.Running("g1"))
	// cancellation does not retire the game
	assert.Equal(t, 1, store.Count())
}

func TestPlayerUpdatesFromState(t *testing.T) {
	gs := types.NewGameState("alice", "bob")
	gs.Tick = 4
	gs.PlayerStates["bob"].Score = 2

	updates := PlayerUpdatesFromState("g1", gs)
	require.Len(t, updates, 2)
	assert.Equal(t, "alice", updates[0].PlayerName)
	assert.Equal(t, "bob", updates[1].PlayerName)
	assert.Equal(t, 2, updates[1].PlayerState.Score)
	assert.Equal(t, int64(4), updates[1].Tick)

	// updates do not alias the state
	updates[1].PlayerState.Score = 9
	assert.Equal(t, 2, gs.PlayerStates["bob"].Score)

	_, ok := PlayerUpdateFromState("g1", "carol", gs)
	assert.False(t, ok)

	assert.Equal(t, &messages.ServerStateUpdate{GameID: "g1", Tick: 4}, GameUpdateFromState("g1", gs))
}
