package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davemo88/ggez-multiplayer/pkg/game/constants"
	"github.com/davemo88/ggez-multiplayer/pkg/game/types"
	"github.com/davemo88/ggez-multiplayer/pkg/log"
	"github.com/davemo88/ggez-multiplayer/pkg/messages"
	"github.com/davemo88/ggez-multiplayer/pkg/relay"
	"github.com/davemo88/ggez-multiplayer/pkg/state"
)

// Publisher delivers server messages to connected players
type Publisher interface {
	PublishPayload(messageType string, payload interface{}, filter relay.Filter) (int, error)
}

// Presence reports how many registered clients are matched into a game
type Presence interface {
	CountInGame(gameID string) int
}

// SessionManager spawns and tracks one Session per active game.
type SessionManager struct {
	store           state.Store
	rules           types.Rules
	publisher       Publisher
	presence        Presence
	tickInterval    time.Duration
	maxGameDuration time.Duration
	abandonAfter    int

	lock     sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewSessionManagerOptions contains options for creating a new SessionManager.
type NewSessionManagerOptions struct {
	Store     state.Store
	Rules     types.Rules
	Publisher Publisher
	// Presence is optional; without it sessions are never ended as abandoned
	Presence        Presence
	TickInterval    time.Duration
	MaxGameDuration time.Duration
	AbandonAfter    int
}

func NewSessionManager(opts NewSessionManagerOptions) *SessionManager {
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = constants.TickInterval
	}
	return &SessionManager{
		store:           opts.Store,
		rules:           opts.Rules,
		publisher:       opts.Publisher,
		presence:        opts.Presence,
		tickInterval:    tickInterval,
		maxGameDuration: opts.MaxGameDuration,
		abandonAfter:    opts.AbandonAfter,
		sessions:        make(map[string]*Session),
	}
}

// Spawn starts the session of a game. The game state must already be stored.
// The session stops when the game ends or ctx is cancelled.
func (m *SessionManager) Spawn(ctx context.Context, gameID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to spawn session for game %s: %w", gameID, err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.sessions[gameID]; ok {
		return &ErrSessionExists{GameID: gameID}
	}
	session := &Session{
		gameID:          gameID,
		store:           m.store,
		rules:           m.rules,
		publisher:       m.publisher,
		presence:        m.presence,
		tickInterval:    m.tickInterval,
		maxGameDuration: m.maxGameDuration,
		abandonAfter:    m.abandonAfter,
		logger:          log.With("game_id", gameID),
	}
	m.sessions[gameID] = session
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer func() {
			m.lock.Lock()
			delete(m.sessions, gameID)
			m.lock.Unlock()
		}()
		if err := session.Run(ctx); err != nil {
			session.logger.Error("Session ended with error: %v", err)
		}
	}()

	return nil
}

// Running reports whether a game has a live session
func (m *SessionManager) Running(gameID string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, ok := m.sessions[gameID]
	return ok
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.sessions)
}

// Wait blocks until every spawned session has stopped.
func (m *SessionManager) Wait() {
	m.wg.Wait()
}

// Session drives the ticks of a single game.
type Session struct {
	gameID          string
	store           state.Store
	rules           types.Rules
	publisher       Publisher
	presence        Presence
	tickInterval    time.Duration
	maxGameDuration time.Duration
	abandonAfter    int
	logger          *log.Logger

	idleTicks int
}

// Run ticks the game until the rules end it, a guard ends it or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.maxGameDuration > 0 {
		timer := time.NewTimer(s.maxGameDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	s.logger.Info("Session started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session stopped: %v", ctx.Err())
			return nil
		case <-deadline:
			s.finish(ctx, "", "time limit reached")
			return nil
		case <-ticker.C:
			over, err := s.gameTick(ctx)
			if err != nil {
				if state.IsNoGame(err) {
					return fmt.Errorf("game state vanished: %w", err)
				}
				s.logger.Error("Failed to run tick: %v", err)
				continue
			}
			if over {
				return nil
			}
			if s.abandoned() {
				s.finish(ctx, "", "abandoned")
				return nil
			}
		}
	}
}

// gameTick runs one tick and reports whether the game ended.
func (s *Session) gameTick(ctx context.Context) (bool, error) {
	var over bool
	gameState, err := s.store.Update(ctx, s.gameID, func(gameState *types.GameState) (*types.GameState, error) {
		next, isOver := s.rules.Tick(gameState)
		over = isOver
		return next, nil
	})
	if err != nil {
		return false, err
	}

	s.broadcastGameState(gameState)

	if over {
		s.finish(ctx, gameState.Winner, "")
	}
	return over, nil
}

// broadcastGameState publishes the shared update and each participant's own state.
// Publish failures are logged; the next tick broadcasts current state again.
func (s *Session) broadcastGameState(gameState *types.GameState) {
	if _, err := s.publisher.PublishPayload(messages.MessageTypeServerStateUpdate, GameUpdateFromState(s.gameID, gameState), relay.Filter{GameID: s.gameID}); err != nil {
		s.logger.Warn("Failed to broadcast game state: %v", err)
	}
	for _, update := range PlayerUpdatesFromState(s.gameID, gameState) {
		filter := relay.Filter{PlayerName: update.PlayerName, GameID: s.gameID}
		if _, err := s.publisher.PublishPayload(messages.MessageTypeServerStateUpdate, update, filter); err != nil {
			s.logger.Warn("Failed to send player state to %s: %v", update.PlayerName, err)
		}
	}
}

// abandoned reports whether no participant has been registered for abandonAfter ticks.
func (s *Session) abandoned() bool {
	if s.presence == nil || s.abandonAfter <= 0 {
		return false
	}
	if s.presence.CountInGame(s.gameID) > 0 {
		s.idleTicks = 0
		return false
	}
	s.idleTicks++
	return s.idleTicks >= s.abandonAfter
}

// finish retires the game. Only the call that removes the state announces the end.
func (s *Session) finish(ctx context.Context, winner string, reason string) {
	if !s.store.Remove(ctx, s.gameID) {
		s.logger.Warn("Game state was already removed")
		return
	}
	s.logger.Info("Game over (winner=%q reason=%q)", winner, reason)
	gameOver := &messages.ServerGameOver{
		GameID: s.gameID,
		Winner: winner,
		Reason: reason,
	}
	if _, err := s.publisher.PublishPayload(messages.MessageTypeServerGameOver, gameOver, relay.Filter{GameID: s.gameID}); err != nil {
		s.logger.Warn("Failed to publish game over: %v", err)
	}
}

// ErrSessionExists is returned when a second session is spawned for a game
type ErrSessionExists struct {
	GameID string
}

func (e *ErrSessionExists) Error() string {
	return fmt.Sprintf("game %s already has a session", e.GameID)
}
