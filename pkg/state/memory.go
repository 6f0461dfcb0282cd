package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	gametypes "github.com/davemo88/ggez-multiplayer/pkg/game/types"
)

// entry holds one game. Its lock linearizes every mutation of that game.
type entry struct {
	lock      sync.Mutex
	gameState *gametypes.GameState
	removed   bool
}

// InMemoryStore keeps game states in memory.
// The map lock only guards membership; state access goes through the entry lock.
type InMemoryStore struct {
	lock  sync.RWMutex
	games map[string]*entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		games: make(map[string]*entry),
	}
}

func (s *InMemoryStore) lookup(gameID string) (*entry, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	e, ok := s.games[gameID]
	return e, ok
}

func (s *InMemoryStore) Get(ctx context.Context, gameID string) (*gametypes.GameState, error) {
	e, ok := s.lookup(gameID)
	if !ok {
		return nil, &ErrNoGame{GameID: gameID}
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.removed {
		return nil, &ErrNoGame{GameID: gameID}
	}
	return e.gameState.Copy(), nil
}

func (s *InMemoryStore) Set(ctx context.Context, gameID string, gameState *gametypes.GameState) error {
	if gameState == nil {
		return fmt.Errorf("game state is nil")
	}
	if err := gameState.Validate(); err != nil {
		return fmt.Errorf("invalid game state for %s: %w", gameID, err)
	}

	s.lock.Lock()
	e, ok := s.games[gameID]
	if !ok {
		e = &entry{}
		s.games[gameID] = e
	}
	s.lock.Unlock()

	e.lock.Lock()
	defer e.lock.Unlock()
	e.gameState = gameState.Copy()
	e.removed = false
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, gameID string, fn UpdateFunc) (*gametypes.GameState, error) {
	e, ok := s.lookup(gameID)
	if !ok {
		return nil, &ErrNoGame{GameID: gameID}
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	// the entry may have been removed while we waited for its lock
	if e.removed {
		return nil, &ErrNoGame{GameID: gameID}
	}

	next, err := fn(e.gameState.Copy())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("update of game %s returned a nil state", gameID)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("update of game %s broke the participant invariant: %w", gameID, err)
	}
	e.gameState = next
	return next.Copy(), nil
}

func (s *InMemoryStore) Remove(ctx context.Context, gameID string) bool {
	s.lock.Lock()
	e, ok := s.games[gameID]
	if ok {
		delete(s.games, gameID)
	}
	s.lock.Unlock()
	if !ok {
		return false
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	e.removed = true
	return true
}

func (s *InMemoryStore) List(ctx context.Context) []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *InMemoryStore) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.games)
}
