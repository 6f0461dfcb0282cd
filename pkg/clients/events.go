package clients

import (
	"sync"
)

// ClientEventType represents the type of a client event
type ClientEventType int

const (
	ClientEventTypeRemove ClientEventType = iota
)

type ClientEvent struct {
	Type   ClientEventType
	Token  string
	Name   string
	GameID string
}

type ClientEventHandler func(event ClientEvent)

type ClientEventManager struct {
	lock     sync.RWMutex
	handlers []ClientEventHandler
}

func NewClientEventManager() *ClientEventManager {
	return &ClientEventManager{}
}

// RegisterHandler registers a handler for events.
func (em *ClientEventManager) RegisterHandler(handler ClientEventHandler) {
	em.lock.Lock()
	defer em.lock.Unlock()
	em.handlers = append(em.handlers, handler)
}

// Trigger triggers an event.
// Handlers are called synchronously, in registration order, so that
// the event is fully reflected once the triggering call returns.
func (em *ClientEventManager) Trigger(event ClientEvent) {
	em.lock.RLock()
	handlers := make([]ClientEventHandler, len(em.handlers))
	copy(handlers, em.handlers)
	em.lock.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
