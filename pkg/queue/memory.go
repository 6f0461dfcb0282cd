// queue package

package queue

import "sync"

// InMemoryQueue implements an in-memory matchmaking queue.
type InMemoryQueue struct {
	tokens []string
	queued map[string]struct{}
	lock   sync.Mutex
}

// NewInMemoryQueue creates a new queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		queued: make(map[string]struct{}),
	}
}

// Enqueue adds a token to the end of the queue unless it is already queued.
func (q *InMemoryQueue) Enqueue(token string) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if _, ok := q.queued[token]; ok {
		return false
	}
	q.queued[token] = struct{}{}
	q.tokens = append(q.tokens, token)
	return true
}

// PopPair removes and returns the two tokens at the front of the queue.
// The queue is left untouched when fewer than two tokens are waiting.
func (q *InMemoryQueue) PopPair() (string, string, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.tokens) < 2 {
		return "", "", false
	}
	a, b := q.tokens[0], q.tokens[1]
	q.tokens = q.tokens[2:]
	delete(q.queued, a)
	delete(q.queued, b)
	return a, b, true
}

// PushFront adds a token to the front of the queue unless it is already queued.
func (q *InMemoryQueue) PushFront(token string) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if _, ok := q.queued[token]; ok {
		return false
	}
	q.queued[token] = struct{}{}
	q.tokens = append([]string{token}, q.tokens...)
	return true
}

// Remove removes a token from anywhere in the queue.
func (q *InMemoryQueue) Remove(token string) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if _, ok := q.queued[token]; !ok {
		return false
	}
	delete(q.queued, token)
	for i, t := range q.tokens {
		if t == token {
			q.tokens = append(q.tokens[:i], q.tokens[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether a token is queued.
func (q *InMemoryQueue) Contains(token string) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	_, ok := q.queued[token]
	return ok
}

// Size returns the current size of the queue.
func (q *InMemoryQueue) Size() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.tokens)
}

// Tokens returns a copy of the queued tokens.
func (q *InMemoryQueue) Tokens() []string {
	q.lock.Lock()
	defer q.lock.Unlock()
	tokens := make([]string, len(q.tokens))
	copy(tokens, q.tokens)
	return tokens
}
