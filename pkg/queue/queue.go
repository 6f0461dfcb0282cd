package queue

// Queue is a FIFO of client tokens waiting for a match.
// A token is present at most once.
type Queue interface {
	// Enqueue appends a token and reports whether it was added.
	Enqueue(token string) bool
	// PopPair removes and returns the two oldest tokens.
	PopPair() (string, string, bool)
	// PushFront puts a token back at the head of the queue.
	PushFront(token string) bool
	// Remove drops a token and reports whether it was queued.
	Remove(token string) bool
	Contains(token string) bool
	Size() int
	// Tokens returns the queued tokens, oldest first.
	Tokens() []string
}
