package session

import "github.com/mohammad-safakhou/ava/internal/agent/chat"

// ThreadState is the accumulated conversation for one thread: the
// append-only message log and the hallucination-retry counter, which is
// monotonic per thread and never resets between turns.
type ThreadState struct {
	Messages             []chat.Message `json:"messages"`
	HallucinationRetries int            `json:"hallucination_retries"`
}

// Clone copies the state. Messages are immutable once appended, so a
// shallow copy of the slice is enough to isolate callers from each other.
func (s ThreadState) Clone() ThreadState {
	out := s
	out.Messages = append([]chat.Message(nil), s.Messages...)
	return out
}

// Store persists thread state between turns, keyed by thread identifier.
type Store interface {
	// Load returns a copy of the thread's state; a fresh thread yields the
	// zero state.
	Load(threadID string) ThreadState
	// Save replaces the thread's state.
	Save(threadID string, state ThreadState)
	// Acquire serializes turns for one thread. It blocks until the thread
	// is free and returns the release function. Two turns for the same
	// thread must never interleave appends.
	Acquire(threadID string) (release func())
}
