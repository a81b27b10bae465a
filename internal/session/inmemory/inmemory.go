package inmemory

import (
	"sync"

	"github.com/mohammad-safakhou/ava/internal/session"
)

// Store keeps thread state in process memory. Conversation persistence
// beyond the process lifetime is deliberately out of scope.
type Store struct {
	mu      sync.Mutex
	threads map[string]session.ThreadState
	locks   map[string]*sync.Mutex
}

func NewThreadStore() *Store {
	return &Store{
		threads: make(map[string]session.ThreadState),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) Load(threadID string) session.ThreadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[threadID].Clone()
}

func (s *Store) Save(threadID string, state session.ThreadState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = state.Clone()
}

func (s *Store) Acquire(threadID string) func() {
	s.mu.Lock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}
