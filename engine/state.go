package engine

import (
	"sync"
	"time"
)

// FileState is the last content the engine saw (or wrote) for a file
type FileState struct {
	Content   string
	UpdatedAt time.Time
}

// FileStateStore keeps the last known content per path. Lock gives exclusive
// access to one path for a read-compare-write sequence.
type FileStateStore struct {
	mu     sync.Mutex
	states map[string]FileState
	locks  map[string]*sync.Mutex
	now    func() time.Time
}

func NewFileStateStore() *FileStateStore {
	return &FileStateStore{
		states: make(map[string]FileState),
		locks:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}
}

func (s *FileStateStore) Get(path string) (FileState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[path]
	return state, ok
}

func (s *FileStateStore) Set(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[path] = FileState{Content: content, UpdatedAt: s.now()}
}

func (s *FileStateStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, path)
}

func (s *FileStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Lock blocks until the caller holds path and returns the unlock function.
// Per-path mutexes are kept for the lifetime of the store.
func (s *FileStateStore) Lock(path string) func() {
	s.mu.Lock()
	m, ok := s.locks[path]
	if !ok {
		m = &sync.Mutex{}
		s.locks[path] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
