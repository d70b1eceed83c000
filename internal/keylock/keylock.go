// Package keylock provides non-blocking per-key mutual exclusion.
package keylock

import "sync"

// Set tracks which keys are currently held.
type Set struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{held: make(map[string]struct{})}
}

// TryLock acquires key if no one else holds it. The returned release func
// must be called exactly once when ok is true.
func (s *Set) TryLock(key string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.held[key]; busy {
		return nil, false
	}
	s.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, key)
			s.mu.Unlock()
		})
	}, true
}

// Held reports whether key is currently locked.
func (s *Set) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[key]
	return ok
}
