package otp

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.Mutex
	pending map[string]PendingCode
}

// NewMemoryStore keeps pending codes in process memory.
func NewMemoryStore() Store {
	return &memoryStore{pending: make(map[string]PendingCode)}
}

func (s *memoryStore) Put(_ context.Context, code PendingCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[code.Identifier] = code
	return nil
}

func (s *memoryStore) Consume(_ context.Context, identifier string, accept func(PendingCode) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.pending[identifier]
	if !ok || !accept(code) {
		return false, nil
	}
	delete(s.pending, identifier)
	return true, nil
}
