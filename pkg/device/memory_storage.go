package device

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation for tests and
// single-process deployments. Keyed by token string.
type MemoryStorage struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewMemoryStorage creates an empty in-memory token store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tokens: make(map[string]*Token)}
}

func (s *MemoryStorage) Save(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tokens[t.Token] = &cp
	return nil
}

func (s *MemoryStorage) FindByToken(_ context.Context, token string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStorage) FindActive(_ context.Context, userID string) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Token
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *MemoryStorage) Touch(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}
	t.LastUsedAt = &at
	t.IsActive = true
	return nil
}

func (s *MemoryStorage) Deactivate(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}
	t.IsActive = false
	return nil
}

func (s *MemoryStorage) DeactivateOthers(_ context.Context, userID string, platform Platform, keep string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.tokens {
		if t.UserID == userID && t.Platform == platform && t.IsActive && t.Token != keep {
			t.IsActive = false
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; !ok {
		return ErrTokenNotFound
	}
	delete(s.tokens, token)
	return nil
}

func (s *MemoryStorage) DeactivateIdleSince(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.tokens {
		if t.IsActive && t.LastUsedAt != nil && t.LastUsedAt.Before(cutoff) {
			t.IsActive = false
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) DeactivateNeverUsedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, t := range s.tokens {
		if t.IsActive && t.LastUsedAt == nil && t.CreatedAt.Before(cutoff) {
			t.IsActive = false
			count++
		}
	}
	return count, nil
}
