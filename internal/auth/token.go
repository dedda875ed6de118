package auth

import (
	"context"
	"sync"
)

// TokenPair is the credential set for one signed-in user: an opaque access
// token attached to every outbound request, and the refresh token used to
// obtain a new pair when the access token expires.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Store holds the current token pair. Get returns (nil, nil) when no pair is
// stored, which means the caller is anonymous. Writes are always whole-pair
// replacements; implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context) (*TokenPair, error)
	Set(ctx context.Context, pair TokenPair) error
	Clear(ctx context.Context) error
}

// MemoryStore is a Store backed by process memory. Useful for tests and for
// callers that do not want tokens persisted across restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	pair *TokenPair
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns a copy of the stored pair, or nil if none is stored.
func (s *MemoryStore) Get(ctx context.Context) (*TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return nil, nil
	}
	pair := *s.pair
	return &pair, nil
}

// Set replaces the stored pair.
func (s *MemoryStore) Set(ctx context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = &pair
	return nil
}

// Clear removes both tokens together.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	return nil
}
