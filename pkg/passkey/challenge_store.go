// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package passkey

import (
	"context"
	"sync"
	"time"
)

// MemoryChallengeStore is a thread-safe in-memory ChallengeStore.
// Suitable for tests and single-node deployments.
type MemoryChallengeStore struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
	}
}

// Save stores a challenge, replacing any previous entry with the same value.
func (s *MemoryChallengeStore) Save(_ context.Context, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *ch
	s.challenges[ch.Value] = &clone
	return nil
}

// FindByValue retrieves a live challenge without consuming it.
func (s *MemoryChallengeStore) FindByValue(_ context.Context, value string) (*Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.challenges[value]
	if !ok || ch.Expired(time.Now().UTC()) {
		return nil, ErrChallengeNotFound
	}
	clone := *ch
	return &clone, nil
}

// FindByUser retrieves all live challenges scoped to a user.
func (s *MemoryChallengeStore) FindByUser(_ context.Context, userID string) ([]*Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	var result []*Challenge
	for _, ch := range s.challenges {
		if ch.UserID == userID && !ch.Expired(now) {
			clone := *ch
			result = append(result, &clone)
		}
	}
	return result, nil
}

// Consume atomically retrieves and deletes a live challenge. Lookup and
// delete happen under a single lock so the challenge can satisfy at most
// one caller.
func (s *MemoryChallengeStore) Consume(_ context.Context, value string, typ ChallengeType) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[value]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	if ch.Type != typ {
		return nil, ErrChallengeNotFound
	}
	if ch.Expired(time.Now().UTC()) {
		delete(s.challenges, value)
		return nil, ErrChallengeNotFound
	}

	delete(s.challenges, value)
	clone := *ch
	return &clone, nil
}

// Cleanup removes expired challenges.
func (s *MemoryChallengeStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for value, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, value)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored challenges, expired included.
func (s *MemoryChallengeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.challenges)
}

// Clear removes all challenges.
func (s *MemoryChallengeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = make(map[string]*Challenge)
}
