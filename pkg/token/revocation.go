// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package token

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Record is one revocation ledger entry. Token is the exact string
// that was presented; UserID and Kind are kept for auditing. The entry
// only matters until ExpiresAt, since past that point verification
// rejects the token anyway.
type Record struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRecord builds a revocation record for a token. ExpiresAt is read
// from the token's exp claim without verifying the signature; an
// unreadable token gets fallbackTTL from now as the upper bound.
func NewRecord(tokenString, userID string, kind Kind, fallbackTTL time.Duration) Record {
	now := time.Now().UTC()
	rec := Record{
		Token:     tokenString,
		UserID:    userID,
		Kind:      kind,
		RevokedAt: now,
		ExpiresAt: now.Add(fallbackTTL),
	}

	if tok, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{}); err == nil {
		if exp, expErr := tok.Claims.GetExpirationTime(); expErr == nil && exp != nil {
			rec.ExpiresAt = exp.Time
		}
	}
	return rec
}

// RevocationStore blacklists tokens until their natural expiry.
// After the expiry the entry is useless — an expired token is rejected
// by verification anyway — so implementations may drop it.
type RevocationStore interface {
	// Revoke blacklists rec.Token until rec.ExpiresAt.
	Revoke(ctx context.Context, rec Record) error

	// IsRevoked reports whether a token is currently blacklisted.
	IsRevoked(ctx context.Context, token string) (bool, error)

	// Cleanup removes entries past their expiry and returns how many
	// were removed.
	Cleanup() int

	// Count returns the number of stored entries, expired included.
	Count() int
}

// MemoryRevocationStore is a thread-safe in-memory RevocationStore with
// a background sweep that drops expired entries.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]Record

	done chan struct{}
	once sync.Once
}

// NewMemoryRevocationStore creates an in-memory revocation store. If
// sweepInterval is positive, a background goroutine removes expired
// entries at that interval until Close is called.
func NewMemoryRevocationStore(sweepInterval time.Duration) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]Record),
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweep(sweepInterval)
	}
	return s
}

// Revoke blacklists rec.Token until rec.ExpiresAt.
func (s *MemoryRevocationStore) Revoke(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[rec.Token] = rec
	return nil
}

// IsRevoked reports whether a token is currently blacklisted. Entries
// past their expiry read as not revoked.
func (s *MemoryRevocationStore) IsRevoked(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[token]
	if !ok {
		return false, nil
	}
	return time.Now().UTC().Before(rec.ExpiresAt), nil
}

// Cleanup removes entries past their expiry.
func (s *MemoryRevocationStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for token, rec := range s.entries {
		if !now.Before(rec.ExpiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored entries, expired included.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the background sweep. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *MemoryRevocationStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.done:
			return
		}
	}
}
