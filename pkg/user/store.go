// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package user

import (
	"context"
	"sync"
	"time"
)

// Store defines the interface for user persistence.
type Store interface {
	// Create stores a new user. Returns ErrAlreadyExists if the ID,
	// username, or email is already taken.
	Create(ctx context.Context, u *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByCredentialID retrieves the user owning a credential.
	GetByCredentialID(ctx context.Context, credID []byte) (*User, error)

	// Update replaces the stored user. Returns ErrNotFound if missing.
	Update(ctx context.Context, u *User) error

	// UpdateCredentialCounter atomically sets a credential's signature
	// counter and last-used time, but only if the stored counter still
	// equals expected. Returns ErrCounterConflict otherwise.
	UpdateCredentialCounter(ctx context.Context, userID string, credID []byte, expected, next uint32) error

	// Delete removes a user. Returns ErrNotFound if missing.
	Delete(ctx context.Context, id string) error

	// List returns all users.
	List(ctx context.Context) ([]*User, error)

	// Count returns the number of users.
	Count(ctx context.Context) (int, error)
}

// MemoryStore is a thread-safe in-memory Store implementation.
// Suitable for tests and single-node deployments.
type MemoryStore struct {
	mu           sync.RWMutex
	byID         map[string]*User
	byUsername   map[string]string // username -> user ID
	byEmail      map[string]string // normalized email -> user ID
	byCredential map[string]string // credential ID -> user ID
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:         make(map[string]*User),
		byUsername:   make(map[string]string),
		byEmail:      make(map[string]string),
		byCredential: make(map[string]string),
	}
}

// Create stores a new user.
func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[u.ID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := s.byUsername[u.Username]; exists {
		return ErrAlreadyExists
	}
	email := NormalizeEmail(u.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrAlreadyExists
	}
	for _, c := range u.Credentials {
		if _, exists := s.byCredential[string(c.ID)]; exists {
			return ErrAlreadyExists
		}
	}

	clone := cloneUser(u)
	s.byID[u.ID] = clone
	s.byUsername[u.Username] = u.ID
	s.byEmail[email] = u.ID
	for _, c := range clone.Credentials {
		s.byCredential[string(c.ID)] = u.ID
	}
	return nil
}

// GetByID retrieves a user by ID.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.byID[id]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// GetByUsername retrieves a user by username.
func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byUsername[username]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byEmail[NormalizeEmail(email)]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

// GetByCredentialID retrieves the user owning a credential.
func (s *MemoryStore) GetByCredentialID(_ context.Context, credID []byte) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byCredential[string(credID)]
	if !exists {
		return nil, ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

// Update replaces the stored user and refreshes all indexes.
func (s *MemoryStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.byID[u.ID]
	if !exists {
		return ErrNotFound
	}

	// Uniqueness checks against other users.
	if id, ok := s.byUsername[u.Username]; ok && id != u.ID {
		return ErrAlreadyExists
	}
	email := NormalizeEmail(u.Email)
	if id, ok := s.byEmail[email]; ok && id != u.ID {
		return ErrAlreadyExists
	}
	for _, c := range u.Credentials {
		if id, ok := s.byCredential[string(c.ID)]; ok && id != u.ID {
			return ErrAlreadyExists
		}
	}

	delete(s.byUsername, old.Username)
	delete(s.byEmail, NormalizeEmail(old.Email))
	for _, c := range old.Credentials {
		delete(s.byCredential, string(c.ID))
	}

	clone := cloneUser(u)
	clone.UpdatedAt = time.Now().UTC()
	s.byID[u.ID] = clone
	s.byUsername[u.Username] = u.ID
	s.byEmail[email] = u.ID
	for _, c := range clone.Credentials {
		s.byCredential[string(c.ID)] = u.ID
	}
	return nil
}

// UpdateCredentialCounter atomically advances a credential's counter.
func (s *MemoryStore) UpdateCredentialCounter(_ context.Context, userID string, credID []byte, expected, next uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.byID[userID]
	if !exists {
		return ErrNotFound
	}
	cred := u.GetCredential(credID)
	if cred == nil {
		return ErrNotFound
	}
	if cred.SignCount != expected {
		return ErrCounterConflict
	}
	now := time.Now().UTC()
	cred.SignCount = next
	cred.LastUsedAt = &now
	u.LastLoginAt = &now
	u.UpdatedAt = now
	return nil
}

// Delete removes a user and all index entries.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, exists := s.byID[id]
	if !exists {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byUsername, u.Username)
	delete(s.byEmail, NormalizeEmail(u.Email))
	for _, c := range u.Credentials {
		delete(s.byCredential, string(c.ID))
	}
	return nil
}

// List returns all users.
func (s *MemoryStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, cloneUser(u))
	}
	return users, nil
}

// Count returns the number of users.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// cloneUser deep-copies a user so callers cannot mutate stored state.
func cloneUser(u *User) *User {
	clone := *u
	clone.Credentials = make([]Credential, len(u.Credentials))
	copy(clone.Credentials, u.Credentials)
	return &clone
}
