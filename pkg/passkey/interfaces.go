// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package passkey

import "context"

// ChallengeStore persists pending ceremony challenges.
//
// Implementations must treat expired challenges as absent on every read
// path, and must make Consume atomic so a challenge can never satisfy
// two Finish calls.
type ChallengeStore interface {
	// Save stores a challenge. Saving a challenge with a value that
	// already exists replaces the previous entry.
	Save(ctx context.Context, ch *Challenge) error

	// FindByValue retrieves a live challenge by its value without
	// consuming it. Returns ErrChallengeNotFound if the challenge is
	// missing or expired.
	FindByValue(ctx context.Context, value string) (*Challenge, error)

	// FindByUser retrieves all live challenges scoped to a user.
	FindByUser(ctx context.Context, userID string) ([]*Challenge, error)

	// Consume atomically retrieves and deletes a live challenge matching
	// both value and type. Returns ErrChallengeNotFound if the challenge
	// is missing, expired, of a different type, or already consumed.
	Consume(ctx context.Context, value string, typ ChallengeType) (*Challenge, error)

	// Cleanup removes expired challenges and returns how many were removed.
	Cleanup() int

	// Count returns the number of stored challenges, expired included.
	Count() int

	// Clear removes all challenges.
	Clear()
}
