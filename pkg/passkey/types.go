// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package passkey

import "time"

// ChallengeType distinguishes the ceremony a challenge belongs to.
type ChallengeType string

const (
	// ChallengeRegistration marks a registration ceremony challenge.
	ChallengeRegistration ChallengeType = "registration"

	// ChallengeAuthentication marks an authentication ceremony challenge.
	ChallengeAuthentication ChallengeType = "authentication"
)

// Challenge is a pending ceremony challenge awaiting its response.
// The Value is the base64url-encoded challenge issued to the client;
// a challenge is valid for exactly one Finish call before it expires.
type Challenge struct {
	// Value is the base64url-encoded challenge string.
	Value string `json:"value"`

	// Type is the ceremony this challenge was issued for.
	Type ChallengeType `json:"type"`

	// UserID is the account the challenge is scoped to. Empty for
	// discoverable login challenges, where the account is resolved
	// from the assertion response.
	UserID string `json:"user_id,omitempty"`

	// CreatedAt is when the challenge was issued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the challenge stops being accepted.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewChallenge creates a challenge with the given TTL.
func NewChallenge(value string, typ ChallengeType, userID string, ttl time.Duration) *Challenge {
	now := time.Now().UTC()
	return &Challenge{
		Value:     value,
		Type:      typ,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the challenge has passed its expiry at the
// given instant.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
