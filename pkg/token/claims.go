// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/formloom/formloom/pkg/user"
)

// Kind segregates access and refresh tokens. A token of one kind is
// never accepted where the other is required, even with a valid
// signature.
type Kind string

const (
	// KindAccess marks short-lived API tokens.
	KindAccess Kind = "access"

	// KindRefresh marks long-lived session renewal tokens.
	KindRefresh Kind = "refresh"
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	UserID   string    `json:"uid"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     user.Role `json:"role"`
	Kind     Kind      `json:"kind"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims carried by a refresh token. Refresh
// tokens carry no profile data; the account is reloaded on every
// refresh so role and status changes take effect immediately.
type RefreshClaims struct {
	UserID string `json:"uid"`
	Kind   Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
