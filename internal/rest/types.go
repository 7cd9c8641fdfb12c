// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package rest

import (
	"encoding/json"

	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// MessageResponse is a simple confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// SignupRequest is the request body for creating a new account.
// The account has no credentials until a passkey registration
// ceremony completes.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// RegisterOptionsRequest starts a passkey registration ceremony.
// Email identifies the account when the caller is not authenticated;
// an authenticated caller adds a credential to their own account and
// may omit it.
type RegisterOptionsRequest struct {
	Email string `json:"email,omitempty"`
}

// RegisterVerifyRequest finishes a passkey registration ceremony.
// Credential carries the raw authenticator attestation response as
// produced by navigator.credentials.create().
type RegisterVerifyRequest struct {
	Email          string          `json:"email,omitempty"`
	CredentialName string          `json:"credential_name,omitempty"`
	Credential     json.RawMessage `json:"credential"`
}

// LoginOptionsRequest starts a passkey login ceremony. An empty email
// requests a discoverable (usernameless) login.
type LoginOptionsRequest struct {
	Email string `json:"email,omitempty"`
}

// LoginVerifyRequest finishes a passkey login ceremony. Credential
// carries the raw authenticator assertion response as produced by
// navigator.credentials.get().
type LoginVerifyRequest struct {
	Credential json.RawMessage `json:"credential"`
}

// LoginResponse is returned after a successful login or refresh.
type LoginResponse struct {
	User   user.Profile `json:"user"`
	Tokens *token.Pair  `json:"tokens"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revokes the caller's tokens. The access token comes
// from the Authorization header; the refresh token travels in the body.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// CredentialInfo is a summary of a registered passkey.
type CredentialInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// CredentialListResponse lists the caller's registered passkeys.
type CredentialListResponse struct {
	Credentials []CredentialInfo `json:"credentials"`
	Total       int              `json:"total"`
}

// UserListResponse is the response for the admin user listing.
type UserListResponse struct {
	Users []UserInfo `json:"users"`
	Total int        `json:"total"`
}

// UserInfo is an admin-facing summary of an account.
type UserInfo struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	Role            string `json:"role"`
	IsActive        bool   `json:"is_active"`
	IsEmailVerified bool   `json:"is_email_verified"`
	CredentialCount int    `json:"credential_count"`
	CreatedAt       string `json:"created_at"`
	LastLoginAt     string `json:"last_login_at,omitempty"`
}

// UpdateUserRequest is the admin request body for updating an account.
type UpdateUserRequest struct {
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
