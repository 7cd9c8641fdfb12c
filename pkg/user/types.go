// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

// Package user provides the identity model for the Formloom auth core.
// Users sign in exclusively with WebAuthn passkeys; the User type embeds
// the registered credentials and implements the webauthn.User interface
// so it can be handed directly to the ceremony engine.
package user

import (
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Role represents a user's role for access control.
type Role string

const (
	// RoleAdmin can manage tenants, users, and all forms.
	RoleAdmin Role = "admin"
	// RoleEditor can create and edit forms and view submissions.
	RoleEditor Role = "editor"
	// RoleViewer has read-only access to forms shared with them.
	RoleViewer Role = "viewer"
)

// IsValidRole checks if a role string is a valid Role.
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

// DeviceType classifies the authenticator a credential is bound to.
type DeviceType string

const (
	// DevicePlatform is a built-in authenticator (Touch ID, Windows Hello).
	DevicePlatform DeviceType = "platform"
	// DeviceCrossPlatform is a roaming authenticator (security key, phone).
	DeviceCrossPlatform DeviceType = "cross-platform"
)

// User represents an account that can access the Formloom API.
// Implements the webauthn.User interface for ceremony compatibility.
type User struct {
	// ID is the unique identifier (also the WebAuthn user handle).
	ID string `json:"id"`

	// Username is the unique login name.
	Username string `json:"username"`

	// Email is the unique email address, compared case-insensitively.
	Email string `json:"email"`

	// FullName is the human-readable name for display.
	FullName string `json:"full_name"`

	// Role defines the user's access level.
	Role Role `json:"role"`

	// IsActive indicates whether the account may authenticate.
	IsActive bool `json:"is_active"`

	// IsEmailVerified is set once a passkey registration completes.
	IsEmailVerified bool `json:"is_email_verified"`

	// Credentials are the passkeys registered for this user.
	Credentials []Credential `json:"credentials"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// LastLoginAt is the last successful passkey login.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Credential represents a WebAuthn passkey registered for a user.
type Credential struct {
	// ID is the credential identifier from the authenticator.
	// Globally unique across all users.
	ID []byte `json:"id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the attestation type used at registration.
	AttestationType string `json:"attestation_type"`

	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid"`

	// SignCount is the signature counter for clone detection. It must
	// never decrease across successful authentications.
	SignCount uint32 `json:"sign_count"`

	// Name is a user-friendly label for this credential.
	Name string `json:"name"`

	// DeviceType records the authenticator attachment at registration.
	DeviceType DeviceType `json:"device_type"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed a login.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// WebAuthnID returns the user's WebAuthn user handle.
func (u *User) WebAuthnID() []byte {
	return []byte(u.ID)
}

// WebAuthnName returns the user's login name.
func (u *User) WebAuthnName() string {
	return u.Username
}

// WebAuthnDisplayName returns the user's display name.
func (u *User) WebAuthnDisplayName() string {
	if u.FullName == "" {
		return u.Username
	}
	return u.FullName
}

// WebAuthnCredentials returns the user's credentials in go-webauthn form.
func (u *User) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.Credentials))
	for i, c := range u.Credentials {
		creds[i] = webauthn.Credential{
			ID:              c.ID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Authenticator: webauthn.Authenticator{
				AAGUID:    c.AAGUID,
				SignCount: c.SignCount,
			},
		}
	}
	return creds
}

// AddCredential appends a new credential to the user.
func (u *User) AddCredential(cred *Credential) {
	u.Credentials = append(u.Credentials, *cred)
}

// GetCredential returns a credential by ID, or nil if not found.
func (u *User) GetCredential(credID []byte) *Credential {
	for i := range u.Credentials {
		if string(u.Credentials[i].ID) == string(credID) {
			return &u.Credentials[i]
		}
	}
	return nil
}

// RemoveCredential removes a credential by ID and reports whether it existed.
func (u *User) RemoveCredential(credID []byte) bool {
	for i, c := range u.Credentials {
		if string(c.ID) == string(credID) {
			u.Credentials = append(u.Credentials[:i], u.Credentials[i+1:]...)
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases an email address for uniqueness comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewCredentialFromWebAuthn creates a Credential from a validated
// go-webauthn credential.
func NewCredentialFromWebAuthn(cred *webauthn.Credential, name string, device DeviceType) *Credential {
	return &Credential{
		ID:              cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		Name:            name,
		DeviceType:      device,
		CreatedAt:       time.Now().UTC(),
	}
}

// Profile is the public view of a user, safe to return to clients.
// Credential key material is excluded.
type Profile struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	FullName        string     `json:"full_name"`
	Role            Role       `json:"role"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		FullName:        u.FullName,
		Role:            u.Role,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}
