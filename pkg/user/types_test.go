// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role  Role
		valid bool
	}{
		{RoleAdmin, true},
		{RoleEditor, true},
		{RoleViewer, true},
		{Role("owner"), false},
		{Role(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidRole(tt.role))
		})
	}
}

func TestUser_WebAuthnInterface(t *testing.T) {
	u := &User{
		ID:       "user-1",
		Username: "alice",
		FullName: "Alice Liddell",
		Credentials: []Credential{
			{ID: []byte("cred-1"), PublicKey: []byte("pk-1"), AttestationType: "none", AAGUID: []byte("aaguid"), SignCount: 7},
			{ID: []byte("cred-2"), PublicKey: []byte("pk-2")},
		},
	}

	assert.Equal(t, []byte("user-1"), u.WebAuthnID())
	assert.Equal(t, "alice", u.WebAuthnName())
	assert.Equal(t, "Alice Liddell", u.WebAuthnDisplayName())

	creds := u.WebAuthnCredentials()
	require.Len(t, creds, 2)
	assert.Equal(t, []byte("cred-1"), creds[0].ID)
	assert.Equal(t, uint32(7), creds[0].Authenticator.SignCount)

	// Display name falls back to the username.
	u.FullName = ""
	assert.Equal(t, "alice", u.WebAuthnDisplayName())
}

func TestUser_CredentialHelpers(t *testing.T) {
	u := &User{ID: "user-1"}

	u.AddCredential(&Credential{ID: []byte("cred-1"), Name: "laptop"})
	u.AddCredential(&Credential{ID: []byte("cred-2"), Name: "phone"})
	require.Len(t, u.Credentials, 2)

	cred := u.GetCredential([]byte("cred-2"))
	require.NotNil(t, cred)
	assert.Equal(t, "phone", cred.Name)

	assert.Nil(t, u.GetCredential([]byte("missing")))

	assert.True(t, u.RemoveCredential([]byte("cred-1")))
	assert.Len(t, u.Credentials, 1)
	assert.False(t, u.RemoveCredential([]byte("cred-1")))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}

func TestUser_Profile(t *testing.T) {
	u := &User{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		Role:     RoleAdmin,
		IsActive: true,
		Credentials: []Credential{
			{ID: []byte("cred-1"), PublicKey: []byte("secret-key-material")},
		},
	}

	p := u.Profile()
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, RoleAdmin, p.Role)
}
