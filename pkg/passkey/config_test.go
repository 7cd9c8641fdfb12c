// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package passkey

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RPID:          "forms.example.com",
		RPDisplayName: "Formloom",
		RPOrigins:     []string{"https://forms.example.com"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing RPID", func(c *Config) { c.RPID = "" }, "RPID is required"},
		{"missing display name", func(c *Config) { c.RPDisplayName = "" }, "RPDisplayName is required"},
		{"missing origins", func(c *Config) { c.RPOrigins = nil }, "at least one RPOrigin is required"},
		{"negative TTL", func(c *Config) { c.ChallengeTTL = -time.Second }, "challenge TTL must not be negative"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout must not be negative"},
		{"bad user verification", func(c *Config) { c.UserVerification = "always" }, "invalid user verification"},
		{"bad attestation", func(c *Config) { c.AttestationPreference = "full" }, "invalid attestation preference"},
		{"bad resident key", func(c *Config) { c.ResidentKeyRequirement = "yes" }, "invalid resident key requirement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.SetDefaults()

	assert.Equal(t, 300*time.Second, cfg.ChallengeTTL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "preferred", cfg.UserVerification)
	assert.Equal(t, "none", cfg.AttestationPreference)
	assert.Equal(t, "preferred", cfg.ResidentKeyRequirement)

	// Explicit values are preserved.
	cfg = validConfig()
	cfg.ChallengeTTL = time.Minute
	cfg.UserVerification = "required"
	cfg.SetDefaults()
	assert.Equal(t, time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, "required", cfg.UserVerification)
}

func TestConfig_ToWebAuthnConfig(t *testing.T) {
	cfg := validConfig()
	cfg.UserVerification = "required"
	cfg.AttestationPreference = "direct"
	cfg.ResidentKeyRequirement = "required"
	cfg.SetDefaults()

	wc := cfg.ToWebAuthnConfig()
	assert.Equal(t, "forms.example.com", wc.RPID)
	assert.Equal(t, "Formloom", wc.RPDisplayName)
	assert.Equal(t, []string{"https://forms.example.com"}, wc.RPOrigins)
	assert.Equal(t, protocol.PreferDirectAttestation, wc.AttestationPreference)
	assert.Equal(t, protocol.VerificationRequired, wc.AuthenticatorSelection.UserVerification)
	assert.Equal(t, protocol.ResidentKeyRequirementRequired, wc.AuthenticatorSelection.ResidentKey)
	assert.True(t, wc.Timeouts.Login.Enforce)

	// The browser gets the short client timeout; the server keeps
	// accepting the challenge for the full TTL.
	assert.Equal(t, 60*time.Second, wc.Timeouts.Registration.Timeout)
	assert.Equal(t, 60*time.Second, wc.Timeouts.Login.Timeout)
}
