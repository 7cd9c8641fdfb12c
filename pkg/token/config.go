// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package token

import (
	"fmt"
	"time"
)

// Config configures the token service. Access and refresh tokens are
// signed with independent secrets so a leak of one cannot forge the
// other.
type Config struct {
	// AccessSecret signs access tokens (required).
	AccessSecret string `yaml:"access_secret" json:"-"`

	// RefreshSecret signs refresh tokens (required, must differ from
	// AccessSecret).
	RefreshSecret string `yaml:"refresh_secret" json:"-"`

	// AccessTTL is the access token lifetime. Default: 1 hour.
	AccessTTL time.Duration `yaml:"access_ttl" json:"access_ttl"`

	// RefreshTTL is the refresh token lifetime. Default: 168 hours.
	RefreshTTL time.Duration `yaml:"refresh_ttl" json:"refresh_ttl"`

	// Issuer is the iss claim on issued tokens. Default: "formloom".
	Issuer string `yaml:"issuer" json:"issuer"`
}

// Validate checks the configuration. Missing or shared secrets are a
// hard error; the service must not fall back to a default secret.
func (c *Config) Validate() error {
	if c.AccessSecret == "" {
		return fmt.Errorf("%w: access secret is required", ErrConfiguration)
	}
	if c.RefreshSecret == "" {
		return fmt.Errorf("%w: refresh secret is required", ErrConfiguration)
	}
	if c.AccessSecret == c.RefreshSecret {
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfiguration)
	}
	if c.AccessTTL < 0 || c.RefreshTTL < 0 {
		return fmt.Errorf("%w: token TTLs must not be negative", ErrConfiguration)
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.AccessTTL == 0 {
		c.AccessTTL = time.Hour
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 168 * time.Hour
	}
	if c.Issuer == "" {
		c.Issuer = "formloom"
	}
}
