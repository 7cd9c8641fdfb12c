// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

// Package token issues and verifies the JWT pairs that carry Formloom
// sessions. Access tokens are short-lived and carry the user's profile
// claims; refresh tokens are long-lived, carry only the user ID, and
// are rotated on every use with the prior token revoked.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/user"
)

// Service issues, verifies, refreshes, and revokes token pairs.
type Service struct {
	config      *Config
	users       user.Store
	revocations RevocationStore
	log         logger.Logger
}

// ServiceParams contains dependencies for creating a token service.
type ServiceParams struct {
	// Config is the token configuration (required).
	Config *Config

	// Users is the user persistence layer (required).
	Users user.Store

	// Revocations is the token blacklist (required).
	Revocations RevocationStore

	// Logger is an optional structured logger.
	Logger logger.Logger
}

// NewService creates a new token service. It fails rather than start
// with missing or shared signing secrets.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Revocations == nil {
		return nil, fmt.Errorf("revocation store is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		config:      params.Config,
		users:       params.Users,
		revocations: params.Revocations,
		log:         params.Logger,
	}, nil
}

// Issue creates a fresh access/refresh pair for the given account.
func (s *Service) Issue(_ context.Context, account *user.User) (*Pair, error) {
	now := time.Now().UTC()
	accessExpiry := now.Add(s.config.AccessTTL)
	refreshExpiry := now.Add(s.config.RefreshTTL)

	accessClaims := &AccessClaims{
		UserID:   account.ID,
		Username: account.Username,
		Email:    account.Email,
		Role:     account.Role,
		Kind:     KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
	}

	refreshClaims := &RefreshClaims{
		UserID: account.ID,
		Kind:   KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.config.AccessSecret))
	if err != nil {
		return nil, WrapError("sign access token", err)
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.config.RefreshSecret))
	if err != nil {
		return nil, WrapError("sign refresh token", err)
	}

	return &Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyAccess verifies an access token's signature, expiry, kind, and
// revocation status, in that order.
func (s *Service) VerifyAccess(ctx context.Context, tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.config.AccessSecret, KindAccess); err != nil {
		return nil, WrapError("verify access token", err)
	}
	if claims.Kind != KindAccess {
		return nil, NewError("verify access token", ErrTokenTypeMismatch)
	}

	revoked, err := s.revocations.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, WrapError("check revocation", err)
	}
	if revoked {
		return nil, NewError("verify access token", ErrTokenRevoked)
	}

	return claims, nil
}

// VerifyRefresh verifies a refresh token's signature, expiry, kind, and
// revocation status.
func (s *Service) VerifyRefresh(ctx context.Context, tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.config.RefreshSecret, KindRefresh); err != nil {
		return nil, WrapError("verify refresh token", err)
	}
	if claims.Kind != KindRefresh {
		return nil, NewError("verify refresh token", ErrTokenTypeMismatch)
	}

	revoked, err := s.revocations.IsRevoked(ctx, tokenString)
	if err != nil {
		return nil, WrapError("check revocation", err)
	}
	if revoked {
		return nil, NewError("verify refresh token", ErrTokenRevoked)
	}

	return claims, nil
}

// Refresh exchanges a valid refresh token for a fresh pair. The account
// is reloaded so role and status changes take effect; inactive accounts
// cannot refresh. The presented refresh token is revoked, so each
// refresh token works at most once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Pair, error) {
	claims, err := s.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	account, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, WrapError("reload user", err)
	}
	if !account.IsActive {
		return nil, NewError("refresh", user.ErrInactive)
	}

	// Rotate: the old refresh token is dead the moment a new pair exists.
	rec := NewRecord(refreshToken, claims.UserID, KindRefresh, s.config.RefreshTTL)
	if err := s.revocations.Revoke(ctx, rec); err != nil {
		return nil, WrapError("revoke refresh token", err)
	}

	pair, err := s.Issue(ctx, account)
	if err != nil {
		return nil, err
	}

	s.log.Debug("token pair rotated", logger.String("user_id", account.ID))
	return pair, nil
}

// Revoke blacklists a token until its natural expiry. The expiry is
// read from the token without signature verification; an unreadable
// token is blacklisted for the refresh TTL as the upper bound.
func (s *Service) Revoke(ctx context.Context, tokenString, userID string, kind Kind) error {
	rec := NewRecord(tokenString, userID, kind, s.config.RefreshTTL)
	return WrapError("revoke token", s.revocations.Revoke(ctx, rec))
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// parse verifies a token's signature and registered claims with the
// given secret, mapping library errors to this package's sentinels.
func (s *Service) parse(tokenString string, claims jwt.Claims, secret string, expected Kind) error {
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			// The two kinds are signed with different secrets, so a
			// well-formed token of the other kind always fails here.
			// Report that as a kind mismatch, not a forgery.
			if kind, ok := unverifiedKind(tokenString); ok && kind != expected {
				return ErrTokenTypeMismatch
			}
			return ErrTokenInvalidSignature
		default:
			return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	return nil
}

// unverifiedKind decodes a token's kind claim without verifying the
// signature.
func unverifiedKind(tokenString string) (Kind, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", false
	}
	kind, _ := claims["kind"].(string)
	return Kind(kind), kind != ""
}
