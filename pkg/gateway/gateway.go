// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

// Package gateway turns bearer tokens into request identities. It sits
// between the HTTP layer and the token service: every authenticated
// request passes through Authenticate, which verifies the access token
// and reloads the account so deactivations and role changes apply on
// the very next request.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

// Identity describes the authenticated caller of a request. The role
// comes from the freshly loaded account, not from token claims.
type Identity struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     user.Role `json:"role"`
}

// HasRole reports whether the identity holds any of the given roles.
func (i *Identity) HasRole(roles ...user.Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// Gateway authenticates bearer tokens into identities.
type Gateway struct {
	tokens *token.Service
	users  user.Store
	log    logger.Logger
}

// Params contains dependencies for creating a Gateway.
type Params struct {
	// Tokens verifies access tokens (required).
	Tokens *token.Service

	// Users is the user persistence layer (required).
	Users user.Store

	// Logger is an optional structured logger.
	Logger logger.Logger
}

// New creates a new Gateway.
func New(params Params) (*Gateway, error) {
	if params.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Gateway{
		tokens: params.Tokens,
		users:  params.Users,
		log:    params.Logger,
	}, nil
}

// Authenticate verifies an Authorization header value and returns the
// caller's identity. The pipeline is: extract bearer token, verify
// signature/expiry/kind/revocation, reload the account, require it to
// be active.
func (g *Gateway) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	tokenString, err := extractBearer(authorization)
	if err != nil {
		return nil, err
	}

	claims, err := g.tokens.VerifyAccess(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	account, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, WrapError("reload user", err)
	}
	if !account.IsActive {
		return nil, NewError("authenticate", user.ErrInactive)
	}

	return &Identity{
		UserID:   account.ID,
		Username: account.Username,
		Email:    account.Email,
		FullName: account.FullName,
		Role:     account.Role,
	}, nil
}

// extractBearer pulls the token out of an Authorization header value.
func extractBearer(authorization string) (string, error) {
	if authorization == "" {
		return "", ErrMissingToken
	}

	tokenString := authorization
	if strings.HasPrefix(authorization, "Bearer ") {
		tokenString = strings.TrimPrefix(authorization, "Bearer ")
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrMissingToken
	}
	return tokenString, nil
}
