// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

type gatewayFixture struct {
	gw     *Gateway
	tokens *token.Service
	users  *user.MemoryStore
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	users := user.NewMemoryStore()
	tokens, err := token.NewService(token.ServiceParams{
		Config: &token.Config{
			AccessSecret:  "access-secret-for-tests",
			RefreshSecret: "refresh-secret-for-tests",
		},
		Users:       users,
		Revocations: token.NewMemoryRevocationStore(0),
	})
	require.NoError(t, err)

	gw, err := New(Params{Tokens: tokens, Users: users})
	require.NoError(t, err)

	return &gatewayFixture{gw: gw, tokens: tokens, users: users}
}

func (f *gatewayFixture) addUser(t *testing.T, id string, role user.Role) *user.User {
	t.Helper()

	now := time.Now().UTC()
	u := &user.User{
		ID:        id,
		Username:  "user-" + id,
		Email:     id + "@example.com",
		FullName:  "User " + id,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *gatewayFixture) issue(t *testing.T, account *user.User) *token.Pair {
	t.Helper()
	pair, err := f.tokens.Issue(context.Background(), account)
	require.NoError(t, err)
	return pair
}

func TestGateway_Authenticate(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	account := f.addUser(t, "u1", user.RoleEditor)
	pair := f.issue(t, account)

	identity, err := f.gw.Authenticate(ctx, "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, user.RoleEditor, identity.Role)
	assert.Equal(t, "u1@example.com", identity.Email)

	// A bare token without the Bearer prefix also works.
	identity, err = f.gw.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
}

func TestGateway_Authenticate_Failures(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	account := f.addUser(t, "u1", user.RoleEditor)
	pair := f.issue(t, account)

	t.Run("missing token", func(t *testing.T) {
		_, err := f.gw.Authenticate(ctx, "")
		assert.ErrorIs(t, err, ErrMissingToken)

		_, err = f.gw.Authenticate(ctx, "Bearer ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := f.gw.Authenticate(ctx, "Bearer "+pair.RefreshToken)
		assert.ErrorIs(t, err, token.ErrTokenTypeMismatch)
	})

	t.Run("revoked token", func(t *testing.T) {
		revokedPair := f.issue(t, account)
		require.NoError(t, f.tokens.Revoke(ctx, revokedPair.AccessToken, account.ID, token.KindAccess))
		_, err := f.gw.Authenticate(ctx, "Bearer "+revokedPair.AccessToken)
		assert.ErrorIs(t, err, token.ErrTokenRevoked)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost := f.addUser(t, "ghost", user.RoleViewer)
		ghostPair := f.issue(t, ghost)
		require.NoError(t, f.users.Delete(ctx, ghost.ID))
		_, err := f.gw.Authenticate(ctx, "Bearer "+ghostPair.AccessToken)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("deactivated user", func(t *testing.T) {
		sleeper := f.addUser(t, "sleeper", user.RoleViewer)
		sleeperPair := f.issue(t, sleeper)
		sleeper.IsActive = false
		require.NoError(t, f.users.Update(ctx, sleeper))
		_, err := f.gw.Authenticate(ctx, "Bearer "+sleeperPair.AccessToken)
		assert.ErrorIs(t, err, user.ErrInactive)
	})
}

func TestGateway_Authenticate_ReflectsRoleChange(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	account := f.addUser(t, "u1", user.RoleViewer)
	pair := f.issue(t, account)

	account.Role = user.RoleAdmin
	require.NoError(t, f.users.Update(ctx, account))

	// The token still carries the old role claim, but the identity is
	// built from the reloaded account.
	identity, err := f.gw.Authenticate(ctx, "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, identity.Role)
}

// testErrorWriter mirrors the status mapping the HTTP layer does.
func testErrorWriter(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, ErrInsufficientPermissions) {
		status = http.StatusForbidden
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func identityEchoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if identity == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(identity.UserID))
	})
}

func TestGateway_Middleware(t *testing.T) {
	f := newGatewayFixture(t)
	account := f.addUser(t, "u1", user.RoleEditor)
	pair := f.issue(t, account)

	handler := f.gw.Middleware(testErrorWriter)(identityEchoHandler(t))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Body.String())
	})

	t.Run("no token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGateway_OptionalMiddleware(t *testing.T) {
	f := newGatewayFixture(t)
	account := f.addUser(t, "u1", user.RoleEditor)
	pair := f.issue(t, account)

	handler := f.gw.OptionalMiddleware()(identityEchoHandler(t))

	t.Run("valid token resolves identity", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Body.String())
	})

	t.Run("no token is anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})

	t.Run("invalid token is swallowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "anonymous", rec.Body.String())
	})
}

func TestGateway_RequireRole(t *testing.T) {
	f := newGatewayFixture(t)
	admin := f.addUser(t, "admin", user.RoleAdmin)
	editor := f.addUser(t, "editor", user.RoleEditor)
	adminPair := f.issue(t, admin)
	editorPair := f.issue(t, editor)

	chain := f.gw.Middleware(testErrorWriter)(
		f.gw.RequireRole(testErrorWriter, user.RoleAdmin)(identityEchoHandler(t)))

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("editor forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+editorPair.AccessToken)
		rec := httptest.NewRecorder()
		chain.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no identity", func(t *testing.T) {
		// RequireRole without the auth middleware in front.
		bare := f.gw.RequireRole(testErrorWriter, user.RoleAdmin)(identityEchoHandler(t))
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestIdentity_HasRole(t *testing.T) {
	identity := &Identity{Role: user.RoleEditor}

	assert.True(t, identity.HasRole(user.RoleEditor))
	assert.True(t, identity.HasRole(user.RoleAdmin, user.RoleEditor))
	assert.False(t, identity.HasRole(user.RoleAdmin))
	assert.False(t, identity.HasRole())
}
