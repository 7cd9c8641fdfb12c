// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formloom/formloom/pkg/gateway"
	"github.com/formloom/formloom/pkg/passkey"
	"github.com/formloom/formloom/pkg/ratelimit"
	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

type serverFixture struct {
	handler http.Handler
	users   *user.MemoryStore
	rp      virtualwebauthn.RelyingParty
}

func newServerFixture(t *testing.T, limiter *ratelimit.Limiter) *serverFixture {
	t.Helper()

	users := user.NewMemoryStore()

	passkeys, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          "forms.example.com",
			RPDisplayName: "Formloom",
			RPOrigins:     []string{"https://forms.example.com"},
		},
		Users:      users,
		Challenges: passkey.NewMemoryChallengeStore(),
	})
	require.NoError(t, err)

	revocations := token.NewMemoryRevocationStore(0)
	tokens, err := token.NewService(token.ServiceParams{
		Config: &token.Config{
			AccessSecret:  "test-access-secret",
			RefreshSecret: "test-refresh-secret",
			Issuer:        "formloom-test",
		},
		Users:       users,
		Revocations: revocations,
	})
	require.NoError(t, err)

	gw, err := gateway.New(gateway.Params{Tokens: tokens, Users: users})
	require.NoError(t, err)

	srv, err := NewServer(&Config{
		Passkeys:       passkeys,
		Tokens:         tokens,
		Gateway:        gw,
		Users:          users,
		Limiter:        limiter,
		AllowedOrigins: []string{"https://forms.example.com"},
		HealthPath:     "/health",
		MetricsPath:    "/metrics",
	})
	require.NoError(t, err)

	return &serverFixture{
		handler: srv.Handler(),
		users:   users,
		rp: virtualwebauthn.RelyingParty{
			Name:   "Formloom",
			ID:     "forms.example.com",
			Origin: "https://forms.example.com",
		},
	}
}

// do sends a JSON request through the router and returns the recorder.
func (f *serverFixture) do(t *testing.T, method, path string, body interface{}, accessToken string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

// publicKeyOptions extracts the publicKey member from a ceremony
// options response, in the form virtualwebauthn parsers expect.
func publicKeyOptions(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		PublicKey json.RawMessage `json:"publicKey"`
	}
	decodeBody(t, rec, &envelope)
	require.NotEmpty(t, envelope.PublicKey)
	return string(envelope.PublicKey)
}

// signup creates an account through the API and returns its profile.
func (f *serverFixture) signup(t *testing.T, username, email string) user.Profile {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", SignupRequest{
		Username: username,
		Email:    email,
		FullName: username,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var profile user.Profile
	decodeBody(t, rec, &profile)
	return profile
}

// register drives a full registration ceremony through the API.
func (f *serverFixture) register(t *testing.T, email string, auth virtualwebauthn.Authenticator, cred *virtualwebauthn.Credential) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/register/options", RegisterOptionsRequest{Email: email}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(publicKeyOptions(t, rec))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(f.rp, auth, *cred, *parsedOptions)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/passkey/register/verify", RegisterVerifyRequest{
		Email:          email,
		CredentialName: "test key",
		Credential:     json.RawMessage(attestation),
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// login drives a full login ceremony through the API and returns the
// issued tokens.
func (f *serverFixture) login(t *testing.T, email string, auth virtualwebauthn.Authenticator, cred *virtualwebauthn.Credential) LoginResponse {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/options", LoginOptionsRequest{Email: email}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(publicKeyOptions(t, rec))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(f.rp, auth, *cred, *parsedOptions)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/verify", LoginVerifyRequest{
		Credential: json.RawMessage(assertion),
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Tokens)
	return resp
}

func TestNewServer_MissingDependencies(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewServer(&Config{})
	assert.ErrorContains(t, err, "passkey service is required")
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	decodeBody(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
}

func TestServer_Metrics(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "formloom_")
}

func TestServer_Signup(t *testing.T) {
	f := newServerFixture(t, nil)

	profile := f.signup(t, "alice", "Alice@Example.com")
	assert.NotEmpty(t, profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.Equal(t, user.RoleEditor, profile.Role)
	assert.True(t, profile.IsActive)
	assert.False(t, profile.IsEmailVerified)

	t.Run("duplicate email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/register", SignupRequest{
			Username: "alice2",
			Email:    "alice@example.com",
		}, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/register", SignupRequest{Username: "bob"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/register", SignupRequest{
			Username: "bob",
			Email:    "not-an-email",
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_FullAuthFlow(t *testing.T) {
	f := newServerFixture(t, nil)

	f.signup(t, "alice", "alice@example.com")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.register(t, "alice@example.com", auth, &cred)
	auth.AddCredential(cred)

	// Registration marks the email verified
	stored, err := f.users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)
	cred.Counter = stored.Credentials[0].SignCount + 5

	resp := f.login(t, "alice@example.com", auth, &cred)
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	// Access token works against a session endpoint
	rec := f.do(t, http.MethodGet, "/api/v1/auth/me", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.Profile
	decodeBody(t, rec, &me)
	assert.Equal(t, "alice", me.Username)

	// Credentials listing shows the registered passkey
	rec = f.do(t, http.MethodGet, "/api/v1/auth/credentials", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var creds CredentialListResponse
	decodeBody(t, rec, &creds)
	require.Equal(t, 1, creds.Total)
	assert.Equal(t, "test key", creds.Credentials[0].Name)

	// Refresh rotates the pair and revokes the used refresh token
	rec = f.do(t, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: resp.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated token.Pair
	decodeBody(t, rec, &rotated)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, resp.Tokens.RefreshToken, rotated.RefreshToken)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: resp.Tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout revokes both tokens
	rec = f.do(t, http.MethodPost, "/api/v1/auth/logout", LogoutRequest{RefreshToken: rotated.RefreshToken}, rotated.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/auth/me", nil, rotated.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: rotated.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_LoginFailures(t *testing.T) {
	f := newServerFixture(t, nil)
	f.signup(t, "alice", "alice@example.com")

	t.Run("unknown email is indistinguishable from bad credentials", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/options", LoginOptionsRequest{Email: "ghost@example.com"}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("account without credentials", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/options", LoginOptionsRequest{Email: "alice@example.com"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed assertion", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/verify", LoginVerifyRequest{
			Credential: json.RawMessage(`{"not":"a credential"}`),
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing credential", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/verify", LoginVerifyRequest{}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_RegisterOptionsUnknownEmail(t *testing.T) {
	f := newServerFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/register/options", RegisterOptionsRequest{Email: "ghost@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/passkey/register/options", RegisterOptionsRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SessionEndpointsRequireAuth(t *testing.T) {
	f := newServerFixture(t, nil)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/auth/credentials"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/admin/users"},
	} {
		rec := f.do(t, tc.method, tc.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)

		rec = f.do(t, tc.method, tc.path, nil, "garbage-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with garbage token", tc.method, tc.path)
	}
}

func TestServer_AdminEndpoints(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx := context.Background()

	f.signup(t, "alice", "alice@example.com")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.register(t, "alice@example.com", auth, &cred)
	auth.AddCredential(cred)

	stored, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	cred.Counter = stored.Credentials[0].SignCount + 5

	resp := f.login(t, "alice@example.com", auth, &cred)

	// Editors cannot reach admin endpoints
	rec := f.do(t, http.MethodGet, "/api/v1/admin/users", nil, resp.Tokens.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Promote alice; the gateway reloads the account on every request
	// so the existing token now carries admin access
	stored, err = f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	stored.Role = user.RoleAdmin
	require.NoError(t, f.users.Update(ctx, stored))

	rec = f.do(t, http.MethodGet, "/api/v1/admin/users", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list UserListResponse
	decodeBody(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "admin", list.Users[0].Role)
	assert.Equal(t, 1, list.Users[0].CredentialCount)

	t.Run("update role and active flag", func(t *testing.T) {
		f.signup(t, "bob", "bob@example.com")
		bob, err := f.users.GetByEmail(ctx, "bob@example.com")
		require.NoError(t, err)

		inactive := false
		rec := f.do(t, http.MethodPut, "/api/v1/admin/users/"+bob.ID, UpdateUserRequest{
			Role:     "viewer",
			IsActive: &inactive,
		}, resp.Tokens.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var updated user.Profile
		decodeBody(t, rec, &updated)
		assert.Equal(t, user.RoleViewer, updated.Role)
		assert.False(t, updated.IsActive)
	})

	t.Run("invalid role rejected", func(t *testing.T) {
		bob, err := f.users.GetByEmail(ctx, "bob@example.com")
		require.NoError(t, err)

		rec := f.do(t, http.MethodPut, "/api/v1/admin/users/"+bob.ID, UpdateUserRequest{Role: "superuser"}, resp.Tokens.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := f.do(t, http.MethodPut, "/api/v1/admin/users/no-such-id", UpdateUserRequest{Role: "viewer"}, resp.Tokens.AccessToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_DeleteCredential(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx := context.Background()

	f.signup(t, "alice", "alice@example.com")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.register(t, "alice@example.com", auth, &cred)
	auth.AddCredential(cred)

	stored, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	cred.Counter = stored.Credentials[0].SignCount + 5

	resp := f.login(t, "alice@example.com", auth, &cred)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/credentials", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var creds CredentialListResponse
	decodeBody(t, rec, &creds)
	require.Equal(t, 1, creds.Total)

	// The only credential cannot be removed
	rec = f.do(t, http.MethodDelete, "/api/v1/auth/credentials/"+creds.Credentials[0].ID, nil, resp.Tokens.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A second passkey makes the first removable
	auth2 := virtualwebauthn.NewAuthenticator()
	cred2 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.register(t, "alice@example.com", auth2, &cred2)

	rec = f.do(t, http.MethodDelete, "/api/v1/auth/credentials/"+creds.Credentials[0].ID, nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/auth/credentials", nil, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &creds)
	assert.Equal(t, 1, creds.Total)

	t.Run("unknown credential", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/v1/auth/credentials/AAAA", nil, resp.Tokens.AccessToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad credential id encoding", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/v1/auth/credentials/!!!", nil, resp.Tokens.AccessToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_RateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             3,
	})
	t.Cleanup(limiter.Stop)

	f := newServerFixture(t, limiter)

	var last int
	for i := 0; i < 4; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/login/options", LoginOptionsRequest{Email: "ghost@example.com"}, "")
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)

	// Session endpoints are not throttled
	rec := f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORS(t *testing.T) {
	f := newServerFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/passkey/login/options", nil)
	req.Header.Set("Origin", "https://forms.example.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://forms.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	t.Run("unknown origin gets no CORS headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/passkey/login/options", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_AddSecondPasskeyWhileAuthenticated(t *testing.T) {
	f := newServerFixture(t, nil)
	ctx := context.Background()

	f.signup(t, "alice", "alice@example.com")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	f.register(t, "alice@example.com", auth, &cred)
	auth.AddCredential(cred)

	stored, err := f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	cred.Counter = stored.Credentials[0].SignCount + 5

	resp := f.login(t, "alice@example.com", auth, &cred)

	// An authenticated register call needs no email in the body
	rec := f.do(t, http.MethodPost, "/api/v1/auth/passkey/register/options", RegisterOptionsRequest{}, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(publicKeyOptions(t, rec))
	require.NoError(t, err)

	// The existing credential is excluded from re-registration
	assert.NotEmpty(t, parsedOptions.ExcludeCredentials)

	auth2 := virtualwebauthn.NewAuthenticator()
	cred2 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	attestation := virtualwebauthn.CreateAttestationResponse(f.rp, auth2, cred2, *parsedOptions)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/passkey/register/verify", RegisterVerifyRequest{
		CredentialName: "backup key",
		Credential:     json.RawMessage(attestation),
	}, resp.Tokens.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored, err = f.users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, stored.Credentials, 2)
}
