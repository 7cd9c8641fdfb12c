// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package rest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/formloom/formloom/pkg/gateway"
	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/metrics"
	"github.com/formloom/formloom/pkg/passkey"
	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

const timeFormat = "2006-01-02T15:04:05Z"

// AuthHandlers provides HTTP handlers for the auth endpoints.
type AuthHandlers struct {
	passkeys *passkey.Service
	tokens   *token.Service
	users    user.Store
	logger   logger.Logger
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(passkeys *passkey.Service, tokens *token.Service, users user.Store, log logger.Logger) *AuthHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandlers{
		passkeys: passkeys,
		tokens:   tokens,
		users:    users,
		logger:   log,
	}
}

// SignupHandler creates a new account. The account cannot sign in
// until a passkey registration ceremony completes.
func (h *AuthHandlers) SignupHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = user.NormalizeEmail(req.Email)
	if req.Username == "" || req.Email == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "username and email are required", http.StatusBadRequest)
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeErrorWithMessage(w, ErrInvalidRequest, "invalid email address", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	account := &user.User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     req.Email,
		FullName:  strings.TrimSpace(req.FullName),
		Role:      user.RoleEditor,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.users.Create(ctx, account); err != nil {
		handleError(w, err)
		return
	}

	h.logger.Info("Account created",
		logger.String("user_id", account.ID),
		logger.String("username", account.Username))

	writeJSON(w, account.Profile(), http.StatusCreated)
}

// RegisterOptionsHandler starts a passkey registration ceremony and
// returns the creation options for navigator.credentials.create().
func (h *AuthHandlers) RegisterOptionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req RegisterOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, err := h.resolveAccount(r, req.Email)
	if err != nil {
		handleError(w, err)
		return
	}

	options, err := h.passkeys.BeginRegistration(ctx, userID)
	if err != nil {
		metrics.RecordOperation(metrics.OpRegisterBegin, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpRegisterBegin, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, options, http.StatusOK)
}

// RegisterVerifyHandler finishes a passkey registration ceremony.
func (h *AuthHandlers) RegisterVerifyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req RegisterVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Credential) == 0 {
		writeErrorWithMessage(w, ErrInvalidRequest, "credential is required", http.StatusBadRequest)
		return
	}

	userID, err := h.resolveAccount(r, req.Email)
	if err != nil {
		handleError(w, err)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed attestation response", http.StatusBadRequest)
		return
	}

	cred, err := h.passkeys.FinishRegistration(ctx, userID, req.CredentialName, response)
	if err != nil {
		metrics.RecordOperation(metrics.OpRegisterFinish, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpRegisterFinish, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, credentialInfo(cred), http.StatusCreated)
}

// LoginOptionsHandler starts a passkey login ceremony and returns the
// assertion options for navigator.credentials.get(). An empty email
// requests a discoverable login.
func (h *AuthHandlers) LoginOptionsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req LoginOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}

	options, err := h.passkeys.BeginLogin(ctx, req.Email)
	if err != nil {
		metrics.RecordOperation(metrics.OpLoginBegin, metrics.StatusError, time.Since(start).Seconds())
		// Unknown accounts get the same response shape as bad
		// credentials so login cannot be used to enumerate emails.
		if passkey.IsUserStoreNotFound(err) || passkey.IsVerificationFailed(err) {
			writeError(w, passkey.ErrVerificationFailed, http.StatusUnauthorized)
			return
		}
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpLoginBegin, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, options, http.StatusOK)
}

// LoginVerifyHandler finishes a passkey login ceremony and issues a
// token pair.
func (h *AuthHandlers) LoginVerifyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req LoginVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Credential) == 0 {
		writeErrorWithMessage(w, ErrInvalidRequest, "credential is required", http.StatusBadRequest)
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed assertion response", http.StatusBadRequest)
		return
	}

	account, err := h.passkeys.FinishLogin(ctx, response)
	if err != nil {
		metrics.RecordOperation(metrics.OpLoginFinish, metrics.StatusError, time.Since(start).Seconds())
		if passkey.IsClonedAuthenticator(err) {
			metrics.RecordError(metrics.OpLoginFinish, "cloned_authenticator")
		}
		handleError(w, err)
		return
	}

	pair, err := h.tokens.Issue(ctx, account)
	if err != nil {
		metrics.RecordOperation(metrics.OpTokenIssue, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpLoginFinish, metrics.StatusSuccess, time.Since(start).Seconds())
	h.logger.Info("Login succeeded",
		logger.String("user_id", account.ID),
		logger.String("username", account.Username))

	writeJSON(w, LoginResponse{User: account.Profile(), Tokens: pair}, http.StatusOK)
}

// RefreshHandler exchanges a refresh token for a new pair. The used
// refresh token is revoked.
func (h *AuthHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RefreshToken == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "refresh_token is required", http.StatusBadRequest)
		return
	}

	pair, err := h.tokens.Refresh(ctx, req.RefreshToken)
	if err != nil {
		metrics.RecordOperation(metrics.OpTokenRefresh, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpTokenRefresh, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, pair, http.StatusOK)
}

// LogoutHandler revokes the caller's access token and, when supplied,
// their refresh token. Requires authentication.
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req LogoutRequest
	if r.Body != nil {
		// Body is optional; a bare logout revokes the access token only
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var userID string
	if identity := gateway.IdentityFromContext(ctx); identity != nil {
		userID = identity.UserID
	}

	if accessToken := bearerToken(r); accessToken != "" {
		if err := h.tokens.Revoke(ctx, accessToken, userID, token.KindAccess); err != nil {
			metrics.RecordOperation(metrics.OpTokenRevoke, metrics.StatusError, time.Since(start).Seconds())
			handleError(w, err)
			return
		}
	}

	if req.RefreshToken != "" {
		if err := h.tokens.Revoke(ctx, req.RefreshToken, userID, token.KindRefresh); err != nil {
			metrics.RecordOperation(metrics.OpTokenRevoke, metrics.StatusError, time.Since(start).Seconds())
			handleError(w, err)
			return
		}
	}

	metrics.RecordOperation(metrics.OpTokenRevoke, metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, MessageResponse{Message: "Logged out"}, http.StatusOK)
}

// MeHandler returns the authenticated caller's profile.
func (h *AuthHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := gateway.IdentityFromContext(ctx)
	if identity == nil {
		writeError(w, gateway.ErrMissingToken, http.StatusUnauthorized)
		return
	}

	account, err := h.users.GetByID(ctx, identity.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, account.Profile(), http.StatusOK)
}

// ListCredentialsHandler lists the caller's registered passkeys.
func (h *AuthHandlers) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := gateway.IdentityFromContext(ctx)
	if identity == nil {
		writeError(w, gateway.ErrMissingToken, http.StatusUnauthorized)
		return
	}

	creds, err := h.passkeys.Credentials(ctx, identity.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	infos := make([]CredentialInfo, len(creds))
	for i := range creds {
		infos[i] = credentialInfo(&creds[i])
	}

	writeJSON(w, CredentialListResponse{Credentials: infos, Total: len(infos)}, http.StatusOK)
}

// DeleteCredentialHandler removes one of the caller's passkeys. The
// last credential cannot be removed.
func (h *AuthHandlers) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := gateway.IdentityFromContext(ctx)
	if identity == nil {
		writeError(w, gateway.ErrMissingToken, http.StatusUnauthorized)
		return
	}

	idParam := chi.URLParam(r, "id")
	credID, err := base64.RawURLEncoding.DecodeString(idParam)
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid credential ID format", http.StatusBadRequest)
		return
	}

	if err := h.passkeys.RemoveCredential(ctx, identity.UserID, credID); err != nil {
		if passkey.IsCredentialNotFound(err) {
			writeErrorWithMessage(w, err, "Credential not found", http.StatusNotFound)
			return
		}
		handleError(w, err)
		return
	}

	writeJSON(w, MessageResponse{Message: "Credential removed"}, http.StatusOK)
}

// ListUsersHandler returns all accounts. Admin only.
func (h *AuthHandlers) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.users.List(ctx)
	if err != nil {
		handleError(w, err)
		return
	}

	infos := make([]UserInfo, len(accounts))
	for i, u := range accounts {
		infos[i] = UserInfo{
			ID:              u.ID,
			Username:        u.Username,
			Email:           u.Email,
			FullName:        u.FullName,
			Role:            string(u.Role),
			IsActive:        u.IsActive,
			IsEmailVerified: u.IsEmailVerified,
			CredentialCount: len(u.Credentials),
			CreatedAt:       u.CreatedAt.Format(timeFormat),
		}
		if u.LastLoginAt != nil {
			infos[i].LastLoginAt = u.LastLoginAt.Format(timeFormat)
		}
	}

	writeJSON(w, UserListResponse{Users: infos, Total: len(infos)}, http.StatusOK)
}

// UpdateUserHandler updates an account's role, name, or active flag.
// Admin only. Deactivating an account invalidates its refresh flow
// and gateway checks immediately.
func (h *AuthHandlers) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "User ID is required", http.StatusBadRequest)
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.users.GetByID(ctx, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	if req.FullName != "" {
		account.FullName = req.FullName
	}
	if req.Role != "" {
		role := user.Role(req.Role)
		if !user.IsValidRole(role) {
			writeErrorWithMessage(w, ErrInvalidRequest,
				fmt.Sprintf("Invalid role %q. Must be one of: admin, editor, viewer", req.Role),
				http.StatusBadRequest)
			return
		}
		account.Role = role
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}
	account.UpdatedAt = time.Now().UTC()

	if err := h.users.Update(ctx, account); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, account.Profile(), http.StatusOK)
}

// resolveAccount determines which account a ceremony request targets.
// An authenticated caller always acts on their own account; otherwise
// the email in the request body identifies it.
func (h *AuthHandlers) resolveAccount(r *http.Request, email string) (string, error) {
	if identity := gateway.IdentityFromContext(r.Context()); identity != nil {
		return identity.UserID, nil
	}

	email = user.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}

	account, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if token, found := strings.CutPrefix(auth, "Bearer "); found {
		return token
	}
	return auth
}

func credentialInfo(cred *user.Credential) CredentialInfo {
	info := CredentialInfo{
		ID:         base64.RawURLEncoding.EncodeToString(cred.ID),
		Name:       cred.Name,
		DeviceType: string(cred.DeviceType),
		CreatedAt:  cred.CreatedAt.Format(timeFormat),
	}
	if cred.LastUsedAt != nil {
		info.LastUsedAt = cred.LastUsedAt.Format(timeFormat)
	}
	return info
}
