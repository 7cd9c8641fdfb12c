// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package passkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/user"
)

// Service provides passkey registration and authentication ceremonies.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	users      user.Store
	challenges ChallengeStore
	log        logger.Logger
	configured bool
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the passkey configuration (required).
	Config *Config

	// Users is the user persistence layer (required).
	Users user.Store

	// Challenges is the ceremony challenge store (required).
	Challenges ChallengeStore

	// Logger is an optional structured logger.
	Logger logger.Logger
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		users:      params.Users,
		challenges: params.Challenges,
		log:        params.Logger,
		configured: true,
	}, nil
}

// BeginRegistration starts a registration ceremony for an existing user.
// Returns the creation options to send to the client. The embedded
// challenge is stored and must come back in the attestation response
// within the challenge TTL.
func (s *Service) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	account, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	// Exclude already-registered credentials so the authenticator
	// refuses to create a duplicate.
	excludeList := make([]protocol.CredentialDescriptor, len(account.Credentials))
	for i, cred := range account.Credentials {
		excludeList[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
		}
	}

	options, session, err := s.webauthn.BeginRegistration(account,
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	ch := NewChallenge(session.Challenge, ChallengeRegistration, account.ID, s.config.ChallengeTTL)
	if err := s.challenges.Save(ctx, ch); err != nil {
		return nil, WrapError("save challenge", err)
	}

	s.log.Debug("registration ceremony started",
		logger.String("user_id", account.ID))

	return options, nil
}

// FinishRegistration completes a registration ceremony. The challenge
// is consumed only once the attestation verifies, so a failed attempt
// leaves it live for a retry; replays of a completed ceremony fail with
// ErrChallengeNotFound. Returns the stored credential.
func (s *Service) FinishRegistration(ctx context.Context, userID, credentialName string, response *protocol.ParsedCredentialCreationData) (*user.Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, ErrInvalidResponse
	}

	ch, err := s.challenges.FindByValue(ctx, response.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, WrapError("find challenge", err)
	}
	if ch.Type != ChallengeRegistration || ch.UserID != userID {
		return nil, NewError("finish registration", ErrChallengeNotFound)
	}

	account, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	session := webauthn.SessionData{
		Challenge:        ch.Value,
		UserID:           account.WebAuthnID(),
		Expires:          ch.ExpiresAt,
		UserVerification: s.config.userVerificationRequirement(),
		CredParams:       webauthn.CredentialParametersDefault(),
	}

	credential, err := s.webauthn.CreateCredential(account, session, response)
	if err != nil {
		return nil, NewError("create credential", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	// Credential IDs are globally unique across all accounts.
	if _, err := s.users.GetByCredentialID(ctx, credential.ID); err == nil {
		return nil, NewError("finish registration", ErrCredentialAlreadyExists)
	} else if !IsUserStoreNotFound(err) {
		return nil, WrapError("check credential", err)
	}

	// Spend the challenge only now that verification has passed. Losing
	// the consume race to a concurrent finish reads as a replay.
	if _, err := s.challenges.Consume(ctx, ch.Value, ChallengeRegistration); err != nil {
		return nil, WrapError("consume challenge", err)
	}

	cred := user.NewCredentialFromWebAuthn(credential, credentialName, deviceTypeFromAttachment(credential.Authenticator.Attachment))
	account.AddCredential(cred)
	account.IsEmailVerified = true
	if err := s.users.Update(ctx, account); err != nil {
		return nil, WrapError("save user", err)
	}

	s.log.Info("passkey registered",
		logger.String("user_id", account.ID),
		logger.String("credential_name", cred.Name),
		logger.String("device_type", string(cred.DeviceType)))

	return cred, nil
}

// BeginLogin starts an authentication ceremony. With an email the
// options are scoped to that account's credentials; with an empty email
// a discoverable-credential ceremony is started and the account is
// resolved from the assertion response.
func (s *Service) BeginLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	var options *protocol.CredentialAssertion
	var session *webauthn.SessionData
	var scopedUserID string
	var err error

	if email == "" {
		options, session, err = s.webauthn.BeginDiscoverableLogin()
	} else {
		account, userErr := s.users.GetByEmail(ctx, email)
		if userErr != nil {
			return nil, WrapError("get user", userErr)
		}
		if !account.IsActive {
			return nil, NewError("begin login", user.ErrInactive)
		}
		if len(account.Credentials) == 0 {
			return nil, NewError("begin login", ErrNoCredentials)
		}
		scopedUserID = account.ID

		options, session, err = s.webauthn.BeginLogin(account)
	}
	if err != nil {
		return nil, WrapError("begin login", err)
	}

	ch := NewChallenge(session.Challenge, ChallengeAuthentication, scopedUserID, s.config.ChallengeTTL)
	if err := s.challenges.Save(ctx, ch); err != nil {
		return nil, WrapError("save challenge", err)
	}

	return options, nil
}

// FinishLogin completes an authentication ceremony and returns the
// authenticated account. The credential's signature counter must
// strictly increase; a stalled or regressed counter fails with
// ErrClonedAuthenticator. The challenge is consumed only once the
// assertion verifies, so a failed attempt leaves it live for a retry.
func (s *Service) FinishLogin(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*user.User, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, ErrInvalidResponse
	}

	ch, err := s.challenges.FindByValue(ctx, response.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, WrapError("find challenge", err)
	}
	if ch.Type != ChallengeAuthentication {
		return nil, NewError("finish login", ErrChallengeNotFound)
	}

	// Resolve the account from the asserted credential. This covers
	// both the scoped and the discoverable flow.
	account, err := s.users.GetByCredentialID(ctx, response.RawID)
	if err != nil {
		if IsUserStoreNotFound(err) {
			return nil, NewError("finish login", ErrCredentialNotFound)
		}
		return nil, WrapError("get user by credential", err)
	}

	// A challenge issued for one account cannot authenticate another.
	if ch.UserID != "" && ch.UserID != account.ID {
		return nil, NewError("finish login", ErrVerificationFailed)
	}
	if !account.IsActive {
		return nil, NewError("finish login", user.ErrInactive)
	}

	session := webauthn.SessionData{
		Challenge:        ch.Value,
		UserID:           account.WebAuthnID(),
		Expires:          ch.ExpiresAt,
		UserVerification: s.config.userVerificationRequirement(),
	}

	validated, err := s.webauthn.ValidateLogin(account, session, response)
	if err != nil {
		return nil, NewError("validate login", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	stored := account.GetCredential(validated.ID)
	if stored == nil {
		return nil, NewError("finish login", ErrCredentialNotFound)
	}

	// Clone detection: the signature counter must strictly increase.
	newCount := validated.Authenticator.SignCount
	if validated.Authenticator.CloneWarning || newCount <= stored.SignCount {
		s.log.Warn("authenticator clone suspected",
			logger.String("user_id", account.ID),
			logger.Int64("stored_count", int64(stored.SignCount)),
			logger.Int64("asserted_count", int64(newCount)))
		return nil, NewError("finish login", ErrClonedAuthenticator)
	}

	// Spend the challenge only now that verification has passed. Losing
	// the consume race to a concurrent finish reads as a replay.
	if _, err := s.challenges.Consume(ctx, ch.Value, ChallengeAuthentication); err != nil {
		return nil, WrapError("consume challenge", err)
	}

	err = s.users.UpdateCredentialCounter(ctx, account.ID, stored.ID, stored.SignCount, newCount)
	if err != nil {
		// A concurrent login already advanced the counter; treat this
		// response as replayed.
		if IsCounterConflict(err) {
			return nil, NewError("finish login", ErrClonedAuthenticator)
		}
		return nil, WrapError("update counter", err)
	}

	account, err = s.users.GetByID(ctx, account.ID)
	if err != nil {
		return nil, WrapError("reload user", err)
	}

	s.log.Info("passkey login succeeded",
		logger.String("user_id", account.ID))

	return account, nil
}

// Credentials returns all passkeys registered for a user.
func (s *Service) Credentials(ctx context.Context, userID string) ([]user.Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	account, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, WrapError("get user", err)
	}
	return account.Credentials, nil
}

// RemoveCredential deletes one of a user's passkeys. The last remaining
// passkey cannot be removed, since the account would become unable to
// sign in.
func (s *Service) RemoveCredential(ctx context.Context, userID string, credID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}

	account, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return WrapError("get user", err)
	}
	if account.GetCredential(credID) == nil {
		return NewError("remove credential", ErrCredentialNotFound)
	}
	if len(account.Credentials) == 1 {
		return NewError("remove credential", ErrLastCredential)
	}

	account.RemoveCredential(credID)
	return WrapError("save user", s.users.Update(ctx, account))
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// IsUserStoreNotFound reports whether err is the user store's not-found
// error.
func IsUserStoreNotFound(err error) bool {
	return errors.Is(err, user.ErrNotFound)
}

// IsCounterConflict reports whether err is the user store's
// compare-and-set conflict error.
func IsCounterConflict(err error) bool {
	return errors.Is(err, user.ErrCounterConflict)
}

// deviceTypeFromAttachment maps the authenticator attachment reported
// at registration to the stored device type. Unknown attachments
// default to cross-platform.
func deviceTypeFromAttachment(attachment protocol.AuthenticatorAttachment) user.DeviceType {
	if attachment == protocol.Platform {
		return user.DevicePlatform
	}
	return user.DeviceCrossPlatform
}
