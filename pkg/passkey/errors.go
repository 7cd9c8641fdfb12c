// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for passkey operations.
var (
	// ErrChallengeNotFound is returned when a ceremony challenge cannot
	// be found, has expired, or was already consumed. Callers cannot
	// distinguish these cases.
	ErrChallengeNotFound = errors.New("challenge not found or expired")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned when registering a credential
	// whose ID is already bound to an account.
	ErrCredentialAlreadyExists = errors.New("credential already exists")

	// ErrVerificationFailed is returned when an authenticator response
	// fails cryptographic or ceremony verification.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNoCredentials is returned when a user has no registered passkeys.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrLastCredential is returned when removing a credential would
	// leave the account unable to sign in.
	ErrLastCredential = errors.New("cannot remove the only registered credential")

	// ErrInvalidResponse is returned when the authenticator response is
	// malformed.
	ErrInvalidResponse = errors.New("invalid authenticator response")

	// ErrNotConfigured is returned when the service is not properly
	// configured.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// ErrClonedAuthenticator is returned when a signature counter fails to
// strictly increase, indicating a possibly cloned authenticator. It
// matches ErrVerificationFailed under errors.Is.
var ErrClonedAuthenticator = fmt.Errorf("%w: cloned authenticator detected", ErrVerificationFailed)

// Error wraps a passkey error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and error.
func NewError(op string, err error) error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsChallengeNotFound returns true if the error indicates a missing,
// expired, or consumed challenge.
func IsChallengeNotFound(err error) bool {
	return errors.Is(err, ErrChallengeNotFound)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsClonedAuthenticator returns true if the error indicates a cloned
// authenticator was detected.
func IsClonedAuthenticator(err error) bool {
	return errors.Is(err, ErrClonedAuthenticator)
}
