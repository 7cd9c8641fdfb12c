// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package token

import (
	"errors"
	"fmt"
)

// Sentinel errors for token operations.
var (
	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalidSignature is returned when a token's signature does
	// not verify against the expected secret.
	ErrTokenInvalidSignature = errors.New("token signature invalid")

	// ErrTokenMalformed is returned when a token cannot be parsed.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenTypeMismatch is returned when a token of one kind is
	// presented where the other kind is required.
	ErrTokenTypeMismatch = errors.New("token type mismatch")

	// ErrTokenRevoked is returned when a token has been revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrConfiguration is returned when the token service configuration
	// is unusable. The service refuses to start rather than sign with a
	// weak or shared secret.
	ErrConfiguration = errors.New("token configuration error")
)

// Error wraps a token error with the operation that produced it.
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

// IsExpired returns true if the error indicates an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// IsInvalidSignature returns true if the error indicates a bad signature.
func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrTokenInvalidSignature)
}

// IsRevoked returns true if the error indicates a revoked token.
func IsRevoked(err error) bool {
	return errors.Is(err, ErrTokenRevoked)
}

// IsTypeMismatch returns true if the error indicates the wrong token kind.
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTokenTypeMismatch)
}
