// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package user

import "errors"

var (
	// ErrNotFound is returned when a user or credential does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrAlreadyExists is returned when a unique constraint is violated
	// (user ID, username, email, or credential ID).
	ErrAlreadyExists = errors.New("user already exists")

	// ErrCounterConflict is returned by UpdateCredentialCounter when the
	// stored counter no longer matches the expected value.
	ErrCounterConflict = errors.New("credential counter conflict")

	// ErrInactive is returned when a deactivated account attempts to
	// authenticate or refresh a session.
	ErrInactive = errors.New("user account is inactive")
)
