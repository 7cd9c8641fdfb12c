// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

// Package passkey implements WebAuthn passkey registration and
// authentication for Formloom accounts.
//
// The package wraps github.com/go-webauthn/webauthn with a challenge
// store that enforces single-use, time-limited ceremony challenges.
// A challenge issued by BeginRegistration or BeginLogin is consumed
// atomically by the matching Finish call; replaying a response after
// its challenge has been consumed or has expired fails with
// ErrChallengeNotFound.
//
// Basic usage:
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config:     &passkey.Config{RPID: "forms.example.com", RPDisplayName: "Formloom", RPOrigins: []string{"https://forms.example.com"}},
//	    Users:      userStore,
//	    Challenges: passkey.NewMemoryChallengeStore(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Registration ceremony
//	options, err := svc.BeginRegistration(ctx, userID)
//	// ... send options to the browser, receive the attestation response ...
//	cred, err := svc.FinishRegistration(ctx, userID, "My Laptop", response)
//
//	// Authentication ceremony (email may be empty for discoverable login)
//	options, err := svc.BeginLogin(ctx, "alice@example.com")
//	// ... send options to the browser, receive the assertion response ...
//	account, err := svc.FinishLogin(ctx, response)
//
// Successful authentications advance the credential's signature counter.
// A response whose counter does not strictly increase is rejected with
// ErrClonedAuthenticator, which also matches ErrVerificationFailed.
package passkey
