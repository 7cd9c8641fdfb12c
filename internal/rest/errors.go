// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/formloom/formloom/pkg/gateway"
	"github.com/formloom/formloom/pkg/passkey"
	"github.com/formloom/formloom/pkg/token"
	"github.com/formloom/formloom/pkg/user"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// writeErrorWithMessage writes an error response with a custom message.
func writeErrorWithMessage(w http.ResponseWriter, err error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// mapErrorToStatusCode maps errors to HTTP status codes.
//
// Ceremony and token failures deliberately collapse into 401 so a
// probing client cannot distinguish an unknown credential from a bad
// signature or a stale challenge.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, passkey.ErrVerificationFailed),
		errors.Is(err, passkey.ErrChallengeNotFound),
		errors.Is(err, passkey.ErrCredentialNotFound),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenInvalidSignature),
		errors.Is(err, token.ErrTokenMalformed),
		errors.Is(err, token.ErrTokenTypeMismatch),
		errors.Is(err, token.ErrTokenRevoked),
		errors.Is(err, gateway.ErrMissingToken),
		errors.Is(err, user.ErrInactive):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, passkey.ErrInvalidResponse),
		errors.Is(err, passkey.ErrNoCredentials),
		errors.Is(err, passkey.ErrLastCredential):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrAlreadyExists),
		errors.Is(err, passkey.ErrCredentialAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError is a convenience function that maps the error to a status code
// and writes the error response.
func handleError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	writeError(w, err, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
