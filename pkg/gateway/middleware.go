// Copyright (c) 2026 Formloom, Inc.
//
// This file is part of the Formloom server.

package gateway

import (
	"net/http"

	"github.com/formloom/formloom/pkg/logger"
	"github.com/formloom/formloom/pkg/user"
)

// ErrorWriter renders an authentication or authorization failure to the
// client. The HTTP layer supplies its own to keep error responses
// uniform across the API.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware returns middleware that requires a valid access token.
// The resolved identity is stored on the request context for handlers
// and RequireRole to read.
func (g *Gateway) Middleware(writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				g.log.Debug("authentication failed",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.Error(err))
				writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalMiddleware resolves an identity when a valid token is
// presented and otherwise lets the request through anonymously. All
// authentication failures are swallowed; handlers see a nil identity.
func (g *Gateway) OptionalMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole returns middleware that requires the authenticated
// identity to hold one of the given roles. It must run after
// Middleware.
func (g *Gateway) RequireRole(writeError ErrorWriter, roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				writeError(w, r, ErrMissingToken)
				return
			}
			if !identity.HasRole(roles...) {
				g.log.Warn("access denied",
					logger.String("user_id", identity.UserID),
					logger.String("role", string(identity.Role)),
					logger.String("path", r.URL.Path))
				writeError(w, r, NewError("require role", ErrInsufficientPermissions))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
