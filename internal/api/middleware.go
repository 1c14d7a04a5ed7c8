/**
 * @description
 * This file contains custom middleware for the HTTP router. The session
 * middleware validates the bearer token on incoming requests, resolves it to a
 * live session through the session manager, and stores the session in the
 * request context for handlers to read.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: Token signing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/frappster/ledger-service/internal/auth"
)

// SessionContextKey is a custom type for the context key to avoid collisions.
type SessionContextKey string

const sessionKey SessionContextKey = "ledgerSession"

// TokenIssuer mints and validates the bearer tokens that carry a session id.
// Tokens are HS256-signed; the session registry, not the token, is the source
// of truth for liveness, so a revoked session fails even with a valid token.
type TokenIssuer struct {
	secret   []byte
	sessions *auth.Manager
}

// NewTokenIssuer creates a token issuer over the given signing secret.
func NewTokenIssuer(secret string, sessions *auth.Manager) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), sessions: sessions}
}

// IssueToken mints a bearer token for a freshly created session.
func (t *TokenIssuer) IssueToken(session *auth.Session) (string, error) {
	claims := jwt.MapClaims{
		"sub": session.ID.String(),
		"iat": session.CreatedAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ResolveToken validates a bearer token and maps it back to a live session.
func (t *TokenIssuer) ResolveToken(tokenString string) (*auth.Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims shape")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("sub claim missing")
	}
	sessionID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("sub claim is not a session id: %w", err)
	}
	session, ok := t.sessions.Resolve(sessionID)
	if !ok {
		return nil, fmt.Errorf("session no longer live")
	}
	return session, nil
}

// SessionAuthMiddleware validates the Authorization header and attaches the
// resolved session to the request context. Requests without a valid live
// session are rejected.
func SessionAuthMiddleware(issuer *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			session, err := issuer.ResolveToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid or expired session", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext retrieves the authenticated session from the request
// context.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	session, ok := ctx.Value(sessionKey).(*auth.Session)
	return session, ok
}

// RequestTimeout is the per-request deadline applied by the router.
const RequestTimeout = 60 * time.Second
