package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mcoot/stakegame/internal/api/apierr"
	"github.com/mcoot/stakegame/internal/model"
	"github.com/mcoot/stakegame/internal/services/auth"
)

type contextKey string

const (
	participantContextKey contextKey = "participant"
	sessionContextKey     contextKey = "session"
)

// SessionValidator resolves bearer tokens to sessions
type SessionValidator interface {
	ValidateSession(token string) (*auth.Session, error)
}

// Auth creates authentication middleware
func Auth(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			session, err := sessions.ValidateSession(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, participantContextKey, session.ParticipantID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Admin guards administrative routes with a static token. An empty token
// disables them.
func Admin(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				apierr.WriteError(w, apierr.NewForbiddenError("Admin token required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the bearer token from the request. Browsers cannot
// set headers on EventSource or WebSocket requests, so the access_token
// query parameter is accepted as well.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

// GetParticipantID returns the authenticated participant from the request context
func GetParticipantID(ctx context.Context) model.ParticipantID {
	id, _ := ctx.Value(participantContextKey).(model.ParticipantID)
	return id
}

// GetSession returns the session from the request context
func GetSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// MustGetParticipantID returns the authenticated participant or panics
func MustGetParticipantID(ctx context.Context) model.ParticipantID {
	id := GetParticipantID(ctx)
	if id == "" {
		panic("no participant in context - auth middleware not applied?")
	}
	return id
}
