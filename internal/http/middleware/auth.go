package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"taskboard/internal/models"
)

type contextKey string

const userCtxKey contextKey = "sessionUser"

// SessionReader is the part of the session store the middleware needs.
type SessionReader interface {
	GetSession(w http.ResponseWriter, r *http.Request) (*models.SessionUser, error)
}

// LoadSession decodes the session cookie and puts the user, if any, into the
// request context. It never rejects a request.
func LoadSession(sessions SessionReader, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sessions.GetSession(w, r)
			if err != nil {
				log.Warn("session refresh failed", zap.Error(err))
			}
			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin redirects to the login page when no session user is present
// and otherwise passes the request through unchanged.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user *models.SessionUser) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext returns the logged-in user set by LoadSession.
func UserFromContext(ctx context.Context) (*models.SessionUser, bool) {
	user, ok := ctx.Value(userCtxKey).(*models.SessionUser)
	return user, ok && user != nil
}
