package sessionauth

import (
	"context"
	"log/slog"
	"net/http"
)

type authContextKey struct{}

// AuthContext is the request scoped result of session resolution. Both
// fields are nil for anonymous requests.
type AuthContext struct {
	User    *User
	Session *Session
}

// Middleware resolves the session cookie on every request
type Middleware struct {
	Sessions *SessionManager
	Logger   *slog.Logger
}

func NewMiddleware(sessions *SessionManager, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{Sessions: sessions, Logger: logger}
}

/**
 * Resolves the session cookie and makes the user and session available to
 * downstream handlers through the request context.
 *
 * Note this never rejects a request. To also enforce a user exists, use the
 * EnsureUser handler.
 */
func (a *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, a.resolve(w, r))
	})
}

// EnsureUser responds 401 before the handler runs unless the request carries a valid session
func (a *Middleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = a.resolve(w, r)
		if UserFromContext(r.Context()) == nil {
			writeMessage(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolve validates the session once per request. Store failures are
// logged and the request continues anonymously.
func (a *Middleware) resolve(w http.ResponseWriter, r *http.Request) *http.Request {
	if _, ok := r.Context().Value(authContextKey{}).(*AuthContext); ok {
		return r
	}

	authCtx := &AuthContext{}
	result, err := a.Sessions.ValidateSession(r.Context(), a.Sessions.SessionIDFromRequest(r))
	if err != nil {
		a.Logger.Error("session validation failed", "error", err, "path", r.URL.Path)
	} else {
		if result.Cookie != nil {
			http.SetCookie(w, result.Cookie)
		}
		authCtx.User = result.User
		authCtx.Session = result.Session
	}
	return r.WithContext(context.WithValue(r.Context(), authContextKey{}, authCtx))
}

// AuthFromContext returns the AuthContext attached by the middleware, or nil
func AuthFromContext(ctx context.Context) *AuthContext {
	authCtx, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return authCtx
}

// UserFromContext returns the logged in user, or nil for anonymous requests
func UserFromContext(ctx context.Context) *User {
	if authCtx := AuthFromContext(ctx); authCtx != nil {
		return authCtx.User
	}
	return nil
}

// SessionFromContext returns the current session, or nil for anonymous requests
func SessionFromContext(ctx context.Context) *Session {
	if authCtx := AuthFromContext(ctx); authCtx != nil {
		return authCtx.Session
	}
	return nil
}
