package sessionauth

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/panyam/sessionauth/oauth2"
)

// ResponseCache caches public GET responses and is purged when profiles change
type ResponseCache interface {
	Middleware(next http.Handler) http.Handler
	Purge(ctx context.Context) error
}

// App wires the auth core and its handlers into one HTTP surface
type App struct {
	Store      Store
	Sessions   *SessionManager
	Tokens     *TokenIssuer
	OAuth      *OAuthFlow
	Middleware *Middleware
	Local      *LocalAuth
	Users      *UserHandlers
	Logger     *slog.Logger

	// Cache is optional. When set, GET /users and GET /users/{id} are cached.
	Cache ResponseCache
}

// NewApp constructs every service explicitly from its dependencies
func NewApp(store Store, queue Enqueuer, config SessionConfig, logger *slog.Logger, providers ...oauth2.Provider) *App {
	if logger == nil {
		logger = slog.Default()
	}
	sessions := NewSessionManager(store, config, logger)
	tokens := NewTokenIssuer(store, sessions, logger)
	flow := NewOAuthFlow(store, sessions, logger, providers...)
	return &App{
		Store:      store,
		Sessions:   sessions,
		Tokens:     tokens,
		OAuth:      flow,
		Middleware: NewMiddleware(sessions, logger),
		Local: &LocalAuth{
			Store:    store,
			Sessions: sessions,
			Tokens:   tokens,
			OAuth:    flow,
			Queue:    queue,
			Logger:   logger,
		},
		Users:  &UserHandlers{Store: store, Logger: logger},
		Logger: logger,
	}
}

// Handler returns the router with every route registered
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.logRequests)
	r.Use(checkOrigin)
	r.Use(a.Middleware.ExtractUser)

	protected := func(h http.HandlerFunc) http.Handler {
		return a.Middleware.EnsureUser(h)
	}
	cached := func(h http.HandlerFunc) http.Handler {
		if a.Cache == nil {
			return h
		}
		return a.Cache.Middleware(h)
	}

	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", a.Local.HandleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/login", a.Local.HandleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/logout", a.Local.HandleLogout).Methods(http.MethodGet)
	auth.HandleFunc("/verify-email", a.Local.HandleVerifyEmail).Methods(http.MethodPost)
	auth.Handle("/resend-verification", protected(a.Local.HandleResendVerification)).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", a.Local.HandleRequestPasswordReset).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password/{token}", a.Local.HandleResetPassword).Methods(http.MethodPost)
	auth.HandleFunc("/login/{provider}", a.Local.HandleOAuthLogin).Methods(http.MethodGet)
	auth.HandleFunc("/login/{provider}/callback", a.Local.HandleOAuthCallback).Methods(http.MethodGet)

	users := r.PathPrefix("/users").Subrouter()
	users.Handle("", cached(a.Users.HandleList)).Methods(http.MethodGet)
	users.Handle("/{id}", cached(a.Users.HandleGet)).Methods(http.MethodGet)
	users.Handle("/{id}", protected(a.purgeAfter(a.Users.HandleUpdate))).Methods(http.MethodPatch)
	users.Handle("/{id}", protected(a.purgeAfter(a.Users.HandleDelete))).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusOK, "ok")
	}).Methods(http.MethodGet)
	return r
}

// purgeAfter drops cached profile responses once a write succeeded
func (a *App) purgeAfter(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if a.Cache != nil && rec.status < 300 {
			if err := a.Cache.Purge(r.Context()); err != nil {
				a.Logger.Warn("cache purge failed", "error", err)
			}
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"latency", time.Since(start))
	})
}

// checkOrigin rejects form posts from other origins. Browsers send those
// without a CORS preflight, so they must carry an Origin matching the host.
// JSON bodies already need a preflight and pass through.
func checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/x-www-form-urlencoded", "multipart/form-data", "text/plain":
			origin, err := url.Parse(r.Header.Get("Origin"))
			if err != nil || origin.Host == "" || origin.Host != r.Host {
				writeMessage(w, http.StatusForbidden, "Forbidden")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
