package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Default session settings
const (
	DefaultActivePeriod = 14 * 24 * time.Hour
	DefaultIdlePeriod   = 14 * 24 * time.Hour
	DefaultCookieName   = "auth_session"
)

// SessionConfig controls session lifetimes and the session cookie
type SessionConfig struct {
	// ActivePeriod is how long a session is valid without rotation
	ActivePeriod time.Duration

	// IdlePeriod is added on top of ActivePeriod. A session used during its
	// idle period is rotated, one used after it is dead.
	IdlePeriod time.Duration

	CookieName   string
	CookieSecure bool

	// RequireEmailVerification blocks password logins for unverified emails
	// and skips the session on signup.
	RequireEmailVerification bool
}

// DefaultSessionConfig returns production defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ActivePeriod: DefaultActivePeriod,
		IdlePeriod:   DefaultIdlePeriod,
		CookieName:   DefaultCookieName,
		CookieSecure: true,
	}
}

// SessionResult is the outcome of resolving a session id. User and Session
// are nil for anonymous requests. Cookie, when non-nil, must be written to
// the response: it is either a rotated session cookie or a blank one that
// clears a stale cookie.
type SessionResult struct {
	User    *User
	Session *Session
	Cookie  *http.Cookie
}

// SessionManager issues, validates, rotates and invalidates login sessions
type SessionManager struct {
	Store  Store
	Config SessionConfig
	Logger *slog.Logger

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// NewSessionManager creates a session manager, filling unset config fields with defaults
func NewSessionManager(store Store, config SessionConfig, logger *slog.Logger) *SessionManager {
	defaults := DefaultSessionConfig()
	if config.ActivePeriod <= 0 {
		config.ActivePeriod = defaults.ActivePeriod
	}
	if config.IdlePeriod <= 0 {
		config.IdlePeriod = defaults.IdlePeriod
	}
	if config.CookieName == "" {
		config.CookieName = defaults.CookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{Store: store, Config: config, Logger: logger, Clock: time.Now}
}

func (m *SessionManager) now() time.Time {
	if m.Clock == nil {
		return time.Now()
	}
	return m.Clock()
}

// CreateSession starts a new session for the user
func (m *SessionManager) CreateSession(ctx context.Context, userID string) (*Session, error) {
	return m.createSession(ctx, m.Store, userID)
}

func (m *SessionManager) createSession(ctx context.Context, store Store, userID string) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	session := &Session{
		ID:              id,
		UserID:          userID,
		ActiveExpiresAt: now.Add(m.Config.ActivePeriod),
		IdleExpiresAt:   now.Add(m.Config.ActivePeriod + m.Config.IdlePeriod),
		Fresh:           true,
	}
	if err := store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ValidateSession resolves a session id to its user, rotating the session
// when it is past its active period but still within its idle period.
// Unknown and dead ids resolve to an anonymous result with a blank cookie;
// dead rows are deleted on the way.
func (m *SessionManager) ValidateSession(ctx context.Context, sessionID string) (*SessionResult, error) {
	if sessionID == "" {
		return &SessionResult{}, nil
	}

	session, err := m.Store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return m.anonymous(), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	now := m.now()
	if session.IsDead(now) {
		if err := m.Store.DeleteSession(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return m.anonymous(), nil
	}

	user, err := m.Store.GetUserByID(ctx, session.UserID)
	if errors.Is(err, ErrNotFound) {
		if err := m.Store.DeleteSession(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("failed to delete orphaned session: %w", err)
		}
		return m.anonymous(), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}

	if session.IsActive(now) {
		return &SessionResult{User: user, Session: session}, nil
	}

	rotated, err := m.rotate(ctx, session)
	if err != nil {
		return nil, err
	}
	m.Logger.Debug("session rotated", "user_id", user.ID)
	return &SessionResult{User: user, Session: rotated, Cookie: m.SessionCookie(rotated)}, nil
}

// rotate replaces the session with a new id for the same user
func (m *SessionManager) rotate(ctx context.Context, old *Session) (*Session, error) {
	var rotated *Session
	err := m.Store.Transaction(ctx, func(tx Store) error {
		if err := tx.DeleteSession(ctx, old.ID); err != nil {
			return err
		}
		s, err := m.createSession(ctx, tx, old.UserID)
		if err != nil {
			return err
		}
		rotated = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	return rotated, nil
}

// InvalidateSession deletes the session. Unknown ids are not an error.
func (m *SessionManager) InvalidateSession(ctx context.Context, sessionID string) error {
	return m.Store.DeleteSession(ctx, sessionID)
}

// InvalidateUserSessions deletes every session belonging to the user
func (m *SessionManager) InvalidateUserSessions(ctx context.Context, userID string) error {
	return m.Store.DeleteUserSessions(ctx, userID)
}

// DeleteExpiredSessions purges dead sessions, for use by periodic cleanup
func (m *SessionManager) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return m.Store.DeleteExpiredSessions(ctx, m.now())
}

func (m *SessionManager) anonymous() *SessionResult {
	return &SessionResult{Cookie: m.BlankSessionCookie()}
}

// SessionCookie builds the cookie that carries the session id. It lives
// until the idle expiry so the browser still presents it for rotation.
func (m *SessionManager) SessionCookie(session *Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.Config.CookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.IdleExpiresAt,
		HttpOnly: true,
		Secure:   m.Config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// BlankSessionCookie builds a cookie that clears the session cookie
func (m *SessionManager) BlankSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.Config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SessionIDFromRequest returns the session id carried by the request cookie, if any
func (m *SessionManager) SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(m.Config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
