package sessionauth

import (
	"context"
	"time"
)

// Roles a user can hold
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User is a registered account in the system
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Username      *string    `json:"username,omitempty"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	PasswordHash  *string    `json:"-"` // nil for OAuth-only users
	Bio           *string    `json:"bio,omitempty"`
	Link          *string    `json:"link,omitempty"`
	DOB           *time.Time `json:"dob,omitempty"`
	ProfileImage  *string    `json:"profile_image,omitempty"`
	CoverImage    *string    `json:"cover_image,omitempty"`
	Role          string     `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsAdmin returns true if the user holds the ADMIN role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasPassword returns true if the user can log in with a local password
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserUpdate carries the profile fields a user may change about themselves.
// Nil fields are left untouched.
type UserUpdate struct {
	Name         *string    `json:"name,omitempty"`
	Username     *string    `json:"username,omitempty"`
	Bio          *string    `json:"bio,omitempty"`
	Link         *string    `json:"link,omitempty"`
	DOB          *time.Time `json:"dob,omitempty"`
	ProfileImage *string    `json:"profile_image,omitempty"`
	CoverImage   *string    `json:"cover_image,omitempty"`
}

// IsEmpty returns true if the update would not change anything
func (u *UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Username == nil && u.Bio == nil && u.Link == nil &&
		u.DOB == nil && u.ProfileImage == nil && u.CoverImage == nil
}

// Account links a user to an identity at a federated provider ("github", "google")
type Account struct {
	ProviderID        string    `json:"provider_id"`
	ProviderAccountID string    `json:"provider_account_id"`
	UserID            string    `json:"user_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// Session is a server side login session. The ID is the bearer value carried
// in the session cookie.
type Session struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ActiveExpiresAt time.Time `json:"active_expires_at"`
	IdleExpiresAt   time.Time `json:"idle_expires_at"`

	// Fresh is set when the session was created or rotated by the call that
	// returned it, and the caller must (re)send the session cookie.
	Fresh bool `json:"-"`
}

// IsActive returns true if the session is within its active period at now
func (s *Session) IsActive(now time.Time) bool {
	return now.Before(s.ActiveExpiresAt)
}

// IsDead returns true if both the active and idle periods have passed
func (s *Session) IsDead(now time.Time) bool {
	return !now.Before(s.IdleExpiresAt)
}

// EmailVerificationToken is an outstanding email verification code
type EmailVerificationToken struct {
	ID        string    `json:"id"`
	Code      string    `json:"-"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordResetToken is an outstanding password reset request. Only the
// SHA-256 hash of the token handed to the user is stored.
type PasswordResetToken struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserStore manages user records
type UserStore interface {
	// CreateUser inserts a new user. Returns ErrConstraintViolation if the email is taken.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID returns ErrNotFound if no such user exists
	GetUserByID(ctx context.Context, userID string) (*User, error)

	// GetUserByEmail returns ErrNotFound if no such user exists
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers returns users ordered by creation time
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)

	// UpdateUser applies a profile update
	UpdateUser(ctx context.Context, userID string, update *UserUpdate) error

	// SetPasswordHash replaces the user's password hash
	SetPasswordHash(ctx context.Context, userID string, passwordHash string) error

	// MarkEmailVerified sets the user's email verified flag
	MarkEmailVerified(ctx context.Context, userID string) error

	// DeleteUser removes the user and everything owned by it
	DeleteUser(ctx context.Context, userID string) error
}

// AccountStore manages federated identity links
type AccountStore interface {
	// GetAccount returns ErrNotFound if the provider identity is not linked
	GetAccount(ctx context.Context, providerID, providerAccountID string) (*Account, error)

	// CreateAccount links a provider identity. Returns ErrConstraintViolation if already linked.
	CreateAccount(ctx context.Context, account *Account) error
}

// SessionStore manages login sessions
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error

	// GetSession returns ErrNotFound for unknown ids
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// DeleteSession is a no-op if the session does not exist
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteUserSessions removes every session owned by the user
	DeleteUserSessions(ctx context.Context, userID string) error

	// DeleteExpiredSessions removes sessions whose idle period ended before now
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// TokenStore manages single use email verification and password reset tokens
type TokenStore interface {
	CreateEmailVerificationToken(ctx context.Context, token *EmailVerificationToken) error
	GetEmailVerificationTokenByCode(ctx context.Context, code string) (*EmailVerificationToken, error)
	DeleteEmailVerificationTokens(ctx context.Context, userID string) error

	CreatePasswordResetToken(ctx context.Context, token *PasswordResetToken) error
	GetPasswordResetTokenByHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)
	DeletePasswordResetTokens(ctx context.Context, userID string) error
}

// Store is the credential store: persistence only, no policy.
type Store interface {
	UserStore
	AccountStore
	SessionStore
	TokenStore

	// Transaction runs fn against a Store bound to a single database
	// transaction. The transaction commits if fn returns nil and rolls back
	// otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
