package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default token expiry durations
const (
	TokenExpiryEmailVerification = 3 * time.Hour
	TokenExpiryPasswordReset     = 2 * time.Hour
)

// TokenIssuer generates and consumes single use email verification codes
// and password reset tokens. Issuing a token replaces any outstanding token
// of the same kind for the user.
type TokenIssuer struct {
	Store    Store
	Sessions *SessionManager
	Logger   *slog.Logger

	VerificationExpiry time.Duration
	ResetExpiry        time.Duration
}

// NewTokenIssuer creates a TokenIssuer with the default expiries
func NewTokenIssuer(store Store, sessions *SessionManager, logger *slog.Logger) *TokenIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenIssuer{
		Store:              store,
		Sessions:           sessions,
		Logger:             logger,
		VerificationExpiry: TokenExpiryEmailVerification,
		ResetExpiry:        TokenExpiryPasswordReset,
	}
}

// IssueEmailVerificationCode replaces the user's outstanding verification
// code with a new one bound to email and returns it in plaintext.
func (t *TokenIssuer) IssueEmailVerificationCode(ctx context.Context, userID, email string) (string, error) {
	code, err := GenerateVerificationCode()
	if err != nil {
		return "", err
	}
	token := &EmailVerificationToken{
		ID:        newRowID(),
		Code:      code,
		UserID:    userID,
		Email:     email,
		ExpiresAt: t.Sessions.now().Add(t.VerificationExpiry),
	}
	err = t.Store.Transaction(ctx, func(tx Store) error {
		if err := tx.DeleteEmailVerificationTokens(ctx, userID); err != nil {
			return err
		}
		return tx.CreateEmailVerificationToken(ctx, token)
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue verification code: %w", err)
	}
	return code, nil
}

// VerifyEmail consumes a verification code. On success the user's email is
// marked verified, every existing session of the user is invalidated and a
// new session is returned.
func (t *TokenIssuer) VerifyEmail(ctx context.Context, code string) (*Session, error) {
	if code == "" {
		return nil, ErrTokenInvalid
	}

	var session *Session
	err := t.Store.Transaction(ctx, func(tx Store) error {
		token, err := tx.GetEmailVerificationTokenByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		} else if err != nil {
			return err
		}
		if !t.Sessions.now().Before(token.ExpiresAt) {
			return ErrTokenInvalid
		}

		user, err := tx.GetUserByID(ctx, token.UserID)
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		} else if err != nil {
			return err
		}
		if NormalizeEmail(user.Email) != NormalizeEmail(token.Email) {
			return ErrEmailMismatch
		}

		if err := tx.MarkEmailVerified(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.DeleteEmailVerificationTokens(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.DeleteUserSessions(ctx, user.ID); err != nil {
			return err
		}
		session, err = t.Sessions.createSession(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.Logger.Info("email verified", "user_id", session.UserID)
	return session, nil
}

// IssuePasswordResetToken replaces the user's outstanding reset token and
// returns the raw token. Only its hash is persisted.
func (t *TokenIssuer) IssuePasswordResetToken(ctx context.Context, userID string) (string, error) {
	raw, err := GenerateSecureToken(resetTokenEntropy)
	if err != nil {
		return "", err
	}
	token := &PasswordResetToken{
		ID:        newRowID(),
		TokenHash: HashToken(raw),
		UserID:    userID,
		ExpiresAt: t.Sessions.now().Add(t.ResetExpiry),
	}
	err = t.Store.Transaction(ctx, func(tx Store) error {
		if err := tx.DeletePasswordResetTokens(ctx, userID); err != nil {
			return err
		}
		return tx.CreatePasswordResetToken(ctx, token)
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue reset token: %w", err)
	}
	return raw, nil
}

// ConsumePasswordResetToken sets a new password for the token's user. All
// sessions of the user are invalidated, the token is deleted and a new
// session is returned.
func (t *TokenIssuer) ConsumePasswordResetToken(ctx context.Context, rawToken, newPassword string) (*Session, error) {
	if rawToken == "" {
		return nil, ErrTokenInvalid
	}
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	tokenHash := HashToken(rawToken)
	var session *Session
	err = t.Store.Transaction(ctx, func(tx Store) error {
		token, err := tx.GetPasswordResetTokenByHash(ctx, tokenHash)
		if errors.Is(err, ErrNotFound) {
			return ErrTokenInvalid
		} else if err != nil {
			return err
		}
		if !t.Sessions.now().Before(token.ExpiresAt) {
			return ErrTokenInvalid
		}

		if err := tx.DeleteUserSessions(ctx, token.UserID); err != nil {
			return err
		}
		if err := tx.SetPasswordHash(ctx, token.UserID, passwordHash); err != nil {
			return err
		}
		if err := tx.DeletePasswordResetTokens(ctx, token.UserID); err != nil {
			return err
		}
		session, err = t.Sessions.createSession(ctx, tx, token.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.Logger.Info("password reset", "user_id", session.UserID)
	return session, nil
}
