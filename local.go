package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// LocalAuth serves the email/password and OAuth login endpoints under /auth
type LocalAuth struct {
	Store    Store
	Sessions *SessionManager
	Tokens   *TokenIssuer
	OAuth    *OAuthFlow
	Queue    Enqueuer
	Logger   *slog.Logger
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.HandleLogin(w, r)
}

// Authenticate checks an email and password pair. Unknown emails, OAuth-only
// users and wrong passwords all yield ErrInvalidCredentials. When email
// verification is required an unverified user yields ErrEmailNotVerified.
func (a *LocalAuth) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := a.Store.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.HasPassword() || !CheckPassword(*user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if a.Sessions.Config.RequireEmailVerification && !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	return user, nil
}

// HandleLogin checks email and password and starts a session
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if authErr := decodeBody(r, &req); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	if authErr := req.Validate(); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	ctx := r.Context()

	user, err := a.Authenticate(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeMessage(w, StatusCode(err), "Invalid email or password")
		return
	case errors.Is(err, ErrEmailNotVerified):
		writeMessage(w, StatusCode(err), "Email not verified")
		return
	case err != nil:
		a.Logger.Error("login lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	session, err := a.Sessions.CreateSession(ctx, user.ID)
	if err != nil {
		a.Logger.Error("create session failed", "error", err, "user_id", user.ID)
		writeMessage(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}
	http.SetCookie(w, a.Sessions.SessionCookie(session))
	writeMessage(w, http.StatusOK, "Signed in successfully")
}

// HandleLogout invalidates the session carried by the request
func (a *LocalAuth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := a.Sessions.SessionIDFromRequest(r)
	if sessionID == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}
	ctx := r.Context()

	if err := a.Sessions.InvalidateSession(ctx, sessionID); err != nil {
		a.Logger.Error("invalidate session failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	// the middleware may have rotated the cookie's session on this request
	if current := SessionFromContext(ctx); current != nil && current.ID != sessionID {
		if err := a.Sessions.InvalidateSession(ctx, current.ID); err != nil {
			a.Logger.Error("invalidate session failed", "error", err)
			writeMessage(w, http.StatusInternalServerError, "Failed to log out")
			return
		}
	}
	http.SetCookie(w, a.Sessions.BlankSessionCookie())
	writeMessage(w, http.StatusOK, "Log out successfully")
}

// HandleVerifyEmail consumes the verification code from the query string
func (a *LocalAuth) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid request")
		return
	}

	session, err := a.Tokens.VerifyEmail(r.Context(), code)
	switch {
	case errors.Is(err, ErrTokenInvalid):
		writeMessage(w, http.StatusBadRequest, "Invalid or expired code")
		return
	case errors.Is(err, ErrEmailMismatch):
		writeMessage(w, http.StatusBadRequest, "Unauthorized to verify this email")
		return
	case err != nil:
		a.Logger.Error("verify email failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to verify email")
		return
	}
	http.SetCookie(w, a.Sessions.SessionCookie(session))
	writeMessage(w, http.StatusOK, "Email verified successfully")
}

// HandleResendVerification re-issues the verification code for the logged in user
func (a *LocalAuth) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	if user.EmailVerified {
		writeMessage(w, http.StatusOK, "Email already verified")
		return
	}
	if !a.queueVerificationEmail(r, user) {
		writeMessage(w, http.StatusInternalServerError, "Failed to send verification email")
		return
	}
	writeMessage(w, http.StatusOK, "Sent verification email successfully")
}

// HandleRequestPasswordReset queues a reset email for a verified address
func (a *LocalAuth) HandleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if authErr := decodeBody(r, &req); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	email := NormalizeEmail(req.Email)
	if authErr := validateEmail(email); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	ctx := r.Context()

	user, err := a.Store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		a.Logger.Error("reset lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to send password reset email")
		return
	}
	if user == nil || !user.EmailVerified {
		writeMessage(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	token, err := a.Tokens.IssuePasswordResetToken(ctx, user.ID)
	if err != nil {
		a.Logger.Error("issue reset token failed", "error", err, "user_id", user.ID)
		writeMessage(w, http.StatusInternalServerError, "Failed to send password reset email")
		return
	}
	_, err = a.Queue.Enqueue(ctx, JobSendPasswordResetEmail, PasswordResetEmailJob{
		Name:  user.Name,
		Email: user.Email,
		Token: token,
	})
	if err != nil {
		a.Logger.Error("enqueue reset email failed", "error", err, "user_id", user.ID)
		writeMessage(w, http.StatusInternalServerError, "Failed to send password reset email")
		return
	}
	writeMessage(w, http.StatusOK, "Sent password reset email successfully")
}

// HandleResetPassword sets a new password using the token from the path
func (a *LocalAuth) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req NewPasswordRequest
	if authErr := decodeBody(r, &req); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	if authErr := validatePassword(req.Password); authErr != nil {
		writeAuthError(w, authErr)
		return
	}

	session, err := a.Tokens.ConsumePasswordResetToken(r.Context(), token, req.Password)
	if errors.Is(err, ErrTokenInvalid) {
		writeMessage(w, http.StatusBadRequest, "Invalid or expired token")
		return
	} else if err != nil {
		a.Logger.Error("reset password failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to update password")
		return
	}
	http.SetCookie(w, a.Sessions.SessionCookie(session))
	writeMessage(w, http.StatusOK, "Password update successfully")
}

// HandleOAuthLogin starts the authorization code flow for the provider in the path
func (a *LocalAuth) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	redirectURL, err := a.OAuth.BeginAuthorization(w, provider)
	if errors.Is(err, ErrUnknownProvider) {
		writeMessage(w, http.StatusNotFound, "Unknown provider")
		return
	} else if err != nil {
		a.Logger.Error("oauth begin failed", "error", err, "provider", provider)
		writeMessage(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Redirect to " + provider + " successfully",
		"redirect_url": redirectURL,
	})
}

// HandleOAuthCallback completes the flow and starts a session
func (a *LocalAuth) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	session, err := a.OAuth.CompleteAuthorization(r.Context(), w, r, provider)
	switch {
	case errors.Is(err, ErrUnknownProvider):
		writeMessage(w, http.StatusNotFound, "Unknown provider")
		return
	case errors.Is(err, ErrStateMismatch):
		writeMessage(w, http.StatusBadRequest, "Invalid state")
		return
	case errors.Is(err, ErrConstraintViolation):
		writeMessage(w, http.StatusConflict, "Email already registered")
		return
	case err != nil:
		a.Logger.Error("oauth callback failed", "error", err, "provider", provider)
		writeMessage(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}
	http.SetCookie(w, a.Sessions.SessionCookie(session))
	writeMessage(w, http.StatusOK, "Signed in successfully")
}
