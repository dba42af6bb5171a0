package sessionauth

import (
	"errors"
	"net/http"
)

// HandleSignup registers a local user, queues the verification email and,
// unless email verification is required, logs the new user in.
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if authErr := decodeBody(r, &req); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	if authErr := req.Validate(); authErr != nil {
		writeAuthError(w, authErr)
		return
	}
	ctx := r.Context()

	if _, err := a.Store.GetUserByEmail(ctx, req.Email); err == nil {
		writeMessage(w, http.StatusConflict, "Email already registered")
		return
	} else if !errors.Is(err, ErrNotFound) {
		a.Logger.Error("signup lookup failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to create a new user")
		return
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		a.Logger.Error("password hashing failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to create a new user")
		return
	}
	user := &User{
		ID:           newRowID(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: &passwordHash,
		Role:         RoleUser,
	}
	if err := a.Store.CreateUser(ctx, user); err != nil {
		// a concurrent signup for the same email lost the unique index race
		if errors.Is(err, ErrConstraintViolation) {
			writeMessage(w, http.StatusConflict, "Email already registered")
			return
		}
		a.Logger.Error("create user failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Failed to create a new user")
		return
	}
	a.Logger.Info("created local user", "user_id", user.ID)

	// The user exists from here on; a lost verification email can be re-sent
	a.queueVerificationEmail(r, user)

	if !a.Sessions.Config.RequireEmailVerification {
		session, err := a.Sessions.CreateSession(ctx, user.ID)
		if err != nil {
			a.Logger.Error("create session failed", "error", err, "user_id", user.ID)
			writeMessage(w, http.StatusInternalServerError, "Failed to create a new user")
			return
		}
		http.SetCookie(w, a.Sessions.SessionCookie(session))
	}
	writeMessage(w, http.StatusCreated, "User created successfully")
}

// queueVerificationEmail issues a fresh code for the user and enqueues its
// delivery. Failures are logged, not returned.
func (a *LocalAuth) queueVerificationEmail(r *http.Request, user *User) bool {
	ctx := r.Context()
	code, err := a.Tokens.IssueEmailVerificationCode(ctx, user.ID, user.Email)
	if err != nil {
		a.Logger.Error("issue verification code failed", "error", err, "user_id", user.ID)
		return false
	}
	_, err = a.Queue.Enqueue(ctx, JobSendVerificationEmail, VerificationEmailJob{
		Name:  user.Name,
		Email: user.Email,
		Code:  code,
	})
	if err != nil {
		a.Logger.Error("enqueue verification email failed", "error", err, "user_id", user.ID)
		return false
	}
	return true
}
