package sessionauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field limits for signup. Passwords are capped at the 72 bytes bcrypt hashes.
const (
	MaxNameLength     = 30
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SignupRequest is the body of POST /auth/signup
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password
type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// NewPasswordRequest is the body of POST /auth/reset-password/{token}
type NewPasswordRequest struct {
	Password string `json:"password"`
}

// Validate checks the signup fields and normalizes the email
func (s *SignupRequest) Validate() *AuthError {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = NormalizeEmail(s.Email)

	if s.Name == "" {
		return NewAuthError(ErrCodeMissingField, "Name is required", "name")
	}
	if utf8.RuneCountInString(s.Name) > MaxNameLength {
		return NewAuthError(ErrCodeInvalidName, fmt.Sprintf("Name must be at most %d characters", MaxNameLength), "name")
	}
	if authErr := validateEmail(s.Email); authErr != nil {
		return authErr
	}
	return validatePassword(s.Password)
}

// Validate checks the login fields and normalizes the email
func (l *LoginRequest) Validate() *AuthError {
	l.Email = NormalizeEmail(l.Email)
	if authErr := validateEmail(l.Email); authErr != nil {
		return authErr
	}
	if l.Password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	return nil
}

func validateEmail(email string) *AuthError {
	if email == "" {
		return NewAuthError(ErrCodeMissingField, "Email is required", "email")
	}
	if !emailRegex.MatchString(email) {
		return NewAuthError(ErrCodeInvalidEmail, "Invalid email format", "email")
	}
	return nil
}

func validatePassword(password string) *AuthError {
	if password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password")
	}
	if len(password) < MinPasswordLength {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength), "password")
	}
	if len(password) > MaxPasswordBytes {
		return NewAuthError(ErrCodeWeakPassword, fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes), "password")
	}
	return nil
}

// decodeBody decodes a JSON request body into v
func decodeBody(r *http.Request, v any) *AuthError {
	if r.Body == nil {
		return NewAuthError(ErrCodeInvalidBody, "Invalid post body", "")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewAuthError(ErrCodeInvalidBody, "Invalid post body", "")
	}
	return nil
}
