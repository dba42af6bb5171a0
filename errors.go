package sessionauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/panyam/sessionauth/oauth2"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTokenInvalid        = errors.New("token is invalid or expired")
	ErrEmailMismatch       = errors.New("token was issued for a different email")
	ErrStateMismatch       = oauth2.ErrStateMismatch
	ErrProvider            = oauth2.ErrProvider
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrUnauthorized        = errors.New("unauthorized to perform this action")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotFound            = errors.New("not found")
	ErrUnknownProvider     = errors.New("unknown oauth provider")
	ErrEmailNotVerified    = errors.New("email not verified")
)

// Error codes for AuthError
const (
	ErrCodeMissingField = "missing_field"
	ErrCodeInvalidEmail = "invalid_email"
	ErrCodeInvalidName  = "invalid_name"
	ErrCodeWeakPassword = "weak_password"
	ErrCodeInvalidBody  = "invalid_body"
)

// AuthError is a request validation failure reported back to the client
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates a new AuthError
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

// StatusCode maps an error from the auth core to the HTTP status reported to callers
func StatusCode(err error) int {
	var authErr *AuthError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &authErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrEmailMismatch), errors.Is(err, ErrStateMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, ErrConstraintViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeMessage writes the {"message": ...} body every auth endpoint responds with
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

// writeAuthError writes a validation failure with its code and field
func writeAuthError(w http.ResponseWriter, err *AuthError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"message": err.Message,
		"code":    err.Code,
		"field":   err.Field,
	})
}
