package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// FlowCookieMaxAge bounds how long an authorization round trip may take, in seconds
const FlowCookieMaxAge = 600

var (
	// ErrStateMismatch is returned when the callback state does not match the
	// state cookie set when the flow began, or the flow cookies are missing.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrProvider is matched by every *ProviderError
	ErrProvider = errors.New("oauth provider error")
)

// ProviderError reports a failure talking to the provider: code exchange,
// profile fetch, or an unusable profile.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// UserInfo is the normalized profile returned by a provider
type UserInfo struct {
	ProviderAccountID string
	Email             string
	EmailVerified     bool
	Name              string
	Username          string
	AvatarURL         string
}

// Provider is an OAuth2 identity provider supporting the authorization code flow
type Provider interface {
	// Name is the provider id stored on linked accounts, e.g. "github"
	Name() string

	// BeginAuthorization sets the flow cookies on w and returns the URL the
	// user agent should be sent to.
	BeginAuthorization(w http.ResponseWriter) (string, error)

	// CompleteAuthorization checks the callback state against the flow
	// cookies, exchanges the code and fetches the user's profile.
	CompleteAuthorization(ctx context.Context, w http.ResponseWriter, r *http.Request) (*UserInfo, error)
}

// generateState returns 16 random bytes encoded as URL safe base64
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// callbackPath scopes the flow cookies to the path of the redirect URL
func callbackPath(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
