package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// ProfileFetcher loads the user's profile from the provider using an access token
type ProfileFetcher func(ctx context.Context, token *oauth2.Token) (*UserInfo, error)

// BaseOAuth2 implements the authorization code flow shared by all providers:
// state and PKCE cookies, code exchange and the profile request. Concrete
// providers supply the endpoint and the profile decoding.
type BaseOAuth2 struct {
	ProviderName string
	Config       oauth2.Config

	// UserInfoURL is the profile endpoint. Can be overridden for testing.
	UserInfoURL string

	// PKCE enables an S256 code challenge bound to a verifier cookie
	PKCE bool

	// CookieSecure marks the flow cookies Secure. Set in production.
	CookieSecure bool

	// HTTPClient is used for the token exchange and profile requests.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	fetchProfile ProfileFetcher
}

func NewBaseOAuth2(name string, clientID string, clientSecret string, callbackURL string) *BaseOAuth2 {
	return &BaseOAuth2{
		ProviderName: name,
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
		},
	}
}

func (b *BaseOAuth2) Name() string {
	return b.ProviderName
}

// StateCookieName is the cookie holding the CSRF state for this provider
func (b *BaseOAuth2) StateCookieName() string {
	return b.ProviderName + "_oauth_state"
}

// VerifierCookieName is the cookie holding the PKCE code verifier for this provider
func (b *BaseOAuth2) VerifierCookieName() string {
	return b.ProviderName + "_code_verifier"
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

// ExchangeContext returns a context carrying the HTTP client for x/oauth2
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.getHTTPClient())
}

func (b *BaseOAuth2) flowCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     callbackPath(b.Config.RedirectURL),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (b *BaseOAuth2) BeginAuthorization(w http.ResponseWriter) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, b.flowCookie(b.StateCookieName(), state, FlowCookieMaxAge))

	var opts []oauth2.AuthCodeOption
	if b.PKCE {
		verifier := oauth2.GenerateVerifier()
		http.SetCookie(w, b.flowCookie(b.VerifierCookieName(), verifier, FlowCookieMaxAge))
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return b.Config.AuthCodeURL(state, opts...), nil
}

func (b *BaseOAuth2) CompleteAuthorization(ctx context.Context, w http.ResponseWriter, r *http.Request) (*UserInfo, error) {
	stateCookie, _ := r.Cookie(b.StateCookieName())
	verifierCookie, _ := r.Cookie(b.VerifierCookieName())

	// flow cookies are single use whatever the outcome
	http.SetCookie(w, b.flowCookie(b.StateCookieName(), "", -1))
	if b.PKCE {
		http.SetCookie(w, b.flowCookie(b.VerifierCookieName(), "", -1))
	}

	state := r.URL.Query().Get("state")
	if stateCookie == nil || stateCookie.Value == "" || state == "" || state != stateCookie.Value {
		return nil, ErrStateMismatch
	}
	var opts []oauth2.AuthCodeOption
	if b.PKCE {
		if verifierCookie == nil || verifierCookie.Value == "" {
			return nil, ErrStateMismatch
		}
		opts = append(opts, oauth2.VerifierOption(verifierCookie.Value))
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, &ProviderError{Provider: b.ProviderName, Op: "exchange", Err: fmt.Errorf("missing authorization code")}
	}
	token, err := b.Config.Exchange(b.ExchangeContext(ctx), code, opts...)
	if err != nil {
		return nil, &ProviderError{Provider: b.ProviderName, Op: "exchange", Err: err}
	}

	if b.fetchProfile == nil {
		return nil, &ProviderError{Provider: b.ProviderName, Op: "profile", Err: fmt.Errorf("no profile fetcher configured")}
	}
	info, err := b.fetchProfile(ctx, token)
	if err != nil {
		return nil, &ProviderError{Provider: b.ProviderName, Op: "profile", Err: err}
	}
	if info.ProviderAccountID == "" || info.Email == "" {
		return nil, &ProviderError{Provider: b.ProviderName, Op: "profile", Err: fmt.Errorf("profile is missing id or email")}
	}
	return info, nil
}

// getJSON issues an authenticated GET and decodes the JSON body into out
func (b *BaseOAuth2) getJSON(ctx context.Context, token *oauth2.Token, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	response, err := b.getHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed getting %s: %w", url, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
