package sessionauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/panyam/sessionauth/oauth2"
)

// OAuthFlow resolves federated logins to local users. A provider identity
// seen for the first time provisions a new user and account link.
type OAuthFlow struct {
	Store     Store
	Sessions  *SessionManager
	Providers map[string]oauth2.Provider
	Logger    *slog.Logger
}

func NewOAuthFlow(store Store, sessions *SessionManager, logger *slog.Logger, providers ...oauth2.Provider) *OAuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	f := &OAuthFlow{
		Store:     store,
		Sessions:  sessions,
		Providers: map[string]oauth2.Provider{},
		Logger:    logger,
	}
	for _, p := range providers {
		f.Providers[p.Name()] = p
	}
	return f
}

func (f *OAuthFlow) provider(name string) (oauth2.Provider, error) {
	p, ok := f.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// BeginAuthorization sets the provider's flow cookies and returns the redirect URL
func (f *OAuthFlow) BeginAuthorization(w http.ResponseWriter, providerName string) (string, error) {
	p, err := f.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.BeginAuthorization(w)
}

// CompleteAuthorization finishes the provider callback and returns a new
// session for the linked, or newly provisioned, user.
func (f *OAuthFlow) CompleteAuthorization(ctx context.Context, w http.ResponseWriter, r *http.Request, providerName string) (*Session, error) {
	p, err := f.provider(providerName)
	if err != nil {
		return nil, err
	}
	info, err := p.CompleteAuthorization(ctx, w, r)
	if err != nil {
		return nil, err
	}

	account, err := f.Store.GetAccount(ctx, providerName, info.ProviderAccountID)
	if err == nil {
		return f.Sessions.CreateSession(ctx, account.UserID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	user, err := f.provision(ctx, providerName, info)
	if err != nil {
		return nil, err
	}
	f.Logger.Info("provisioned oauth user", "provider", providerName, "user_id", user.ID)
	return f.Sessions.CreateSession(ctx, user.ID)
}

// provision creates the user and its account link in one transaction
func (f *OAuthFlow) provision(ctx context.Context, providerName string, info *oauth2.UserInfo) (*User, error) {
	user := &User{
		ID:            newRowID(),
		Name:          info.Name,
		Email:         NormalizeEmail(info.Email),
		EmailVerified: info.EmailVerified,
		Role:          RoleUser,
	}
	if user.Name == "" {
		user.Name = info.Username
	}
	if info.Username != "" {
		user.Username = &info.Username
	}
	if info.AvatarURL != "" {
		user.ProfileImage = &info.AvatarURL
	}

	err := f.Store.Transaction(ctx, func(tx Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.CreateAccount(ctx, &Account{
			ProviderID:        providerName,
			ProviderAccountID: info.ProviderAccountID,
			UserID:            user.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision %s user: %w", providerName, err)
	}
	return user, nil
}
