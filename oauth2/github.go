package oauth2

import (
	"context"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

type GithubOAuth2 struct {
	*BaseOAuth2

	// EmailsURL lists the user's addresses when the profile email is private.
	// Can be overridden for testing.
	EmailsURL string
}

type githubUser struct {
	NodeID    string  `json:"node_id"`
	Login     string  `json:"login"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL string  `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGithubOAuth2(clientId string, clientSecret string, callbackUrl string) *GithubOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}

	out := &GithubOAuth2{
		BaseOAuth2: NewBaseOAuth2("github", clientId, clientSecret, callbackUrl),
		EmailsURL:  "https://api.github.com/user/emails",
	}
	out.UserInfoURL = "https://api.github.com/user"
	out.Config.Endpoint = github.Endpoint
	out.Config.Scopes = []string{"read:user", "user:email"}
	out.fetchProfile = out.getUserData
	return out
}

// getUserData identifies the user by node_id. The display name falls back to
// the login, and a private email is resolved through the emails endpoint.
func (g *GithubOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	var user githubUser
	if err := g.getJSON(ctx, token, g.UserInfoURL, &user); err != nil {
		return nil, err
	}

	info := &UserInfo{
		ProviderAccountID: user.NodeID,
		Name:              user.Login,
		Username:          user.Login,
		AvatarURL:         user.AvatarURL,
	}
	if user.Name != nil && *user.Name != "" {
		info.Name = *user.Name
	}

	if user.Email != nil && *user.Email != "" {
		info.Email = *user.Email
		return info, nil
	}

	var emails []githubEmail
	if err := g.getJSON(ctx, token, g.EmailsURL, &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			info.Email = e.Email
			info.EmailVerified = true
			break
		}
	}
	return info, nil
}
