package oauth2

import (
	"context"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleOAuth2 struct {
	*BaseOAuth2
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string) *GoogleOAuth2 {
	if clientId == "" {
		clientId = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}

	out := &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2("google", clientId, clientSecret, callbackUrl),
	}
	out.UserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
	out.PKCE = true
	out.Config.Endpoint = google.Endpoint
	out.Config.Scopes = []string{"openid", "profile", "email"}
	out.fetchProfile = out.getUserData
	return out
}

func (g *GoogleOAuth2) getUserData(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	var user googleUser
	if err := g.getJSON(ctx, token, g.UserInfoURL, &user); err != nil {
		return nil, err
	}
	return &UserInfo{
		ProviderAccountID: user.ID,
		Email:             user.Email,
		EmailVerified:     user.VerifiedEmail,
		Name:              user.Name,
		AvatarURL:         user.Picture,
	}, nil
}
