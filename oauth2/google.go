package oauth2

import (
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleOAuth2 is the Google external-login provider.
type GoogleOAuth2 struct {
	*BaseOAuth2
}

// NewGoogle returns a Google provider. Empty arguments fall back to the
// OAUTH2_GOOGLE_* environment variables.
func NewGoogle(clientId, clientSecret, callbackUrl string) *GoogleOAuth2 {
	if clientId == "" {
		clientId = os.Getenv("OAUTH2_GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("OAUTH2_GOOGLE_CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv("OAUTH2_GOOGLE_CALLBACK_URL")
	}
	return &GoogleOAuth2{
		BaseOAuth2: &BaseOAuth2{
			ProviderName: "google",
			ClientId:     clientId,
			ClientSecret: clientSecret,
			UserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
			SubjectField: "id",
			Config: oauth2.Config{
				ClientID:     clientId,
				ClientSecret: clientSecret,
				RedirectURL:  callbackUrl,
				Scopes: []string{
					"https://www.googleapis.com/auth/userinfo.email",
					"https://www.googleapis.com/auth/userinfo.profile",
				},
				Endpoint: google.Endpoint,
			},
		},
	}
}
