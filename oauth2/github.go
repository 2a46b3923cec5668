package oauth2

import (
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GithubOAuth2 is the GitHub external-login provider.
//
// GitHub only includes an email in the userinfo document when the user has
// a public email; accounts without one end the flow on the missing-email
// failure path, which is the documented behavior, not a bug.
type GithubOAuth2 struct {
	*BaseOAuth2
}

// NewGithub returns a GitHub provider. Empty arguments fall back to the
// OAUTH2_GITHUB_* environment variables.
func NewGithub(clientId, clientSecret, callbackUrl string) *GithubOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_GITHUB_CALLBACK_URL"))
	}
	return &GithubOAuth2{
		BaseOAuth2: &BaseOAuth2{
			ProviderName: "github",
			ClientId:     clientId,
			ClientSecret: clientSecret,
			UserInfoURL:  "https://api.github.com/user",
			SubjectField: "id",
			Config: oauth2.Config{
				ClientID:     clientId,
				ClientSecret: clientSecret,
				RedirectURL:  callbackUrl,
				Scopes:       []string{"read:user", "user:email"},
				Endpoint:     github.Endpoint,
			},
		},
	}
}
