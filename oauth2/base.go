// Package oauth2 provides external-login providers for the identity
// package, built on golang.org/x/oauth2. Google and GitHub come ready-made;
// any other OAuth2 provider is a BaseOAuth2 with its endpoint, scopes and
// userinfo URL filled in.
package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/taskora/identity"
)

// BaseOAuth2 implements identity.Provider for a generic OAuth2 provider
// with a JSON userinfo endpoint.
type BaseOAuth2 struct {
	ProviderName string
	ClientId     string
	ClientSecret string

	// UserInfoURL is fetched with the access token to obtain the subject
	// key and claims. Can be overridden for testing.
	UserInfoURL string

	// SubjectField is the userinfo field holding the provider-issued
	// subject key ("id" for Google and GitHub, "sub" for OIDC-shaped
	// providers).
	SubjectField string

	Config oauth2.Config

	// HTTPClient overrides the client used for userinfo fetches. Tests use
	// this; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (b *BaseOAuth2) Name() string { return b.ProviderName }

// Challenge sends the user to the provider's consent screen, pinning a
// state cookie for the round trip. When no redirect URL was configured the
// callback URL handed in by the flow is adopted for this request only; the
// shared config is never written, since callbackURL embeds per-user state
// and handlers run concurrently.
func (b *BaseOAuth2) Challenge(w http.ResponseWriter, r *http.Request, callbackURL string) {
	cfg := b.Config
	if cfg.RedirectURL == "" && callbackURL != "" {
		cfg.RedirectURL = callbackURL
	}
	state := generateStateOauthCookie(w)
	http.Redirect(w, r, cfg.AuthCodeURL(state), http.StatusFound)
}

// Exchange consumes the provider callback: it checks the state cookie,
// trades the code for a token and fetches the userinfo document.
func (b *BaseOAuth2) Exchange(r *http.Request) (*identity.ProviderIdentity, error) {
	if err := verifyStateCookie(r); err != nil {
		return nil, err
	}

	code := r.FormValue("code")
	if code == "" {
		return nil, fmt.Errorf("authorization code missing")
	}

	token, err := b.Config.Exchange(r.Context(), code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	userInfo, err := b.fetchUserInfo(token)
	if err != nil {
		return nil, err
	}

	subjectField := b.SubjectField
	if subjectField == "" {
		subjectField = "id"
	}
	subject := stringifyClaim(userInfo[subjectField])
	if subject == "" {
		return nil, fmt.Errorf("userinfo has no %q field", subjectField)
	}

	claims := map[string]string{}
	for _, key := range []string{"email", "name", "picture", "avatar_url", "login"} {
		if v := stringifyClaim(userInfo[key]); v != "" {
			claims[key] = v
		}
	}

	return &identity.ProviderIdentity{
		Provider:   b.ProviderName,
		SubjectKey: subject,
		Claims:     claims,
	}, nil
}

func (b *BaseOAuth2) fetchUserInfo(token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	client := b.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading userinfo response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", response.StatusCode)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}
