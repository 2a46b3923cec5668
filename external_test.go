package identity_test

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/taskora/identity"
	"github.com/taskora/identity/stores/memory"
)

// fakeProvider is a canned external identity provider: Challenge redirects
// to a fixed authorize URL and Exchange returns whatever the test staged.
type fakeProvider struct {
	name     string
	identity *identity.ProviderIdentity
	err      error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Challenge(w http.ResponseWriter, r *http.Request, callbackURL string) {
	http.Redirect(w, r, "https://provider.example/authorize?redirect_uri="+url.QueryEscape(callbackURL), http.StatusFound)
}

func (p *fakeProvider) Exchange(r *http.Request) (*identity.ProviderIdentity, error) {
	return p.identity, p.err
}

func setupExternalApp(t *testing.T, p *fakeProvider) (*identity.App, *memory.Store) {
	t.Helper()
	app, store := setupTestApp(t)
	app.External.Register(p)
	return app, store
}

// loginMessage extracts the message carried on a redirect to the login page.
func loginMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("Bad redirect location: %v", err)
	}
	if loc.Path != "/auth/login" {
		t.Fatalf("Expected redirect to the login page, got %s", loc.Path)
	}
	return loc.Query().Get("message")
}

// =============================================================================
// Challenge
// =============================================================================

func TestExternalStartRedirectsToProvider(t *testing.T) {
	app, _ := setupExternalApp(t, &fakeProvider{name: "fake"})
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/fake?returnUrl=%2Ftasks")
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "https://provider.example/authorize") {
		t.Errorf("Expected redirect to the provider, got %s", loc)
	}
	if !strings.Contains(loc, url.QueryEscape("/auth/external/fake/callback")) {
		t.Errorf("Expected the callback URL in the challenge, got %s", loc)
	}
}

func TestExternalStartUnknownProvider(t *testing.T) {
	app, _ := setupExternalApp(t, &fakeProvider{name: "fake"})
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/nope")
	resp.Body.Close()

	if msg := loginMessage(t, resp); !strings.Contains(msg, "Unknown external provider") {
		t.Errorf("Expected unknown-provider message, got %q", msg)
	}
}

// =============================================================================
// Callback state machine
// =============================================================================

func TestCallbackRemoteErrorPassedThrough(t *testing.T) {
	app, store := setupExternalApp(t, &fakeProvider{name: "fake"})
	ts, client := newTestClient(t, app)

	// The provider-reported error string lands in the message slot without
	// being rephrased.
	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?error=access_denied")
	resp.Body.Close()

	if msg := loginMessage(t, resp); msg != "access_denied" {
		t.Errorf("Expected message %q, got %q", "access_denied", msg)
	}
	users, _ := store.ListUsers()
	if len(users) != 0 {
		t.Errorf("Expected no users created, got %d", len(users))
	}
}

func TestCallbackExchangeFailure(t *testing.T) {
	app, _ := setupExternalApp(t, &fakeProvider{name: "fake", err: errors.New("token exchange failed")})
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()

	if msg := loginMessage(t, resp); msg != "Error loading external login data" {
		t.Errorf("Expected exchange-failure message, got %q", msg)
	}
}

func TestCallbackCreatesNewFederatedUser(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-123",
			Claims:     map[string]string{"email": "heidi@example.com"},
		},
	}
	app, store := setupExternalApp(t, p)
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Expected redirect to /, got %s", loc)
	}

	// Exactly one user, linked to exactly this provider pair, and already
	// signed in.
	users, _ := store.ListUsers()
	if len(users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(users))
	}
	user, err := store.FindByExternalLogin("fake", "subject-123")
	if err != nil {
		t.Fatalf("Expected linked user, got %v", err)
	}
	if user.Email != "heidi@example.com" {
		t.Errorf("Expected email from the provider claim, got %s", user.Email)
	}

	body := readBody(t, getPath(t, client, ts.URL+"/"))
	if !strings.Contains(body, "heidi@example.com") {
		t.Error("Expected the federated user to be signed in")
	}
}

func TestCallbackReturningFederatedUser(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-456",
			Claims:     map[string]string{"email": "ivan@example.com"},
		},
	}
	app, store := setupExternalApp(t, p)
	ts, client := newTestClient(t, app)

	// External-only account, already linked. No password involved anywhere.
	user, err := store.CreateUser("ivan@example.com", "")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := store.AddExternalLogin(user.ID, "fake", "subject-456"); err != nil {
		t.Fatalf("AddExternalLogin failed: %v", err)
	}

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}

	users, _ := store.ListUsers()
	if len(users) != 1 {
		t.Errorf("Expected no second user, got %d", len(users))
	}
	body := readBody(t, getPath(t, client, ts.URL+"/"))
	if !strings.Contains(body, "ivan@example.com") {
		t.Error("Expected the returning user to be signed in")
	}
}

func TestCallbackMissingEmailClaim(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-789",
		},
	}
	app, store := setupExternalApp(t, p)
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()

	if msg := loginMessage(t, resp); msg != "Error reading the user's email from the provider" {
		t.Errorf("Expected missing-email message, got %q", msg)
	}
	users, _ := store.ListUsers()
	if len(users) != 0 {
		t.Errorf("Expected no users created, got %d", len(users))
	}
}

func TestCallbackEmailAlreadyTaken(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-999",
			Claims:     map[string]string{"email": "judy@example.com"},
		},
	}
	app, store := setupExternalApp(t, p)
	ts, client := newTestClient(t, app)

	if _, err := store.CreateUser("judy@example.com", "password123"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()

	if msg := loginMessage(t, resp); !strings.Contains(msg, "already taken") {
		t.Errorf("Expected duplicate-email reason, got %q", msg)
	}
}

// emptyReasonStore rejects every creation with a CredentialError carrying
// no reasons, as a third-party Store implementation is free to do.
type emptyReasonStore struct {
	identity.Store
}

func (s *emptyReasonStore) CreateUser(email, password string) (*identity.User, error) {
	return nil, &identity.CredentialError{}
}

func TestCallbackCreateFailureWithoutReasons(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-333",
			Claims:     map[string]string{"email": "nora@example.com"},
		},
	}
	app := identity.NewApp(&emptyReasonStore{Store: memory.New()}, identity.NewSessionManager(testJWTSecret))
	app.External.Register(p)
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()

	if msg := loginMessage(t, resp); msg != "Error creating the user account" {
		t.Errorf("Expected the fallback creation-failure message, got %q", msg)
	}
}

// failLinkStore forces the association attach to fail after user creation
// succeeded.
type failLinkStore struct {
	identity.Store
}

func (s *failLinkStore) AddExternalLogin(userID, provider, subjectKey string) error {
	return errors.New("storage unavailable")
}

func TestCallbackLinkFailureLeavesUserBehind(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-000",
			Claims:     map[string]string{"email": "kim@example.com"},
		},
	}
	inner := memory.New()
	app := identity.NewApp(&failLinkStore{Store: inner}, identity.NewSessionManager(testJWTSecret))
	app.External.Register(p)
	ts, client := newTestClient(t, app)

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()

	if msg := loginMessage(t, resp); msg != "There was an error adding the login." {
		t.Errorf("Expected link-failure message, got %q", msg)
	}

	// The created user is not rolled back: the record stays, unlinked, and
	// no session was established.
	if _, err := inner.FindByEmail("kim@example.com"); err != nil {
		t.Errorf("Expected the user record to remain, got %v", err)
	}
	if _, err := inner.FindByExternalLogin("fake", "subject-000"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("Expected no association, got %v", err)
	}
	body := readBody(t, getPath(t, client, ts.URL+"/"))
	if strings.Contains(body, "kim@example.com") {
		t.Error("Expected no session after the link failure")
	}
}

func TestCallbackHonorsReturnURL(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-111",
			Claims:     map[string]string{"email": "leo@example.com"},
		},
	}
	app, _ := setupExternalApp(t, p)
	ts, client := newTestClient(t, app)

	tests := []struct {
		name      string
		returnURL string
		want      string
	}{
		{"local path", "%2Ftasks", "/tasks"},
		{"offsite rejected", "https%3A%2F%2Fevil.example", "/"},
		{"protocol-relative rejected", "%2F%2Fevil.example", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc&returnUrl="+tt.returnURL)
			resp.Body.Close()
			if loc := resp.Header.Get("Location"); loc != tt.want {
				t.Errorf("Expected redirect to %s, got %s", tt.want, loc)
			}
		})
	}
}

func TestReturnURLSurvivesProviderRoundTrip(t *testing.T) {
	p := &fakeProvider{
		name: "fake",
		identity: &identity.ProviderIdentity{
			Provider:   "fake",
			SubjectKey: "subject-222",
			Claims:     map[string]string{"email": "mia@example.com"},
		},
	}
	app, _ := setupExternalApp(t, p)
	ts, client := newTestClient(t, app)

	// Start stashes the returnUrl in a cookie; a callback without the query
	// parameter still lands on it.
	getPath(t, client, ts.URL+"/auth/external/fake?returnUrl=%2Ftasks").Body.Close()

	resp := getPath(t, client, ts.URL+"/auth/external/fake/callback?code=abc")
	resp.Body.Close()
	if loc := resp.Header.Get("Location"); loc != "/tasks" {
		t.Errorf("Expected redirect to /tasks via the stashed returnUrl, got %s", loc)
	}
}
