package identity

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/gorilla/mux"
)

// returnURLCookie carries the post-login destination across the provider
// round trip.
const returnURLCookie = "externalReturnUrl"

// ProviderIdentity is the opaque identity an external provider hands back
// after user consent: the provider name, the provider-issued subject key,
// and whatever claims came with it. The "email" claim is the one the flow
// below depends on.
type ProviderIdentity struct {
	Provider   string
	SubjectKey string
	Claims     map[string]string
}

// EmailClaim returns the email claim, or "" when the provider supplied
// none.
func (p *ProviderIdentity) EmailClaim() string {
	if p.Claims == nil {
		return ""
	}
	return p.Claims["email"]
}

// Provider is one registered external identity provider. New providers
// register an implementation instead of being dispatched by name at
// runtime.
type Provider interface {
	Name() string

	// Challenge responds with the redirect directive that sends the user to
	// the provider, returning them to callbackURL after consent.
	Challenge(w http.ResponseWriter, r *http.Request, callbackURL string)

	// Exchange consumes the provider's callback request and returns the
	// identity info it carried.
	Exchange(r *http.Request) (*ProviderIdentity, error)
}

// ExternalAuth orchestrates federated login: redirect to the provider,
// receive the callback, then resolve the identity to an existing linked
// account, an existing-but-unlinked account, or a brand-new account, and
// establish a session.
//
// Every failure funnels to the login page with a human-readable message
// rather than a distinct error page.
type ExternalAuth struct {
	Store   Store
	Session *SessionManager

	// LoginURL is the shared failure-display surface. Defaults to
	// "/auth/login".
	LoginURL string

	// PathPrefix is where HandleStart/HandleCallback are mounted; used to
	// build the callback URL handed to the provider. Defaults to
	// "/auth/external".
	PathPrefix string

	providers map[string]Provider
}

// Register adds a provider to the registry, keyed by its name.
func (a *ExternalAuth) Register(p Provider) {
	if a.providers == nil {
		a.providers = map[string]Provider{}
	}
	a.providers[p.Name()] = p
}

// ProviderNames returns the registered provider names, sorted.
func (a *ExternalAuth) ProviderNames() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *ExternalAuth) loginURL() string {
	if a.LoginURL != "" {
		return a.LoginURL
	}
	return "/auth/login"
}

func (a *ExternalAuth) pathPrefix() string {
	if a.PathPrefix != "" {
		return a.PathPrefix
	}
	return "/auth/external"
}

// HandleStart initiates a federated login: it builds a callback URL that
// embeds returnUrl and asks the provider for its redirect challenge. No
// local state is kept at this step.
func (a *ExternalAuth) HandleStart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	p, ok := a.providers[name]
	if !ok {
		a.fail(w, r, fmt.Sprintf("Unknown external provider: %s", name))
		return
	}

	callbackURL := fmt.Sprintf("%s/%s/callback", a.pathPrefix(), name)
	if returnURL := r.URL.Query().Get("returnUrl"); returnURL != "" {
		callbackURL += "?returnUrl=" + url.QueryEscape(returnURL)
		// Providers that redirect to a fixed registered callback drop the
		// query string, so the returnUrl also rides a short-lived cookie.
		http.SetCookie(w, &http.Cookie{
			Name:   returnURLCookie,
			Value:  returnURL,
			Path:   "/",
			MaxAge: 120, // keep this short
		})
	}
	p.Challenge(w, r, callbackURL)
}

// HandleCallback receives the provider callback and walks the login
// attempt to a terminal state:
//
//	remote error reported        -> login page with that message
//	no identity info             -> login page, "Error loading external login data"
//	pair already linked          -> sign in directly, redirect to returnUrl
//	no email claim               -> login page, "Error reading the user's email from the provider"
//	user creation rejected       -> login page with the first reported reason
//	association attach failed    -> login page, "There was an error adding the login."
//	created and linked           -> sign in, redirect to returnUrl
//
// When the association attach fails the user record created just before is
// deliberately left in place; a later attempt with the same email runs into
// the store's duplicate-email constraint.
func (a *ExternalAuth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["provider"]
	returnURL := r.URL.Query().Get("returnUrl")
	if cookie, _ := r.Cookie(returnURLCookie); cookie != nil {
		if returnURL == "" {
			returnURL = cookie.Value
		}
		// used once, then gone
		http.SetCookie(w, &http.Cookie{Name: returnURLCookie, Path: "/", MaxAge: -1})
	}
	returnURL = localRedirect(returnURL, "/")

	remoteError := r.URL.Query().Get("error")
	if remoteError == "" {
		remoteError = r.URL.Query().Get("remoteError")
	}
	if remoteError != "" {
		a.fail(w, r, remoteError)
		return
	}

	p, ok := a.providers[name]
	if !ok {
		a.fail(w, r, fmt.Sprintf("Unknown external provider: %s", name))
		return
	}

	info, err := p.Exchange(r)
	if err != nil || info == nil {
		if err != nil {
			log.Println("error exchanging provider callback: ", err)
		}
		a.fail(w, r, "Error loading external login data")
		return
	}

	// The common returning-federated-user path: the pair is already linked,
	// sign in directly without touching any password.
	user, err := a.Store.FindByExternalLogin(info.Provider, info.SubjectKey)
	if err == nil {
		a.signInAndRedirect(w, r, user, info.Provider, returnURL)
		return
	}
	if !errors.Is(err, ErrUserNotFound) {
		slog.Warn("error resolving external login", "provider", info.Provider, "err", err)
	}

	email := info.EmailClaim()
	if email == "" {
		a.fail(w, r, "Error reading the user's email from the provider")
		return
	}

	// External-only account: no local credential is set.
	user, err = a.Store.CreateUser(email, "")
	if err != nil {
		// A store may return a CredentialError with no reasons attached.
		message := "Error creating the user account"
		if reasons := CredentialReasons(err); len(reasons) > 0 {
			message = reasons[0]
		}
		a.fail(w, r, message)
		return
	}

	if err := a.Store.AddExternalLogin(user.ID, info.Provider, info.SubjectKey); err != nil {
		// The user created above is not rolled back.
		log.Println("error adding external login: ", err)
		a.fail(w, r, "There was an error adding the login.")
		return
	}

	a.signInAndRedirect(w, r, user, info.Provider, returnURL)
}

func (a *ExternalAuth) signInAndRedirect(w http.ResponseWriter, r *http.Request, user *User, method, returnURL string) {
	if err := a.Session.SignIn(w, r, user, true, method); err != nil {
		http.Error(w, "Error establishing session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, returnURL, http.StatusFound)
}

// fail redirects to the login page carrying message in its message slot.
func (a *ExternalAuth) fail(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, a.loginURL()+"?message="+url.QueryEscape(message), http.StatusFound)
}
