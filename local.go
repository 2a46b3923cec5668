package identity

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Allows local email/password based authentication.
type LocalAuth struct {
	// Credential store handling creation and verification
	Store Store

	// Establishes sessions on success
	Session *SessionManager

	// Where successful flows land. Defaults to "/".
	HomeURL string

	// External provider names offered on the login page
	Providers func() []string

	// Form field names
	EmailField      string
	PasswordField   string
	RememberMeField string
}

func (a *LocalAuth) homeURL() string {
	if a.HomeURL != "" {
		return a.HomeURL
	}
	return "/"
}

func (a *LocalAuth) getEmailField() string {
	if a.EmailField != "" {
		return a.EmailField
	}
	return "email"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) getRememberMeField() string {
	if a.RememberMeField != "" {
		return a.RememberMeField
	}
	return "rememberMe"
}

func (a *LocalAuth) providerNames() []string {
	if a.Providers == nil {
		return nil
	}
	return a.Providers()
}

// HandleRegisterForm renders the registration form (GET).
func (a *LocalAuth) HandleRegisterForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, "register", &registerData{})
}

// HandleRegister processes a registration (POST). A created user is signed
// in immediately with a persistent session; there is no email-verification
// step. On rejection the form is re-rendered with every reason the store
// reported.
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	email, password, _, authErrs := a.parseCredentials(r)
	if len(authErrs) > 0 {
		reasons := make([]string, 0, len(authErrs))
		for _, ae := range authErrs {
			reasons = append(reasons, ae.Message)
		}
		renderPage(w, http.StatusBadRequest, "register", &registerData{Email: email, Errors: reasons})
		return
	}

	user, err := a.Store.CreateUser(email, password)
	if err != nil {
		log.Println("error creating user: ", err)
		renderPage(w, http.StatusBadRequest, "register", &registerData{
			Email:  email,
			Errors: CredentialReasons(err),
		})
		return
	}

	if err := a.Session.SignIn(w, r, user, true, "local"); err != nil {
		http.Error(w, "Error establishing session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, a.homeURL(), http.StatusFound)
}

// HandleLoginForm renders the login form (GET). The optional message query
// parameter is the shared failure-display surface the external flow funnels
// into.
func (a *LocalAuth) HandleLoginForm(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, "login", &loginData{
		Message:     r.URL.Query().Get("message"),
		CallbackURL: r.URL.Query().Get("callbackURL"),
		Providers:   a.providerNames(),
	})
}

// HandleLogin processes a password login (POST). Credential verification is
// delegated to the store with no lockout counter; every failure collapses
// into one generic message so the caller cannot probe which emails exist.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email, password, rememberMe, authErrs := a.parseCredentials(r)
	if len(authErrs) > 0 {
		reasons := make([]string, 0, len(authErrs))
		for _, ae := range authErrs {
			reasons = append(reasons, ae.Message)
		}
		renderPage(w, http.StatusBadRequest, "login", &loginData{
			Email:     email,
			Errors:    reasons,
			Providers: a.providerNames(),
		})
		return
	}

	user, err := a.Store.VerifyPassword(email, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			log.Println("error verifying credentials: ", err)
		}
		renderPage(w, http.StatusUnauthorized, "login", &loginData{
			Email:     email,
			Errors:    []string{"Incorrect username or password."},
			Providers: a.providerNames(),
		})
		return
	}

	if err := a.Session.SignIn(w, r, user, rememberMe, "local"); err != nil {
		http.Error(w, "Error establishing session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, localRedirect(r.URL.Query().Get("callbackURL"), a.homeURL()), http.StatusFound)
}

// HandleLogout destroys the current session and redirects to the anonymous
// landing page. Always succeeds, with or without an active session.
func (a *LocalAuth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	a.Session.SignOut(w, r)
	http.Redirect(w, r, a.homeURL(), http.StatusFound)
}

// parseCredentials parses and validates the login/register form. Validation
// errors are aggregated, not first-stop: the form re-render shows all of
// them at once.
func (a *LocalAuth) parseCredentials(r *http.Request) (email, password string, rememberMe bool, errs []*AuthError) {
	if err := r.ParseForm(); err != nil {
		return "", "", false, []*AuthError{NewAuthError(ErrCodeMissingField, "Error parsing form", "")}
	}
	email = strings.TrimSpace(r.FormValue(a.getEmailField()))
	password = r.FormValue(a.getPasswordField())
	rememberMe = r.FormValue(a.getRememberMeField()) != ""

	if email == "" {
		errs = append(errs, NewAuthError(ErrCodeMissingField, "The Email field is required.", "email"))
	} else if !emailRegex.MatchString(email) {
		errs = append(errs, NewAuthError(ErrCodeInvalidEmail, "The Email field is not a valid e-mail address.", "email"))
	}
	if password == "" {
		errs = append(errs, NewAuthError(ErrCodeMissingField, "The Password field is required.", "password"))
	}
	return email, password, rememberMe, errs
}

// localRedirect keeps post-auth redirects on this host. Anything that is
// not a plain local path falls back to def.
func localRedirect(target, def string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return def
	}
	return target
}
