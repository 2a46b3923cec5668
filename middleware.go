package identity

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type sessionContextKey struct{}

// Middleware guards protected routes. It distinguishes "not logged in"
// (redirect to the login page with a callbackURL back here) from "logged in
// but not permitted" (403), and the two must never be presented
// identically.
type Middleware struct {
	Session *SessionManager

	// LoginURL is where anonymous callers are sent. Defaults to
	// "/auth/login".
	LoginURL string

	// CallbackURLParam carries the original path on the login redirect.
	// Defaults to "callbackURL".
	CallbackURLParam string
}

// EnsureReasonableDefaults fills in zero-valued config fields.
func (m *Middleware) EnsureReasonableDefaults() {
	if m.LoginURL == "" {
		m.LoginURL = "/auth/login"
	}
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
}

// ExtractUser loads the current session (if any) into the request context
// for downstream handlers. It never rejects; use RequireUser or RequireRole
// to enforce.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := m.Session.Current(r); sess != nil {
			r = r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser enforces that a session exists, redirecting anonymous callers
// to the login page with the original URL as the callback.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.Session.Current(r)
		if sess == nil {
			m.redirectToLogin(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess)))
	})
}

// RequireRole enforces that the session's role claims include role before
// any body logic runs. Anonymous callers get the login redirect;
// authenticated callers without the role get a 403.
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := m.Session.Current(r)
			if sess == nil {
				m.redirectToLogin(w, r)
				return
			}
			if !sess.HasRole(role) {
				renderPage(w, http.StatusForbidden, "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess)))
		})
	}
}

func (m *Middleware) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	// Keep the query string so the caller lands back on the exact URL.
	originalURL := r.URL.RequestURI()
	encodedURL := strings.Replace(url.QueryEscape(originalURL), "+", "%20", -1)
	http.Redirect(w, r, m.LoginURL+"?"+m.CallbackURLParam+"="+encodedURL, http.StatusFound)
}

// SessionFromContext returns the session a Middleware guard stashed on the
// request, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
