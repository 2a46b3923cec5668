package identity

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Session values are gob encoded by scs; the non-basic types stored below
// must be registered.
func init() {
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// Session is the server-issued proof of authentication for one user. Role
// claims are a snapshot taken at sign-in time and are not re-validated
// against the store on each request; role changes take effect on the next
// sign-in.
type Session struct {
	UserID     string
	Email      string
	Roles      []string
	Persistent bool
	Method     string // "local" or the external provider name
	IssuedAt   time.Time
}

// HasRole reports whether the session's role claims include role.
func (s *Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session variable keys.
const (
	sessKeyUserID     = "userID"
	sessKeyEmail      = "email"
	sessKeyRoles      = "roles"
	sessKeyMethod     = "method"
	sessKeyPersistent = "persistent"
	sessKeyIssuedAt   = "issuedAt"
)

// SessionManager establishes, restores and tears down authenticated
// sessions. State lives in an scs server-side session plus a signed JWT
// cookie, so persistent (remember-me) sessions survive a server restart.
type SessionManager struct {
	Sessions *scs.SessionManager

	// JWT signing config
	JWTSecretKey string
	JWTIssuer    string

	// Name of the auth token cookie. Defaults to "TaskoraAuthToken".
	AuthTokenCookieName string

	// Lifetime of a persistent (remember-me) session. Defaults to 30 days.
	// Non-persistent sessions use Sessions.Lifetime (24h by default) and a
	// cookie that dies with the browser.
	PersistentLifetime time.Duration
}

// NewSessionManager returns a manager with reasonable defaults. The scs
// cookie starts out non-persistent; SignIn flips persistence per login
// through RememberMe.
func NewSessionManager(jwtSecretKey string) *SessionManager {
	sessions := scs.New()
	sessions.Lifetime = 24 * time.Hour
	sessions.Cookie.Persist = false
	sessions.Cookie.SameSite = http.SameSiteLaxMode
	return (&SessionManager{
		Sessions:     sessions,
		JWTSecretKey: jwtSecretKey,
	}).EnsureDefaults()
}

// EnsureDefaults fills in zero-valued config fields.
func (m *SessionManager) EnsureDefaults() *SessionManager {
	if m.Sessions == nil {
		m.Sessions = scs.New()
		m.Sessions.Cookie.Persist = false
	}
	if m.JWTIssuer == "" {
		m.JWTIssuer = "Taskora-Issuer"
	}
	if m.AuthTokenCookieName == "" {
		m.AuthTokenCookieName = "TaskoraAuthToken"
	}
	if m.PersistentLifetime <= 0 {
		m.PersistentLifetime = 30 * 24 * time.Hour
	}
	return m
}

// LoadAndSave wraps a handler with scs session loading. Must enclose every
// route that calls SignIn, SignOut or Current.
func (m *SessionManager) LoadAndSave(next http.Handler) http.Handler {
	return m.Sessions.LoadAndSave(next)
}

// SignIn establishes a session for user. persistent controls whether it
// outlives the client runtime (remember-me); method records how the user
// authenticated ("local" or a provider name).
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, user *User, persistent bool, method string) error {
	m.EnsureDefaults()
	ctx := r.Context()

	// New token on privilege change, so an anonymous session id never
	// becomes an authenticated one.
	if err := m.Sessions.RenewToken(ctx); err != nil {
		return fmt.Errorf("error renewing session token: %w", err)
	}

	issuedAt := time.Now()
	m.Sessions.Put(ctx, sessKeyUserID, user.ID)
	m.Sessions.Put(ctx, sessKeyEmail, user.Email)
	m.Sessions.Put(ctx, sessKeyRoles, append([]string(nil), user.Roles...))
	m.Sessions.Put(ctx, sessKeyMethod, method)
	m.Sessions.Put(ctx, sessKeyPersistent, persistent)
	m.Sessions.Put(ctx, sessKeyIssuedAt, issuedAt)
	m.Sessions.RememberMe(ctx, persistent)

	tokenString, err := m.signAuthToken(user, persistent, method, issuedAt)
	if err != nil {
		return fmt.Errorf("error signing auth token: %w", err)
	}

	cookie := &http.Cookie{
		Name:     m.AuthTokenCookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = issuedAt.Add(m.PersistentLifetime)
		cookie.MaxAge = int(m.PersistentLifetime.Seconds())
	}
	http.SetCookie(w, cookie)
	return nil
}

// SignOut destroys the current session unconditionally. Safe to call
// without an active session.
func (m *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) {
	m.EnsureDefaults()
	if err := m.Sessions.Destroy(r.Context()); err != nil {
		slog.Warn("error destroying session", "err", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:    m.AuthTokenCookieName,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}

// Current returns the session for the request, or nil for anonymous
// callers. The scs session is authoritative; the signed auth token cookie
// is the fallback that restores persistent sessions after a restart.
func (m *SessionManager) Current(r *http.Request) *Session {
	m.EnsureDefaults()
	ctx := r.Context()
	if m.Sessions.Exists(ctx, sessKeyUserID) {
		sess := &Session{
			UserID:     m.Sessions.GetString(ctx, sessKeyUserID),
			Email:      m.Sessions.GetString(ctx, sessKeyEmail),
			Method:     m.Sessions.GetString(ctx, sessKeyMethod),
			Persistent: m.Sessions.GetBool(ctx, sessKeyPersistent),
		}
		if roles, ok := m.Sessions.Get(ctx, sessKeyRoles).([]string); ok {
			sess.Roles = roles
		}
		if issuedAt, ok := m.Sessions.Get(ctx, sessKeyIssuedAt).(time.Time); ok {
			sess.IssuedAt = issuedAt
		}
		if sess.UserID != "" {
			return sess
		}
	}

	for _, cookie := range r.Cookies() {
		if cookie.Name != m.AuthTokenCookieName || cookie.Value == "" {
			continue
		}
		sess, err := m.verifyAuthToken(cookie.Value)
		if err != nil {
			slog.Warn("error verifying auth token", "err", err)
			continue
		}
		return sess
	}
	return nil
}

func (m *SessionManager) signAuthToken(user *User, persistent bool, method string, issuedAt time.Time) (string, error) {
	expiry := issuedAt.Add(m.Sessions.Lifetime)
	if persistent {
		expiry = issuedAt.Add(m.PersistentLifetime)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    user.ID,
		"iss":    m.JWTIssuer,
		"email":  user.Email,
		"roles":  user.Roles,
		"method": method,
		"prs":    persistent,
		"iat":    issuedAt.Unix(),
		"exp":    expiry.Unix(),
	})
	return token.SignedString([]byte(m.JWTSecretKey))
}

func (m *SessionManager) verifyAuthToken(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(m.JWTSecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("subject not found")
	}

	sess := &Session{UserID: sub}
	sess.Email, _ = claims["email"].(string)
	sess.Method, _ = claims["method"].(string)
	sess.Persistent, _ = claims["prs"].(bool)
	if rawRoles, ok := claims["roles"].([]any); ok {
		for _, raw := range rawRoles {
			if role, ok := raw.(string); ok {
				sess.Roles = append(sess.Roles, role)
			}
		}
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		sess.IssuedAt = iat.Time
	}
	return sess, nil
}
