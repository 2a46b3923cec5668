package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const stateCookieName = "oauthstate"

// generateStateOauthCookie mints a random state value, stores it in a
// cookie, and returns it so the caller can embed it in the authorize URL.
func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Warn("error generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:    stateCookieName,
		Value:   state,
		Path:    "/",
		Expires: time.Now().Add(time.Hour),
	})
	return state
}

// verifyStateCookie checks that the state echoed by the provider matches
// the one in the state cookie.
func verifyStateCookie(r *http.Request) error {
	cookie, _ := r.Cookie(stateCookieName)
	if cookie == nil {
		return fmt.Errorf("oauth state cookie missing")
	}
	if got := r.FormValue("state"); got != cookie.Value {
		return fmt.Errorf("invalid oauth state: %s", got)
	}
	return nil
}

// stringifyClaim renders a userinfo field as a stable string. Provider IDs
// arrive as strings (Google) or JSON numbers (GitHub); numbers must not
// pick up scientific notation.
func stringifyClaim(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
