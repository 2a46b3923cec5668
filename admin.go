package identity

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// RoleAdministration lists users and grants or revokes the admin role. Every handler
// here must be mounted behind Middleware.RequireRole(RoleAdmin); the
// handlers themselves trust the guard.
type RoleAdministration struct {
	Store Store

	// ListURL is where grant/revoke redirect with their confirmation
	// message. Defaults to "/admin/users".
	ListURL string
}

func (a *RoleAdministration) listURL() string {
	if a.ListURL != "" {
		return a.ListURL
	}
	return "/admin/users"
}

// HandleList renders a snapshot of every user's email in storage order,
// plus the optional confirmation message from a preceding grant/revoke.
func (a *RoleAdministration) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := a.Store.ListUsers()
	if err != nil {
		http.Error(w, "Error listing users", http.StatusInternalServerError)
		return
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u.Email)
	}
	renderPage(w, http.StatusOK, "users", &usersData{
		Emails:  emails,
		Message: r.URL.Query().Get("message"),
	})
}

// HandleGrant grants the admin role to the user with the given email.
// Granting an already-held role is a no-op that still reports success.
func (a *RoleAdministration) HandleGrant(w http.ResponseWriter, r *http.Request) {
	a.changeRole(w, r, a.Store.AddRole, "Admin role granted to %s")
}

// HandleRevoke revokes the admin role from the user with the given email.
// Revoking an unheld role is likewise a no-op reported as success.
func (a *RoleAdministration) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	a.changeRole(w, r, a.Store.RemoveRole, "Admin role revoked from %s")
}

func (a *RoleAdministration) changeRole(w http.ResponseWriter, r *http.Request, mutate func(userID, role string) error, confirmation string) {
	email := r.URL.Query().Get("email")
	user, err := a.Store.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Error looking up user", http.StatusInternalServerError)
		return
	}

	if err := mutate(user.ID, RoleAdmin); err != nil {
		http.Error(w, "Error updating role", http.StatusInternalServerError)
		return
	}

	message := fmt.Sprintf(confirmation, email)
	http.Redirect(w, r, a.listURL()+"?message="+url.QueryEscape(message), http.StatusFound)
}
