package identity

import "time"

// RoleAdmin is the single role this package knows about. Role names are
// case-sensitive constants shared between the authorization policy and the
// credential store.
const RoleAdmin = "admin"

// User is one account. Email doubles as the login name and is unique across
// the store (case-insensitive).
type User struct {
	ID             string
	Email          string
	Roles          []string
	ExternalLogins []ExternalLogin
	CreatedAt      time.Time
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ExternalLogin binds a (provider, subject key) pair to exactly one user.
// A given pair resolves to at most one user; the store enforces this. Never
// mutated after creation.
type ExternalLogin struct {
	Provider   string
	SubjectKey string
}

// Store is the credential store contract the auth flows depend on. It owns
// password hashing, the uniqueness invariants (unique email, unique external
// login pair) and the password strength rules; the flows above it perform no
// locking of their own.
type Store interface {
	// CreateUser creates a user with email as both login name and contact
	// address. An empty password creates an external-only account with no
	// local credential. Rejections come back as a *CredentialError carrying
	// every reason (duplicate email, weak password, ...).
	CreateUser(email, password string) (*User, error)

	// FindByEmail looks a user up by exact email match. Returns
	// ErrUserNotFound when no user matches.
	FindByEmail(email string) (*User, error)

	// FindByExternalLogin resolves a (provider, subjectKey) association to
	// its user. Returns ErrUserNotFound when the pair is unlinked.
	FindByExternalLogin(provider, subjectKey string) (*User, error)

	// VerifyPassword checks a local credential. Every failure mode (unknown
	// email, external-only account, wrong password) is collapsed into
	// ErrInvalidCredentials so callers cannot tell them apart. No lockout
	// counter is kept on repeated failures.
	VerifyPassword(email, password string) (*User, error)

	// AddExternalLogin attaches a (provider, subjectKey) association to the
	// user. Returns ErrDuplicateExternalLogin when the pair is already bound
	// to some user.
	AddExternalLogin(userID, provider, subjectKey string) error

	// AddRole grants a role. Granting an already-held role is a no-op.
	AddRole(userID, role string) error

	// RemoveRole revokes a role. Revoking an unheld role is a no-op.
	RemoveRole(userID, role string) error

	// ListUsers returns every user in storage order.
	ListUsers() ([]*User, error)
}
