// Package memory provides an in-memory credential store, suitable for
// development and tests. Data does not survive the process.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskora/identity"
)

// MinPasswordLength is the strength floor enforced on local credentials.
const MinPasswordLength = 8

type record struct {
	user         identity.User
	passwordHash []byte
}

// Store implements identity.Store in memory. The uniqueness invariants
// (unique email, unique external login pair) are enforced under one lock.
type Store struct {
	mu         sync.Mutex
	users      []*record // storage order
	byEmail    map[string]*record
	byExternal map[string]*record
	byID       map[string]*record
}

func New() *Store {
	return &Store{
		byEmail:    map[string]*record{},
		byExternal: map[string]*record{},
		byID:       map[string]*record{},
	}
}

func externalKey(provider, subjectKey string) string {
	return provider + "\x00" + subjectKey
}

// snapshot returns a copy so callers never alias store-owned state.
func (r *record) snapshot() *identity.User {
	u := r.user
	u.Roles = append([]string(nil), r.user.Roles...)
	u.ExternalLogins = append([]identity.ExternalLogin(nil), r.user.ExternalLogins...)
	return &u
}

func (s *Store) CreateUser(email, password string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reasons []string
	if email == "" {
		reasons = append(reasons, "The Email field is required.")
	} else if _, taken := s.byEmail[strings.ToLower(email)]; taken {
		reasons = append(reasons, fmt.Sprintf("Email '%s' is already taken.", email))
	}
	if password != "" && len(password) < MinPasswordLength {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at least %d characters.", MinPasswordLength))
	}
	if len(reasons) > 0 {
		return nil, &identity.CredentialError{Reasons: reasons}
	}

	var hash []byte
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hash = h
	}

	rec := &record{
		user: identity.User{
			ID:        uuid.NewString(),
			Email:     email,
			CreatedAt: time.Now(),
		},
		passwordHash: hash,
	}
	s.users = append(s.users, rec)
	s.byEmail[strings.ToLower(email)] = rec
	s.byID[rec.user.ID] = rec
	return rec.snapshot(), nil
}

func (s *Store) FindByEmail(email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byEmail[strings.ToLower(email)]
	if rec == nil || rec.user.Email != email {
		return nil, identity.ErrUserNotFound
	}
	return rec.snapshot(), nil
}

func (s *Store) FindByExternalLogin(provider, subjectKey string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byExternal[externalKey(provider, subjectKey)]
	if rec == nil {
		return nil, identity.ErrUserNotFound
	}
	return rec.snapshot(), nil
}

func (s *Store) VerifyPassword(email, password string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byEmail[strings.ToLower(email)]
	if rec == nil || rec.passwordHash == nil {
		return nil, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return rec.snapshot(), nil
}

func (s *Store) AddExternalLogin(userID, provider, subjectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[userID]
	if rec == nil {
		return identity.ErrUserNotFound
	}
	key := externalKey(provider, subjectKey)
	if s.byExternal[key] != nil {
		return identity.ErrDuplicateExternalLogin
	}
	rec.user.ExternalLogins = append(rec.user.ExternalLogins, identity.ExternalLogin{
		Provider:   provider,
		SubjectKey: subjectKey,
	})
	s.byExternal[key] = rec
	return nil
}

func (s *Store) AddRole(userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[userID]
	if rec == nil {
		return identity.ErrUserNotFound
	}
	if !rec.user.HasRole(role) {
		rec.user.Roles = append(rec.user.Roles, role)
	}
	return nil
}

func (s *Store) RemoveRole(userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.byID[userID]
	if rec == nil {
		return identity.ErrUserNotFound
	}
	roles := rec.user.Roles[:0]
	for _, r := range rec.user.Roles {
		if r != role {
			roles = append(roles, r)
		}
	}
	rec.user.Roles = roles
	return nil
}

func (s *Store) ListUsers() ([]*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*identity.User, 0, len(s.users))
	for _, rec := range s.users {
		out = append(out, rec.snapshot())
	}
	return out, nil
}
