// Package gorm provides a SQL-backed credential store. Relationships are
// explicit join tables with explicit queries; nothing is lazy-loaded.
package gorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/taskora/identity"
)

// MinPasswordLength is the strength floor enforced on local credentials.
const MinPasswordLength = 8

// AutoMigrate runs database migrations for all identity tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&ExternalLoginModel{},
		&UserRoleModel{},
	)
}

// UserStore implements identity.Store using GORM.
type UserStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(email, password string) (*identity.User, error) {
	var reasons []string
	if email == "" {
		reasons = append(reasons, "The Email field is required.")
	} else {
		var count int64
		if err := s.db.Model(&UserModel{}).Where("normalized_email = ?", strings.ToLower(email)).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			reasons = append(reasons, fmt.Sprintf("Email '%s' is already taken.", email))
		}
	}
	if password != "" && len(password) < MinPasswordLength {
		reasons = append(reasons, fmt.Sprintf("Passwords must be at least %d characters.", MinPasswordLength))
	}
	if len(reasons) > 0 {
		return nil, &identity.CredentialError{Reasons: reasons}
	}

	model := &UserModel{
		ID:              uuid.NewString(),
		Email:           email,
		NormalizedEmail: strings.ToLower(email),
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		hashStr := string(hash)
		model.PasswordHash = &hashStr
	}

	if err := s.db.Create(model).Error; err != nil {
		// A concurrent registration can slip past the count above; the
		// unique index is the real constraint.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &identity.CredentialError{
				Reasons: []string{fmt.Sprintf("Email '%s' is already taken.", email)},
			}
		}
		return nil, err
	}
	return s.toUser(model)
}

func (s *UserStore) FindByEmail(email string) (*identity.User, error) {
	var model UserModel
	if err := s.db.First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return s.toUser(&model)
}

func (s *UserStore) FindByExternalLogin(provider, subjectKey string) (*identity.User, error) {
	var login ExternalLoginModel
	if err := s.db.First(&login, "provider = ? AND subject_key = ?", provider, subjectKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	var model UserModel
	if err := s.db.First(&model, "id = ?", login.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return s.toUser(&model)
}

func (s *UserStore) VerifyPassword(email, password string) (*identity.User, error) {
	var model UserModel
	err := s.db.First(&model, "normalized_email = ?", strings.ToLower(email)).Error
	if err != nil || model.PasswordHash == nil {
		return nil, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*model.PasswordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	return s.toUser(&model)
}

func (s *UserStore) AddExternalLogin(userID, provider, subjectKey string) error {
	if err := s.requireUser(userID); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&ExternalLoginModel{}).Where("provider = ? AND subject_key = ?", provider, subjectKey).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return identity.ErrDuplicateExternalLogin
	}
	err := s.db.Create(&ExternalLoginModel{
		Provider:   provider,
		SubjectKey: subjectKey,
		UserID:     userID,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return identity.ErrDuplicateExternalLogin
	}
	return err
}

func (s *UserStore) AddRole(userID, role string) error {
	if err := s.requireUser(userID); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&UserRoleModel{}).Where("user_id = ? AND role = ?", userID, role).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		// already held, grant is a no-op
		return nil
	}
	err := s.db.Create(&UserRoleModel{UserID: userID, Role: role}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *UserStore) RemoveRole(userID, role string) error {
	if err := s.requireUser(userID); err != nil {
		return err
	}
	return s.db.Where("user_id = ? AND role = ?", userID, role).Delete(&UserRoleModel{}).Error
}

func (s *UserStore) ListUsers() ([]*identity.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}

	roles, logins, err := s.loadAssociations()
	if err != nil {
		return nil, err
	}

	out := make([]*identity.User, 0, len(models))
	for i := range models {
		m := &models[i]
		out = append(out, &identity.User{
			ID:             m.ID,
			Email:          m.Email,
			Roles:          roles[m.ID],
			ExternalLogins: logins[m.ID],
			CreatedAt:      m.CreatedAt,
		})
	}
	return out, nil
}

func (s *UserStore) requireUser(userID string) error {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// toUser projects a user row plus its explicit join rows onto the domain
// type.
func (s *UserStore) toUser(m *UserModel) (*identity.User, error) {
	var roleRows []UserRoleModel
	if err := s.db.Where("user_id = ?", m.ID).Find(&roleRows).Error; err != nil {
		return nil, err
	}
	var loginRows []ExternalLoginModel
	if err := s.db.Where("user_id = ?", m.ID).Find(&loginRows).Error; err != nil {
		return nil, err
	}

	user := &identity.User{
		ID:        m.ID,
		Email:     m.Email,
		CreatedAt: m.CreatedAt,
	}
	for _, r := range roleRows {
		user.Roles = append(user.Roles, r.Role)
	}
	for _, l := range loginRows {
		user.ExternalLogins = append(user.ExternalLogins, identity.ExternalLogin{
			Provider:   l.Provider,
			SubjectKey: l.SubjectKey,
		})
	}
	return user, nil
}

// loadAssociations bulk-loads role and login rows grouped by user, so
// ListUsers stays at three queries regardless of user count.
func (s *UserStore) loadAssociations() (map[string][]string, map[string][]identity.ExternalLogin, error) {
	var roleRows []UserRoleModel
	if err := s.db.Find(&roleRows).Error; err != nil {
		return nil, nil, err
	}
	var loginRows []ExternalLoginModel
	if err := s.db.Find(&loginRows).Error; err != nil {
		return nil, nil, err
	}

	roles := map[string][]string{}
	for _, r := range roleRows {
		roles[r.UserID] = append(roles[r.UserID], r.Role)
	}
	logins := map[string][]identity.ExternalLogin{}
	for _, l := range loginRows {
		logins[l.UserID] = append(logins[l.UserID], identity.ExternalLogin{
			Provider:   l.Provider,
			SubjectKey: l.SubjectKey,
		})
	}
	return roles, logins, nil
}
