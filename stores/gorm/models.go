package gorm

import "time"

// UserModel is the GORM model for users. NormalizedEmail carries the
// case-insensitive uniqueness constraint; Email keeps the casing the user
// registered with. PasswordHash is nil for external-only accounts.
type UserModel struct {
	ID              string    `gorm:"primaryKey;size:64"`
	Email           string    `gorm:"size:255"`
	NormalizedEmail string    `gorm:"size:255;uniqueIndex"`
	PasswordHash    *string   `gorm:"size:128"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// ExternalLoginModel is the GORM model for external-login associations. The
// composite primary key enforces the at-most-one-user invariant for a
// (provider, subject key) pair at the schema level.
type ExternalLoginModel struct {
	Provider   string    `gorm:"primaryKey;size:64"`
	SubjectKey string    `gorm:"primaryKey;size:255"`
	UserID     string    `gorm:"size:64;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ExternalLoginModel) TableName() string {
	return "external_logins"
}

// UserRoleModel is the explicit join table for role grants.
type UserRoleModel struct {
	UserID string `gorm:"primaryKey;size:64"`
	Role   string `gorm:"primaryKey;size:32"`
}

func (UserRoleModel) TableName() string {
	return "user_roles"
}
