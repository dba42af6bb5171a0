//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	sa "github.com/panyam/sessionauth"
)

// UserModel is the GORM model for users
type UserModel struct {
	ID            string  `gorm:"primaryKey;size:64"`
	Name          string  `gorm:"size:255;not null"`
	Username      *string `gorm:"size:64"`
	Email         string  `gorm:"size:320;not null;uniqueIndex"`
	EmailVerified bool    `gorm:"default:false"`
	PasswordHash  *string `gorm:"size:255"`
	Bio           *string `gorm:"type:text"`
	Link          *string `gorm:"size:255"`
	DOB           *time.Time
	ProfileImage  *string   `gorm:"size:1024"`
	CoverImage    *string   `gorm:"size:1024"`
	Role          string    `gorm:"size:16;not null;default:USER"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *sa.User {
	return &sa.User{
		ID:            m.ID,
		Name:          m.Name,
		Username:      m.Username,
		Email:         m.Email,
		EmailVerified: m.EmailVerified,
		PasswordHash:  m.PasswordHash,
		Bio:           m.Bio,
		Link:          m.Link,
		DOB:           m.DOB,
		ProfileImage:  m.ProfileImage,
		CoverImage:    m.CoverImage,
		Role:          m.Role,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func UserToModel(u *sa.User) *UserModel {
	role := u.Role
	if role == "" {
		role = sa.RoleUser
	}
	return &UserModel{
		ID:            u.ID,
		Name:          u.Name,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		PasswordHash:  u.PasswordHash,
		Bio:           u.Bio,
		Link:          u.Link,
		DOB:           u.DOB,
		ProfileImage:  u.ProfileImage,
		CoverImage:    u.CoverImage,
		Role:          role,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// AccountModel is the GORM model for federated provider links
type AccountModel struct {
	ProviderID        string    `gorm:"primaryKey;size:32"`
	ProviderAccountID string    `gorm:"primaryKey;size:255"`
	UserID            string    `gorm:"size:64;not null;index"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *sa.Account {
	return &sa.Account{
		ProviderID:        m.ProviderID,
		ProviderAccountID: m.ProviderAccountID,
		UserID:            m.UserID,
		CreatedAt:         m.CreatedAt,
	}
}

func AccountToModel(a *sa.Account) *AccountModel {
	return &AccountModel{
		ProviderID:        a.ProviderID,
		ProviderAccountID: a.ProviderAccountID,
		UserID:            a.UserID,
		CreatedAt:         a.CreatedAt,
	}
}

// SessionModel is the GORM model for login sessions
type SessionModel struct {
	ID              string    `gorm:"primaryKey;size:64"`
	UserID          string    `gorm:"size:64;not null;index"`
	ActiveExpiresAt time.Time `gorm:"not null"`
	IdleExpiresAt   time.Time `gorm:"not null;index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func (m *SessionModel) ToSession() *sa.Session {
	return &sa.Session{
		ID:              m.ID,
		UserID:          m.UserID,
		ActiveExpiresAt: m.ActiveExpiresAt,
		IdleExpiresAt:   m.IdleExpiresAt,
	}
}

func SessionToModel(s *sa.Session) *SessionModel {
	return &SessionModel{
		ID:              s.ID,
		UserID:          s.UserID,
		ActiveExpiresAt: s.ActiveExpiresAt,
		IdleExpiresAt:   s.IdleExpiresAt,
	}
}

// EmailVerificationTokenModel is the GORM model for email verification codes.
// The unique index on user_id keeps at most one outstanding code per user.
type EmailVerificationTokenModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Code      string    `gorm:"size:16;not null;index"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex"`
	Email     string    `gorm:"size:320;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (EmailVerificationTokenModel) TableName() string {
	return "email_verification_tokens"
}

func (m *EmailVerificationTokenModel) ToToken() *sa.EmailVerificationToken {
	return &sa.EmailVerificationToken{
		ID:        m.ID,
		Code:      m.Code,
		UserID:    m.UserID,
		Email:     m.Email,
		ExpiresAt: m.ExpiresAt,
	}
}

func EmailVerificationTokenToModel(t *sa.EmailVerificationToken) *EmailVerificationTokenModel {
	return &EmailVerificationTokenModel{
		ID:        t.ID,
		Code:      t.Code,
		UserID:    t.UserID,
		Email:     t.Email,
		ExpiresAt: t.ExpiresAt,
	}
}

// PasswordResetTokenModel is the GORM model for password reset tokens
type PasswordResetTokenModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TokenHash string    `gorm:"size:64;not null;uniqueIndex"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (PasswordResetTokenModel) TableName() string {
	return "password_reset_tokens"
}

func (m *PasswordResetTokenModel) ToToken() *sa.PasswordResetToken {
	return &sa.PasswordResetToken{
		ID:        m.ID,
		TokenHash: m.TokenHash,
		UserID:    m.UserID,
		ExpiresAt: m.ExpiresAt,
	}
}

func PasswordResetTokenToModel(t *sa.PasswordResetToken) *PasswordResetTokenModel {
	return &PasswordResetTokenModel{
		ID:        t.ID,
		TokenHash: t.TokenHash,
		UserID:    t.UserID,
		ExpiresAt: t.ExpiresAt,
	}
}
