//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	sa "github.com/panyam/sessionauth"
)

// mysqlDuplicateEntry is the MySQL server error number for unique key violations
const mysqlDuplicateEntry = 1062

// AutoMigrate runs database migrations for all sessionauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&AccountModel{},
		&SessionModel{},
		&EmailVerificationTokenModel{},
		&PasswordResetTokenModel{},
	)
}

// Store implements sa.Store using GORM
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying GORM handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn against a Store bound to a single GORM transaction.
// Nested calls become savepoints.
func (s *Store) Transaction(ctx context.Context, fn func(tx sa.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translateError maps driver level failures onto the sessionauth error taxonomy
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sa.ErrNotFound
	}
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %v", sa.ErrConstraintViolation, err)
	}
	return err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return true
	}
	// sqlite drivers without a registered error translator
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

// =============================================================================
// UserStore
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, user *sa.User) error {
	model := UserToModel(user)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err)
	}
	user.Role = model.Role
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (*sa.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", userID).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*sa.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToUser(), nil
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*sa.User, error) {
	var models []UserModel
	err := s.db.WithContext(ctx).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	users := make([]*sa.User, len(models))
	for i := range models {
		users[i] = models[i].ToUser()
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update *sa.UserUpdate) error {
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return err
	}

	changes := map[string]any{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.Username != nil {
		changes["username"] = *update.Username
	}
	if update.Bio != nil {
		changes["bio"] = *update.Bio
	}
	if update.Link != nil {
		changes["link"] = *update.Link
	}
	if update.DOB != nil {
		changes["dob"] = *update.DOB
	}
	if update.ProfileImage != nil {
		changes["profile_image"] = *update.ProfileImage
	}
	if update.CoverImage != nil {
		changes["cover_image"] = *update.CoverImage
	}
	if len(changes) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userID).
		Updates(changes).Error
	return translateError(err)
}

func (s *Store) SetPasswordHash(ctx context.Context, userID string, passwordHash string) error {
	err := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userID).
		Update("password_hash", passwordHash).Error
	return translateError(err)
}

func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("id = ?", userID).
		Update("email_verified", true).Error
	return translateError(err)
}

// DeleteUser removes the user together with its accounts, sessions and tokens
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, owned := range []any{
			&EmailVerificationTokenModel{},
			&PasswordResetTokenModel{},
			&SessionModel{},
			&AccountModel{},
		} {
			if err := tx.Where("user_id = ?", userID).Delete(owned).Error; err != nil {
				return err
			}
		}
		result := tx.Where("id = ?", userID).Delete(&UserModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return sa.ErrNotFound
		}
		return nil
	})
}

// =============================================================================
// AccountStore
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, providerID, providerAccountID string) (*sa.Account, error) {
	var model AccountModel
	err := s.db.WithContext(ctx).
		First(&model, "provider_id = ? AND provider_account_id = ?", providerID, providerAccountID).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToAccount(), nil
}

func (s *Store) CreateAccount(ctx context.Context, account *sa.Account) error {
	model := AccountToModel(account)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err)
	}
	account.CreatedAt = model.CreatedAt
	return nil
}

// =============================================================================
// SessionStore
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, session *sa.Session) error {
	return translateError(s.db.WithContext(ctx).Create(SessionToModel(session)).Error)
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*sa.Session, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", sessionID).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToSession(), nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&SessionModel{}).Error
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&SessionModel{}).Error
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("idle_expires_at <= ?", now).Delete(&SessionModel{})
	return result.RowsAffected, result.Error
}

// =============================================================================
// TokenStore
// =============================================================================

func (s *Store) CreateEmailVerificationToken(ctx context.Context, token *sa.EmailVerificationToken) error {
	return translateError(s.db.WithContext(ctx).Create(EmailVerificationTokenToModel(token)).Error)
}

func (s *Store) GetEmailVerificationTokenByCode(ctx context.Context, code string) (*sa.EmailVerificationToken, error) {
	var model EmailVerificationTokenModel
	if err := s.db.WithContext(ctx).First(&model, "code = ?", code).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToToken(), nil
}

func (s *Store) DeleteEmailVerificationTokens(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&EmailVerificationTokenModel{}).Error
}

func (s *Store) CreatePasswordResetToken(ctx context.Context, token *sa.PasswordResetToken) error {
	return translateError(s.db.WithContext(ctx).Create(PasswordResetTokenToModel(token)).Error)
}

func (s *Store) GetPasswordResetTokenByHash(ctx context.Context, tokenHash string) (*sa.PasswordResetToken, error) {
	var model PasswordResetTokenModel
	if err := s.db.WithContext(ctx).First(&model, "token_hash = ?", tokenHash).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToToken(), nil
}

func (s *Store) DeletePasswordResetTokens(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&PasswordResetTokenModel{}).Error
}
