// Package gormstore implements store.Store on Postgres through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fintrack/models"
	"fintrack/pkg/store"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db *gorm.DB
}

// Open connects to the Postgres database described by dsn.
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("gormstore: empty DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the users, accounts and token_records tables.
// Each model is migrated on its own so one failure names its table.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, m := range []struct {
		name  string
		model any
	}{
		{"users", &models.User{}},
		{"accounts", &models.Account{}},
		{"token_records", &models.TokenRecord{}},
	} {
		if err := db.AutoMigrate(m.model); err != nil {
			return fmt.Errorf("migrate %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.firstUser(ctx, "id = ?", id)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.firstUser(ctx, "username = ?", username)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.firstUser(ctx, "email = ?", email)
}

func (s *Store) firstUser(ctx context.Context, query string, arg any) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, store.ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (s *Store) UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error) {
	var cnt int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&cnt).Error
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return cnt > 0, nil
}

func (s *Store) UpdateProfile(ctx context.Context, u models.User) (models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"full_name":     u.FullName,
		"phone_number":  u.PhoneNumber,
		"address":       u.Address,
		"date_of_birth": u.DateOfBirth,
	})
	if res.Error != nil {
		return models.User{}, fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.User{}, store.ErrNotFound
	}
	return s.GetUser(ctx, u.ID)
}

func (s *Store) UpdatePassword(ctx context.Context, id string, hash []byte) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Store) DefaultAccount(ctx context.Context, userID string) (models.Account, error) {
	var a models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default desc").Order("created_at asc").
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Account{}, store.ErrNotFound
		}
		return models.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (s *Store) CreateToken(ctx context.Context, r *models.TokenRecord) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueConstraintError(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("create token record: %w", err)
	}
	return nil
}

// RotateToken is a single conditional UPDATE; a concurrent caller holding
// the same refresh digest matches zero rows once the first one commits.
func (s *Store) RotateToken(ctx context.Context, rot store.Rotation) error {
	res := s.db.WithContext(ctx).Model(&models.TokenRecord{}).
		Where("id = ? AND refresh_token_hash = ? AND user_id = ? AND revoked = ? AND expires_at > ?",
			rot.SessionID, rot.OldRefreshHash, rot.UserID, false, rot.Now).
		Updates(map[string]any{
			"access_token_hash":  rot.NewAccessHash,
			"refresh_token_hash": rot.NewRefreshHash,
			"expires_at":         rot.NewExpiresAt,
		})
	if res.Error != nil {
		return fmt.Errorf("rotate token record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeSession(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&models.TokenRecord{}).
		Where("id = ?", id).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("revoke token record: %w", err)
	}
	return nil
}

func (s *Store) RevokeAll(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Model(&models.TokenRecord{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
