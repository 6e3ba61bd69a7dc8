// Package store declares the persistence contracts used by the auth service.
// Backends live in the gormstore, mongostore and memstore subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"fintrack/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// UserStore holds one credential record per user.
type UserStore interface {
	// CreateUser inserts u and fills its ID and timestamps. It returns
	// ErrDuplicate when the username or email is already taken.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error)
	UpdateProfile(ctx context.Context, u models.User) (models.User, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
}

type AccountStore interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	// DefaultAccount returns the user's default account, or the oldest one
	// when none is flagged.
	DefaultAccount(ctx context.Context, userID string) (models.Account, error)
}

// Rotation replaces the token digests of a live session.
type Rotation struct {
	SessionID      string
	UserID         string
	OldRefreshHash string
	NewAccessHash  string
	NewRefreshHash string
	NewExpiresAt   time.Time
	Now            time.Time
}

// TokenStore persists issued sessions. Every method touches a single record
// (or, for RevokeAll, only the revoked flag) so no transactions are needed.
type TokenStore interface {
	CreateToken(ctx context.Context, r *models.TokenRecord) error
	// RotateToken applies rot only if the record SessionID still holds
	// OldRefreshHash for UserID, is not revoked and has not expired at
	// rot.Now. It returns ErrNotFound otherwise.
	RotateToken(ctx context.Context, rot Rotation) error
	// RevokeSession flags the record with the given ID. A missing or
	// already revoked record is not an error.
	RevokeSession(ctx context.Context, id string) error
	RevokeAll(ctx context.Context, userID string) error
}

// Store bundles the three contracts for a single backend.
type Store interface {
	UserStore
	AccountStore
	TokenStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
