package models

import (
	"time"

	"gorm.io/gorm"
)

// TokenRecord is one issued session: the SHA-256 digests of an access/refresh
// pair plus the refresh expiry. A record can be exchanged only while it is
// not revoked and ExpiresAt is in the future.
type TokenRecord struct {
	ID               string    `gorm:"primaryKey;size:36" bson:"_id"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
	UserID           string    `gorm:"size:36;index;not null" bson:"user_id"`
	AccessTokenHash  string    `gorm:"size:64;not null;uniqueIndex" bson:"access_token_hash"`
	RefreshTokenHash string    `gorm:"size:64;not null;uniqueIndex" bson:"refresh_token_hash"`
	ExpiresAt        time.Time `gorm:"index;not null" bson:"expires_at"`
	Revoked          bool      `gorm:"default:false" bson:"revoked"`
	UserAgent        string    `gorm:"size:255" bson:"user_agent,omitempty"`
	ClientIP         string    `gorm:"size:64" bson:"client_ip,omitempty"`
}

// Usable reports whether the record may still be exchanged at now.
func (r TokenRecord) Usable(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

func (r *TokenRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	return nil
}
