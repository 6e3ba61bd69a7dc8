package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds identity and profile data. PasswordHash never leaves the server.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updatedAt"`
	Username     string     `gorm:"size:255;not null;uniqueIndex" bson:"username" json:"userName"`
	Email        string     `gorm:"size:255;not null;uniqueIndex" bson:"email" json:"email"`
	PasswordHash []byte     `gorm:"not null" bson:"password_hash" json:"-"`
	FullName     string     `gorm:"size:255;not null" bson:"full_name" json:"fullName"`
	DateOfBirth  *time.Time `gorm:"type:date" bson:"date_of_birth,omitempty" json:"dateOfBirth,omitempty"`
	PhoneNumber  string     `gorm:"size:64" bson:"phone_number" json:"phoneNumber"`
	Address      string     `gorm:"size:512" bson:"address" json:"address"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}

// NewID returns a random identifier shared by every record kind.
func NewID() string {
	return uuid.NewString()
}
