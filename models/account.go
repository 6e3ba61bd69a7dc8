package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is a financial account belonging to a user. Balance is kept in the
// smallest currency unit.
type Account struct {
	ID        string    `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
	UserID    string    `gorm:"size:36;index;not null" bson:"user_id" json:"userId"`
	Name      string    `gorm:"size:255;not null" bson:"name" json:"name"`
	Type      string    `gorm:"size:32;not null" bson:"type" json:"type"`
	Balance   int64     `gorm:"not null;default:0" bson:"balance" json:"balance"`
	Currency  string    `gorm:"size:3;not null" bson:"currency" json:"currency"`
	IsDefault bool      `gorm:"not null;default:false" bson:"is_default" json:"isDefault"`
}

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	return nil
}
