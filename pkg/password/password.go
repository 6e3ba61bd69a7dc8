// Package password hashes and checks user passwords.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns plaintext passwords into salted, irreversible hashes.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Verify(plaintext string, hash []byte) bool
}

// Bcrypt is the production Hasher. The zero value uses bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

var _ Hasher = Bcrypt{}

func (b Bcrypt) Hash(plaintext string) ([]byte, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt: %w", err)
	}
	return hash, nil
}

// Verify reports whether plaintext matches hash. bcrypt compares in
// constant time.
func (b Bcrypt) Verify(plaintext string, hash []byte) bool {
	err := bcrypt.CompareHashAndPassword(hash, []byte(plaintext))
	return err == nil
}

// ValidCost reports whether cost is accepted by bcrypt.
func ValidCost(cost int) error {
	if cost == 0 {
		return nil
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return errors.New("bcrypt cost out of range")
	}
	return nil
}
