package tokens

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns one-time codes into storable hashes and checks submissions.
type Hasher interface {
	Hash(code string) (string, error)
	// Matches reports whether code hashes to hash. A malformed hash never matches.
	Matches(hash, code string) bool
}

// Bcrypt is a Hasher using bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt Hasher. A cost of 0 selects bcrypt.DefaultCost.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d,%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash implements Hasher.
func (b *Bcrypt) Hash(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}
	return string(h), nil
}

// Matches implements Hasher.
func (b *Bcrypt) Matches(hash, code string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

var _ Hasher = (*Bcrypt)(nil)
