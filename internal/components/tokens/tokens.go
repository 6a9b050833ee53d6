// Package tokens generates invite tokens and one-time codes, and hashes
// codes for storage.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
)

// TokenBytes is the entropy of an invite token before encoding.
const TokenBytes = 32

// Generator produces invite tokens and numeric one-time codes.
type Generator interface {
	// InviteToken returns a URL-safe token with TokenBytes of entropy.
	InviteToken() (string, error)
	// Code returns a numeric code of exactly digits characters.
	Code(digits int) (string, error)
}

// Random is a Generator backed by a cryptographic random source.
type Random struct {
	reader io.Reader
}

// NewRandom returns a Generator reading from crypto/rand.
func NewRandom() *Random {
	return &Random{reader: rand.Reader}
}

// InviteToken implements Generator.
func (g *Random) InviteToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(g.reader, b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Code implements Generator. Leading zeros are kept.
func (g *Random) Code(digits int) (string, error) {
	if digits < 4 || digits > 12 {
		return "", fmt.Errorf("code length %d out of range [4,12]", digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(g.reader, limit)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*s", digits, n.String()), nil
}

var _ Generator = (*Random)(nil)
