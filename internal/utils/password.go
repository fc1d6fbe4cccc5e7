package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor for stored password hashes.
const DefaultBcryptCost = 12

// Password length bounds, counted in characters.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 128
)

var (
	ErrPasswordLength   = errors.New("password length out of range")
	ErrPasswordNoLetter = errors.New("password has no letter")
)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	b, err := bcrypt.GenerateFromPassword(bcryptInput(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.  An empty
// hash never matches.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(plain)) == nil
}

// bcrypt rejects inputs over 72 bytes; longer passwords are pre-hashed.
func bcryptInput(plain string) []byte {
	if len(plain) <= 72 {
		return []byte(plain)
	}
	sum := sha256.Sum256([]byte(plain))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// CheckPasswordPolicy accepts passwords of 6..128 characters containing at
// least one ASCII letter.
func CheckPasswordPolicy(plain string) error {
	n := utf8.RuneCountInString(plain)
	if n < MinPasswordLen || n > MaxPasswordLen {
		return ErrPasswordLength
	}
	for i := 0; i < len(plain); i++ {
		c := plain[i] | 0x20
		if c >= 'a' && c <= 'z' {
			return nil
		}
	}
	return ErrPasswordNoLetter
}
