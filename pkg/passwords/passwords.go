// Package passwords hashes and verifies account passwords. Stored values may
// be SHA-256 hex digests, bcrypt hashes or legacy plaintext.
package passwords

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme selects how new hashes are produced.
type Scheme string

const (
	SchemeSHA256 Scheme = "sha256"
	SchemeBcrypt Scheme = "bcrypt"
)

// MinStrength is the lowest acceptable Strength score.
const MinStrength = 4

// Hasher produces and verifies stored password values.
type Hasher struct {
	scheme Scheme
	cost   int
}

// NewHasher returns a hasher for scheme, falling back to SHA-256 for
// unknown names.
func NewHasher(scheme Scheme) *Hasher {
	if scheme != SchemeBcrypt {
		scheme = SchemeSHA256
	}
	return &Hasher{scheme: scheme, cost: bcrypt.DefaultCost}
}

// Scheme reports the scheme used for new hashes.
func (h *Hasher) Scheme() Scheme { return h.scheme }

// Hash returns the stored representation of password.
func (h *Hasher) Hash(password string) (string, error) {
	if h.scheme == SchemeBcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return SHA256Hex(password), nil
}

// Verify compares password against stored. needsUpgrade is true when the
// match succeeded but stored is plaintext or uses another scheme.
func (h *Hasher) Verify(stored, password string) (ok bool, needsUpgrade bool) {
	switch {
	case isBcrypt(stored):
		ok = bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
		return ok, ok && h.scheme != SchemeBcrypt
	case isSHA256Hex(stored):
		ok = constantTimeEqual(strings.ToLower(stored), SHA256Hex(password))
		return ok, ok && h.scheme != SchemeSHA256
	default:
		ok = constantTimeEqual(stored, password)
		return ok, ok
	}
}

// LooksHashed reports whether stored is already a hash.
func LooksHashed(stored string) bool {
	return isSHA256Hex(stored) || isBcrypt(stored)
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Strength scores a password from 0 to 5: one point each for length >= 8,
// a lowercase letter, an uppercase letter, a digit and any other character.
func Strength(password string) (score int, label string) {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	if len(password) >= 8 {
		score++
	}
	for _, hit := range []bool{lower, upper, digit, symbol} {
		if hit {
			score++
		}
	}

	switch {
	case score <= 2:
		label = "Weak"
	case score == 3:
		label = "Medium"
	default:
		label = "Strong"
	}
	return score, label
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func isSHA256Hex(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
