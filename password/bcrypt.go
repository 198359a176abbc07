package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used when Config.Cost is zero.
	DefaultCost = 12
	// DefaultLegacySalt is the fixed salt of the pre-migration digest scheme.
	DefaultLegacySalt = "987654321hello"

	legacyDigestLength = 32
	bcryptMaxBytes     = 72
)

// SchemeBcrypt and SchemeLegacy tag stored hashes by algorithm.
const (
	SchemeBcrypt = "bcrypt"
	SchemeLegacy = "legacy"
)

var hardHashPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// Config controls the bcrypt work factor and the legacy salt.
type Config struct {
	Cost       int
	LegacySalt string
}

// Hasher hashes and verifies passwords.
//
// Hasher is immutable after construction and safe for concurrent use.
type Hasher struct {
	cost       int
	legacySalt string
}

// NewHasher validates cfg and returns a Hasher. Zero values fall back to
// DefaultCost and DefaultLegacySalt.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Cost == 0 {
		cfg.Cost = DefaultCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, errors.New("password bcrypt cost out of range")
	}
	if cfg.LegacySalt == "" {
		cfg.LegacySalt = DefaultLegacySalt
	}
	return &Hasher{cost: cfg.Cost, legacySalt: cfg.LegacySalt}, nil
}

// Hash returns a bcrypt hash of password. A value that already carries a
// bcrypt prefix is returned unchanged, so Hash is idempotent on its own output.
func (h *Hasher) Hash(password string) (string, error) {
	if IsHardHash(password) {
		return password, nil
	}
	out, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether password matches stored. Malformed stored values are
// a non-match; Verify never returns an error.
func (h *Hasher) Verify(password, stored string) bool {
	if stored == "" {
		return false
	}
	if IsHardHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), bcryptInput(password)) == nil
	}
	digest := LegacyDigest(password, h.legacySalt)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(stored)) == 1
}

// NeedsUpgrade reports whether stored should be replaced by a fresh Hash
// after a successful Verify: legacy digests always, bcrypt hashes when their
// cost is below the configured one.
func (h *Hasher) NeedsUpgrade(stored string) bool {
	if !IsHardHash(stored) {
		return true
	}
	cost, err := bcrypt.Cost([]byte(stored))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// IsHardHash is a prefix check only.
func IsHardHash(stored string) bool {
	for _, p := range hardHashPrefixes {
		if strings.HasPrefix(stored, p) {
			return true
		}
	}
	return false
}

// Scheme returns SchemeBcrypt or SchemeLegacy for a stored value.
func Scheme(stored string) string {
	if IsHardHash(stored) {
		return SchemeBcrypt
	}
	return SchemeLegacy
}

// LegacyDigest computes the pre-migration digest of password.
func LegacyDigest(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])[:legacyDigestLength]
}

// bcrypt rejects inputs above 72 bytes; longer passwords are reduced to a
// fixed-size digest first so every accepted password hashes.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxBytes {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
