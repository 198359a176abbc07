package password

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

const (
	DefaultExpireDays   = 90
	DefaultWarnDays     = 7
	DefaultHistoryDepth = 5
	DefaultMinLength    = 8
	DefaultMaxLength    = 128
)

// Complexity violations, in the order ValidateComplexity checks them.
var (
	ErrEmpty     = errors.New("password must not be empty")
	ErrTooShort  = errors.New("password is too short")
	ErrTooLong   = errors.New("password is too long")
	ErrNoUpper   = errors.New("password must contain an uppercase letter")
	ErrNoLower   = errors.New("password must contain a lowercase letter")
	ErrNoDigit   = errors.New("password must contain a digit")
	ErrNoSpecial = errors.New("password must contain a special character")
	ErrCommon    = errors.New("password is too common")
)

var defaultCommonPasswords = []string{
	"password", "password1", "password123", "passw0rd", "p@ssw0rd", "p@ssword1",
	"12345678", "123456789", "1234567890", "qwerty123", "qwerty@123", "admin123",
	"admin@123", "administrator", "welcome1", "welcome@1", "letmein1", "iloveyou1",
	"abc12345", "abcd1234", "aa123456", "changeme1", "root1234",
}

// Policy holds the lifecycle rules. The zero value is not usable; start from
// DefaultPolicy.
type Policy struct {
	ExpireDays      int
	WarnDays        int
	HistoryDepth    int
	MinLength       int
	MaxLength       int
	CommonPasswords []string
}

// DefaultPolicy returns the 90-day expiry, 7-day warning, depth-5 history policy.
func DefaultPolicy() Policy {
	return Policy{
		ExpireDays:      DefaultExpireDays,
		WarnDays:        DefaultWarnDays,
		HistoryDepth:    DefaultHistoryDepth,
		MinLength:       DefaultMinLength,
		MaxLength:       DefaultMaxLength,
		CommonPasswords: append([]string(nil), defaultCommonPasswords...),
	}
}

// ValidateComplexity returns the first violated rule, or nil.
func (p Policy) ValidateComplexity(pw string) error {
	if pw == "" {
		return ErrEmpty
	}
	n := len([]rune(pw))
	if n < p.MinLength {
		return ErrTooShort
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return ErrTooLong
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}
	switch {
	case !upper:
		return ErrNoUpper
	case !lower:
		return ErrNoLower
	case !digit:
		return ErrNoDigit
	case !special:
		return ErrNoSpecial
	}

	folded := strings.ToLower(pw)
	for _, c := range p.CommonPasswords {
		if folded == strings.ToLower(c) {
			return ErrCommon
		}
	}
	return nil
}

// Status is the expiry view of a password changed at a given instant.
type Status struct {
	Expired       bool
	ShouldWarn    bool
	DaysRemaining int
	ChangedAt     time.Time
	ExpiresAt     time.Time
}

// Evaluate computes the expiry status. A zero changedAt is treated as now,
// which callers are expected to persist.
func (p Policy) Evaluate(changedAt, now time.Time) Status {
	if changedAt.IsZero() {
		changedAt = now
	}
	expiresAt := changedAt.AddDate(0, 0, p.ExpireDays)
	st := Status{ChangedAt: changedAt, ExpiresAt: expiresAt}
	if !now.Before(expiresAt) {
		st.Expired = true
		st.ShouldWarn = true
		return st
	}
	st.DaysRemaining = int(expiresAt.Sub(now) / (24 * time.Hour))
	st.ShouldWarn = st.DaysRemaining <= p.WarnDays
	return st
}

// IsExpired reports expiry and floor-truncated days remaining.
func (p Policy) IsExpired(changedAt, now time.Time) (bool, int) {
	st := p.Evaluate(changedAt, now)
	return st.Expired, st.DaysRemaining
}

// ShouldWarn reports whether the holder should be told to change soon.
func (p Policy) ShouldWarn(changedAt, now time.Time) (bool, int) {
	st := p.Evaluate(changedAt, now)
	return st.ShouldWarn, st.DaysRemaining
}

// IsReused scans history newest-first and stops at the first entry that
// verifies against candidate. Only the first HistoryDepth entries count.
func (p Policy) IsReused(h *Hasher, candidate string, history []string) bool {
	if h == nil {
		return false
	}
	for i, stored := range history {
		if p.HistoryDepth > 0 && i >= p.HistoryDepth {
			break
		}
		if h.Verify(candidate, stored) {
			return true
		}
	}
	return false
}
