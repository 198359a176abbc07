package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC secret NewManager accepts.
const MinSecretLength = 32

// Purpose binds a token to the single flow that may consume it.
type Purpose string

const (
	// PurposePendingTwoFactor marks the temporary token returned with login
	// code 3. It names the account and the 2FA method awaiting a code.
	PurposePendingTwoFactor Purpose = "2fa_pending"
	// PurposeAdminAccess marks the access gate cookie.
	PurposeAdminAccess Purpose = "admin_access"
	// PurposePasswordChange marks the token returned with login code 2. It
	// only authorizes changing the expired password.
	PurposePasswordChange Purpose = "password_change"
)

var (
	// ErrPurposeMismatch is returned when a valid token is presented to the
	// wrong flow.
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	// ErrMissingSubject is returned when a token carries no subject.
	ErrMissingSubject = errors.New("token subject missing")
	// ErrFutureIssuedAt is returned for tokens issued too far ahead of the clock.
	ErrFutureIssuedAt = errors.New("token iat too far in the future")
)

// Config defines the HS256 signer.
type Config struct {
	// Secret signs new tokens and verifies them.
	Secret []byte
	// PreviousSecrets still verify tokens signed before a rotation.
	PreviousSecrets [][]byte
	Issuer          string
	Audience        string
	// Leeway tolerates clock skew on exp and iat. At most 2 minutes.
	Leeway time.Duration
	// MaxFutureIAT bounds how far ahead iat may be. Zero means 10 minutes.
	MaxFutureIAT time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and parses purpose-bound tokens. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	parser *jwt.Parser
}

// Claims is the payload of every token issued by Manager.
type Claims struct {
	Purpose Purpose `json:"pur"`
	Method  string  `json:"mth,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt: secret must be at least %d bytes", MinSecretLength)
	}
	for i, s := range cfg.PreviousSecrets {
		if len(s) < MinSecretLength {
			return nil, fmt.Errorf("jwt: previous secret %d is shorter than %d bytes", i, MinSecretLength)
		}
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be between 0 and 2m")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt: MaxFutureIAT must be between 0 and 24h")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Manager{cfg: cfg, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for subject that expires after ttl. method is only
// meaningful for PurposePendingTwoFactor.
func (m *Manager) Issue(purpose Purpose, subject, method string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("jwt: ttl must be positive")
	}
	if subject == "" {
		return "", ErrMissingSubject
	}

	now := m.cfg.Now()
	claims := Claims{
		Purpose: purpose,
		Method:  method,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.cfg.Issuer,
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
}

// Parse verifies tokenStr and requires it to carry purpose. Expired tokens
// fail with an error matching jwt.ErrTokenExpired. The current secret is
// tried first, then each previous one.
func (m *Manager) Parse(tokenStr string, purpose Purpose) (*Claims, error) {
	claims, err := m.parseWith(tokenStr, m.cfg.Secret)
	for _, prev := range m.cfg.PreviousSecrets {
		if err == nil || !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
		claims, err = m.parseWith(tokenStr, prev)
	}
	if err != nil {
		return nil, err
	}

	if claims.IssuedAt != nil && claims.IssuedAt.After(m.cfg.Now().Add(m.cfg.MaxFutureIAT)) {
		return nil, ErrFutureIssuedAt
	}
	if claims.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

func (m *Manager) parseWith(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
