package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
)

// Role distinguishes administrators from regular users. Only administrators
// may sign in to the admin backend.
type Role string

const (
	// RoleAdmin may sign in and manage security settings.
	RoleAdmin Role = "admin"
	// RoleUser is a regular account that cannot sign in to the backend.
	RoleUser Role = "user"
)

// Account is the credential record for one user.
//
// LockedUntil, LastLoginAt and PasswordChangedAt use the zero time for
// "unset". TokenExpiry is epoch milliseconds.
type Account struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	Role              Role
	Disabled          bool
	Token             string
	TokenExpiry       int64
	FailedAttempts    int
	LockedUntil       time.Time
	LastLoginAt       time.Time
	LastLoginIP       string
	TwoFactorEnabled  bool
	TwoFactorMethod   string
	PasswordChangedAt time.Time
	PasswordExpired   bool
	CreatedAt         time.Time
}

// HashScheme reports "bcrypt" or "legacy" for the stored hash.
func (a *Account) HashScheme() string {
	return password.Scheme(a.PasswordHash)
}

// IsAdmin reports whether the account holds the administrator role.
func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

// PasswordHistoryEntry is a previous hash of an account's password.
type PasswordHistoryEntry struct {
	AccountID    string
	PasswordHash string
	CreatedAt    time.Time
}

// Device is a browser or client seen at login.
type Device struct {
	ID          string
	AccountID   string
	Fingerprint string
	Name        string
	Type        string
	UserAgent   string
	FirstIP     string
	LastLoginAt time.Time
	LastLoginIP string
	LoginCount  int
	Trusted     bool
	Active      bool
	CreatedAt   time.Time
}

// IncidentType classifies a security incident.
type IncidentType string

const (
	IncidentLoginFailure        IncidentType = "LOGIN_FAILURE"
	IncidentLoginSuccess        IncidentType = "LOGIN_SUCCESS"
	IncidentPermissionDenied    IncidentType = "PERMISSION_DENIED"
	IncidentSQLInjection        IncidentType = "SQL_INJECTION_ATTEMPT"
	IncidentXSS                 IncidentType = "XSS_ATTEMPT"
	IncidentCSRF                IncidentType = "CSRF_ATTEMPT"
	IncidentFileUploadViolation IncidentType = "FILE_UPLOAD_VIOLATION"
	IncidentBruteForce          IncidentType = "BRUTE_FORCE_ATTEMPT"
	IncidentUnauthorizedAccess  IncidentType = "UNAUTHORIZED_ACCESS"
	IncidentSuspiciousActivity  IncidentType = "SUSPICIOUS_ACTIVITY"
)

// IncidentTypes lists every known incident type.
var IncidentTypes = []IncidentType{
	IncidentLoginFailure,
	IncidentLoginSuccess,
	IncidentPermissionDenied,
	IncidentSQLInjection,
	IncidentXSS,
	IncidentCSRF,
	IncidentFileUploadViolation,
	IncidentBruteForce,
	IncidentUnauthorizedAccess,
	IncidentSuspiciousActivity,
}

// Valid reports whether t is a known incident type.
func (t IncidentType) Valid() bool {
	for _, known := range IncidentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity orders incidents from LOW to CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns 1..4 for known severities and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeastHigh reports HIGH or CRITICAL.
func (s Severity) AtLeastHigh() bool { return s.Rank() >= SeverityHigh.Rank() }

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Incident is an append-only security record. Only the resolution fields
// change after insert.
type Incident struct {
	ID          string
	Type        IncidentType
	Severity    Severity
	Description string
	AccountID   string
	Username    string
	IP          string
	UserAgent   string
	URL         string
	Method      string
	Status      int
	Resolved    bool
	ResolvedBy  string
	ResolvedAt  time.Time
	CreatedAt   time.Time
}

// IncidentFilter selects incidents. Zero fields do not filter. Limit 0
// returns every match.
type IncidentFilter struct {
	From     time.Time
	To       time.Time
	Type     IncidentType
	Severity Severity
	// Search matches url, ip or description by substring.
	Search   string
	Resolved *bool
	Offset   int
	Limit    int
}

// Actor identifies who an incident concerns. Both fields may be empty.
type Actor struct {
	AccountID string
	Username  string
}

// AccountTx is the view of an account inside a row-locked transaction.
// Changes made to Account() are persisted when the callback returns nil.
type AccountTx interface {
	Account() *Account
	PasswordHistory(ctx context.Context, limit int) ([]PasswordHistoryEntry, error)
	AppendPasswordHistory(ctx context.Context, entry PasswordHistoryEntry, keep int) error
}

// AccountStore persists accounts and their password history.
//
// UpdateAccount and UpdateAccountByUsername lock the row (SELECT ... FOR
// UPDATE) for the duration of fn. An error returned by fn rolls back and is
// returned unchanged.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	AccountByID(ctx context.Context, id string) (*Account, error)
	AccountByToken(ctx context.Context, token string) (*Account, error)
	UpdateAccount(ctx context.Context, id string, fn func(AccountTx) error) (*Account, error)
	UpdateAccountByUsername(ctx context.Context, username string, fn func(AccountTx) error) (*Account, error)
	// AdminEmails returns the non-empty email addresses of enabled administrators.
	AdminEmails(ctx context.Context) ([]string, error)
	// DeleteAccount locks the account, counts enabled administrators and
	// deletes the row only when guard returns nil.
	DeleteAccount(ctx context.Context, id string, guard func(account *Account, enabledAdmins int) error) error
}

// DeviceStore persists devices keyed by (account, fingerprint).
type DeviceStore interface {
	DeviceByFingerprint(ctx context.Context, accountID, fingerprint string) (*Device, error)
	// UpsertDevice inserts a new device with LoginCount 1, or increments the
	// login count and refreshes last-login time, IP and user agent.
	UpsertDevice(ctx context.Context, device *Device) (*Device, error)
	ListDevices(ctx context.Context, accountID string, activeOnly bool) ([]Device, error)
	SetDeviceActive(ctx context.Context, accountID, deviceID string, active bool) error
	SetDeviceTrusted(ctx context.Context, accountID, deviceID string, trusted bool) error
}

// IncidentStore persists incidents.
type IncidentStore interface {
	InsertIncident(ctx context.Context, incident *Incident) error
	// ListIncidents returns the page selected by filter, newest first, and
	// the total number of matches.
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, int, error)
	ResolveIncident(ctx context.Context, id, resolvedBy string, at time.Time) error
}

// Store is the durable store required by Engine.
type Store interface {
	AccountStore
	DeviceStore
	IncidentStore
}

// Notifier delivers email notifications. notify.Sender implementations
// satisfy it.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Clock abstracts time for lockout, expiry and token decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// LoginCode is the numeric result code of a login attempt.
type LoginCode int

const (
	// LoginOK means a session token was issued.
	LoginOK LoginCode = 0
	// LoginFailed covers bad credentials, locks and validation errors.
	LoginFailed LoginCode = 1
	// LoginPasswordExpired means the password must be changed before signing in.
	LoginPasswordExpired LoginCode = 2
	// LoginTwoFactorRequired means a code was sent and must be confirmed.
	LoginTwoFactorRequired LoginCode = 3
)

// LoginRequest is the input to Engine.Login. IP and UserAgent describe the
// client and drive device tracking.
type LoginRequest struct {
	Username  string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	Code    LoginCode
	Message string

	// Set for LoginOK.
	AccountID   string
	Username    string
	Token       string
	TokenExpiry int64
	// PasswordWarning is set for LoginOK when the password expires soon.
	PasswordWarning *PasswordPolicyInfo
	// Suspicious is set for LoginOK when the device check raised reasons.
	Suspicious *SuspiciousCheck

	// Set for LoginFailed.
	RemainingAttempts int
	RemainingMinutes  int

	// Set for LoginPasswordExpired. ChangeToken authorizes
	// ChangeExpiredPassword and nothing else.
	ForceChange bool
	ChangeToken string

	// Set for LoginTwoFactorRequired.
	TempToken     string
	MaskedAddress string
	Method        string
}

// AuthKind tags the outcome of token verification.
type AuthKind int

const (
	// NoCredential means no token was presented.
	NoCredential AuthKind = iota
	// Authenticated means the token resolved to a live account.
	Authenticated
	// Rejected means a token was presented and refused.
	Rejected
)

func (k AuthKind) String() string {
	switch k {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "no_credential"
	}
}

// RejectReason explains a Rejected outcome.
type RejectReason string

const (
	ReasonNone         RejectReason = ""
	ReasonInvalidToken RejectReason = "invalid_token"
	ReasonExpired      RejectReason = "expired"
	ReasonMalformed    RejectReason = "malformed"
)

// Err maps the reason onto the matching sentinel.
func (r RejectReason) Err() error {
	switch r {
	case ReasonInvalidToken:
		return ErrTokenInvalid
	case ReasonExpired:
		return ErrTokenExpired
	case ReasonMalformed:
		return ErrTokenMalformed
	default:
		return nil
	}
}

// AuthOutcome is the tagged result of Engine.Authenticate.
type AuthOutcome struct {
	Kind    AuthKind
	Reason  RejectReason
	Account *Account
}

// PasswordPolicyInfo describes the expiry state of an account's password.
type PasswordPolicyInfo struct {
	IsExpired     bool      `json:"is_expired"`
	DaysRemaining int       `json:"days_remaining"`
	ShouldWarn    bool      `json:"should_warn"`
	ExpireDays    int       `json:"expire_days"`
	LastChanged   time.Time `json:"last_changed"`
	ExpireDate    time.Time `json:"expire_date"`
}

// ChangePasswordRequest is the input to Engine.ChangePassword.
type ChangePasswordRequest struct {
	AccountID       string
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
}

// ChangePasswordResult returns the rotated session.
type ChangePasswordResult struct {
	Token       string
	TokenExpiry int64
}

// SuspiciousCheck is the outcome of the device check. It never blocks a login.
type SuspiciousCheck struct {
	IsSuspicious bool     `json:"is_suspicious"`
	Reasons      []string `json:"reasons"`
}

// TwoFactorStatus reports an account's 2FA settings with the address masked.
type TwoFactorStatus struct {
	Enabled bool   `json:"enabled"`
	Method  string `json:"method"`
	Email   string `json:"email"`
}

// DeviceCounts summarizes an account's devices.
type DeviceCounts struct {
	Total   int `json:"total"`
	Trusted int `json:"trusted"`
	Active  int `json:"active"`
}

// SecurityOverview is the per-account security summary.
type SecurityOverview struct {
	TwoFactor TwoFactorStatus    `json:"two_factor"`
	Password  PasswordPolicyInfo `json:"password_policy"`
	Devices   DeviceCounts       `json:"devices"`
}

// SeverityCounts breaks a total down by severity.
type SeverityCounts struct {
	Total    int `json:"total"`
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// IncidentReport aggregates incidents over a time range.
type IncidentReport struct {
	Start      time.Time                 `json:"start"`
	End        time.Time                 `json:"end"`
	Total      int                       `json:"total"`
	ByType     map[IncidentType]int      `json:"by_type"`
	BySeverity map[Severity]int          `json:"by_severity"`
	Daily      map[string]SeverityCounts `json:"daily"`
	Days       []string                  `json:"days"`
}

// IncidentStats is the dashboard summary.
type IncidentStats struct {
	Total    int `json:"total"`
	High     int `json:"high"`
	Critical int `json:"critical"`
	Today    int `json:"today"`
}

// IncidentPage is one page of an incident listing.
type IncidentPage struct {
	Items []Incident `json:"items"`
	Total int        `json:"total"`
}
