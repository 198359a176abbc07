package goGuard

import (
	"errors"
	"fmt"
	"time"
)

// CredentialFailureMessage is the single message returned for every
// credential failure so responses never reveal whether an account exists.
const CredentialFailureMessage = "invalid username or password"

var (
	// ErrValidation is returned when required input is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for unknown users, wrong passwords, disabled or non-admin accounts.
	ErrInvalidCredentials = errors.New(CredentialFailureMessage)
	// ErrAccountLocked is matched by *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotFound is returned by stores when no account matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account with a taken username.
	ErrAccountExists = errors.New("account already exists")
	// ErrLastAdministrator is returned when deleting the last enabled administrator.
	ErrLastAdministrator = errors.New("cannot delete the last administrator account")
	// ErrTokenInvalid is returned when a presented session token is unknown.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a presented session token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned when the stored expiry is unset or non-positive.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrPasswordPolicy wraps a complexity violation from the password package.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password matches the current one or recent history.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrPasswordMismatch is returned when the new password and its confirmation differ.
	ErrPasswordMismatch = errors.New("new password and confirmation do not match")
	// ErrPasswordExpired marks a login that must change its password first.
	ErrPasswordExpired = errors.New("password expired")
	// ErrChangeTokenInvalid is returned when a password change token is invalid or expired.
	ErrChangeTokenInvalid = errors.New("password change session invalid or expired")
	// ErrTwoFactorNoAddress is returned when the account has no delivery address.
	ErrTwoFactorNoAddress = errors.New("account has no email address")
	// ErrTwoFactorRateLimited is returned once verification attempts are exhausted.
	ErrTwoFactorRateLimited = errors.New("too many verification attempts")
	// ErrTwoFactorExpired is returned when no pending code exists.
	ErrTwoFactorExpired = errors.New("verification code expired")
	// ErrTwoFactorInvalid is returned for a wrong code.
	ErrTwoFactorInvalid = errors.New("invalid verification code")
	// ErrTwoFactorPending is returned when a pending login token is invalid or expired.
	ErrTwoFactorPending = errors.New("two-factor login session invalid or expired")
	// ErrTwoFactorUnavailable is returned when the TTL cache cannot be reached.
	ErrTwoFactorUnavailable = errors.New("two-factor backend unavailable")
	// ErrDeliveryFailed is returned when the notifier could not deliver a code.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrDeviceNotFound is returned when a device id does not belong to the account.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrIncidentNotFound is returned when resolving an unknown incident.
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrStoreUnavailable wraps durable store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError reports an active lock and how long it has left.
type LockedError struct {
	Remaining time.Duration
	Minutes   int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.Minutes)
}

// Unwrap lets errors.Is match ErrAccountLocked.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// TwoFactorError carries the user-facing message and, for wrong codes, the
// attempts left before the cap.
type TwoFactorError struct {
	Err       error
	Remaining int
	Message   string
}

func (e *TwoFactorError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *TwoFactorError) Unwrap() error { return e.Err }

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrIncidentNotFound) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrLastAdministrator) ||
		errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
