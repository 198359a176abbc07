package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGuard/jwt"
)

// CreateAccountRequest is the input to Engine.CreateAccount.
type CreateAccountRequest struct {
	Username string
	Password string
	Email    string
	Role     Role
}

// ValidatePassword checks pw against the complexity rules. Violations wrap
// ErrPasswordPolicy and carry the specific rule in the message.
func (e *Engine) ValidatePassword(pw string) error {
	if err := e.policy.ValidateComplexity(pw); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	return nil
}

// CreateAccount describes the createaccount operation and its observable behavior.
//
// CreateAccount validates the password, hashes it with bcrypt and stores a
// new account whose password clock starts now.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = RoleAdmin
	}
	if role != RoleAdmin && role != RoleUser {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if err := e.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := e.now()
	account := &Account{
		ID:                uuid.NewString(),
		Username:          username,
		Email:             strings.TrimSpace(req.Email),
		PasswordHash:      hash,
		Role:              role,
		PasswordChangedAt: now,
		CreatedAt:         now,
	}
	if err := e.store.CreateAccount(ctx, account); err != nil {
		return nil, storeErr(err)
	}

	e.emitAudit(ctx, auditEventAccountCreated, true, account.ID, account.Username, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	return account, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword verifies the old password, enforces complexity and reuse
// rules, records the outgoing hash in history, restarts the expiry clock and
// rotates the session token. Nothing is persisted when any check fails.
func (e *Engine) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*ChangePasswordResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if req.AccountID == "" || req.OldPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return nil, fmt.Errorf("%w: old password, new password and confirmation are required", ErrValidation)
	}
	if req.NewPassword != req.ConfirmPassword {
		e.metricInc(MetricPasswordChangePolicyRejected)
		return nil, ErrPasswordMismatch
	}

	now := e.now()
	depth := e.config.Password.HistoryDepth
	var st loginState
	var fnErr error
	account, err := e.store.UpdateAccount(ctx, req.AccountID, func(tx AccountTx) error {
		a := tx.Account()
		if !e.hasher.Verify(req.OldPassword, a.PasswordHash) {
			fnErr = ErrInvalidCredentials
			return fnErr
		}
		if fnErr = e.ValidatePassword(req.NewPassword); fnErr != nil {
			return fnErr
		}

		history, err := tx.PasswordHistory(ctx, depth)
		if err != nil {
			return err
		}
		hashes := make([]string, 0, len(history))
		for _, h := range history {
			hashes = append(hashes, h.PasswordHash)
		}
		if e.hasher.Verify(req.NewPassword, a.PasswordHash) || e.policy.IsReused(e.hasher, req.NewPassword, hashes) {
			fnErr = fmt.Errorf("%w: cannot reuse any of the last %d passwords", ErrPasswordReuse, depth)
			return fnErr
		}

		if depth > 0 {
			if err := tx.AppendPasswordHistory(ctx, PasswordHistoryEntry{
				AccountID:    a.ID,
				PasswordHash: a.PasswordHash,
				CreatedAt:    now,
			}, depth); err != nil {
				return err
			}
		}

		hash, err := e.hasher.Hash(req.NewPassword)
		if err != nil {
			fnErr = err
			return err
		}
		a.PasswordHash = hash
		a.PasswordChangedAt = now
		a.PasswordExpired = false
		fnErr = e.issueToken(a, now, &st)
		return fnErr
	})
	if err != nil {
		if fnErr != nil {
			e.passwordChangeFailed(ctx, req.AccountID, fnErr)
			return nil, fnErr
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, account.ID, account.Username, nil, nil)
	return &ChangePasswordResult{Token: st.token, TokenExpiry: st.expiry}, nil
}

// ChangeExpiredPassword changes the password of the account named by
// changeToken, the token returned with login code 2. It applies every
// ChangePassword rule but returns no session: the caller signs in again,
// going through two-factor verification when it is enabled.
func (e *Engine) ChangeExpiredPassword(ctx context.Context, changeToken string, req ChangePasswordRequest) error {
	if err := e.ready(); err != nil {
		return err
	}
	claims, err := e.pending.Parse(changeToken, jwt.PurposePasswordChange)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, "", "", ErrChangeTokenInvalid, nil)
		return ErrChangeTokenInvalid
	}
	req.AccountID = claims.Subject
	_, err = e.ChangePassword(ctx, req)
	return err
}

func (e *Engine) passwordChangeFailed(ctx context.Context, accountID string, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, accountID, "", err, nil)
	case errors.Is(err, ErrPasswordReuse):
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", err, nil)
	case errors.Is(err, ErrPasswordPolicy):
		e.metricInc(MetricPasswordChangePolicyRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", err, nil)
	default:
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, "", err, nil)
	}
}

// PolicyInfo describes the policyinfo operation and its observable behavior.
//
// PolicyInfo reports the expiry state of the account's password. An unset
// change time is initialized to now and persisted.
func (e *Engine) PolicyInfo(ctx context.Context, accountID string) (*PasswordPolicyInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	now := e.now()
	if account.PasswordChangedAt.IsZero() {
		account, err = e.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
			a := tx.Account()
			if a.PasswordChangedAt.IsZero() {
				a.PasswordChangedAt = now
			}
			return nil
		})
		if err != nil {
			return nil, storeErr(err)
		}
	}
	info := e.policyInfo(account, now)
	return &info, nil
}

func (e *Engine) policyInfo(a *Account, now time.Time) PasswordPolicyInfo {
	st := e.policy.Evaluate(a.PasswordChangedAt, now)
	return PasswordPolicyInfo{
		IsExpired:     st.Expired,
		DaysRemaining: st.DaysRemaining,
		ShouldWarn:    st.ShouldWarn,
		ExpireDays:    e.policy.ExpireDays,
		LastChanged:   st.ChangedAt,
		ExpireDate:    st.ExpiresAt,
	}
}
