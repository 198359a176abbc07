package goGuard

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/MrEthical07/goGuard/fieldcrypt"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/notify"
)

// SendTwoFactorCode describes the sendtwofactorcode operation and its observable behavior.
//
// SendTwoFactorCode generates a fresh code for the account, replaces any
// pending one and delivers it. The returned message names the masked address.
func (e *Engine) SendTwoFactorCode(ctx context.Context, accountID, method string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if method == "" {
		method = defaultTwoFactorMethod
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return "", storeErr(err)
	}
	masked, err := e.sendCode(ctx, account, method)
	if err != nil {
		return "", err
	}
	return "verification code sent to " + masked, nil
}

func (e *Engine) sendCode(ctx context.Context, account *Account, method string) (string, error) {
	if account.Email == "" {
		return "", ErrTwoFactorNoAddress
	}
	if err := e.attempts.Check(ctx, account.ID, method); err != nil {
		return "", e.twoFactorLimitErr(err)
	}

	code, err := internal.NewOTP(e.random, e.config.TwoFactor.CodeLength)
	if err != nil {
		return "", err
	}
	now := e.now()
	if err := e.challenges.Save(ctx, account.ID, method, &stores.TwoFactorChallenge{
		Code:      code,
		CreatedAt: now.Unix(),
	}, e.config.TwoFactor.CodeTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}

	msg := notify.Message{
		Subject: e.config.TwoFactor.Subject,
		To:      []string{account.Email},
		HTML:    twoFactorBody(account.Username, code, e.config.TwoFactor.CodeTTL),
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		_, _ = e.challenges.Delete(ctx, account.ID, method)
		e.metricInc(MetricTwoFactorDeliveryFailed)
		e.logger.Warn().Err(err).Str("account_id", account.ID).Msg("two-factor code delivery failed")
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricTwoFactorCodeSent)
	e.emitAudit(ctx, auditEventTwoFactorCodeSent, true, account.ID, account.Username, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return fieldcrypt.MaskAddress(account.Email), nil
}

// VerifyTwoFactorCode describes the verifytwofactorcode operation and its observable behavior.
//
// VerifyTwoFactorCode checks code against the pending challenge. A wrong
// code counts against the attempt cap; a correct one deletes the challenge
// and the counter so it cannot be replayed.
func (e *Engine) VerifyTwoFactorCode(ctx context.Context, accountID, code, method string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if method == "" {
		method = defaultTwoFactorMethod
	}
	if accountID == "" || code == "" {
		return fmt.Errorf("%w: verification code is required", ErrValidation)
	}

	if err := e.attempts.Check(ctx, accountID, method); err != nil {
		return e.twoFactorLimitErr(err)
	}

	challenge, err := e.challenges.Get(ctx, accountID, method)
	if err != nil {
		if errors.Is(err, stores.ErrTwoFactorChallengeNotFound) {
			e.metricInc(MetricTwoFactorFailure)
			e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "", ErrTwoFactorExpired, nil)
			return &TwoFactorError{Err: ErrTwoFactorExpired, Message: "verification code expired, request a new one"}
		}
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(challenge.Code), []byte(code)) != 1 {
		remaining, err := e.attempts.RecordFailure(ctx, accountID, method)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
		}
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "", ErrTwoFactorInvalid, nil)
		return &TwoFactorError{
			Err:       ErrTwoFactorInvalid,
			Remaining: remaining,
			Message:   fmt.Sprintf("invalid verification code, attempts remaining: %d", remaining),
		}
	}

	if _, err := e.challenges.Delete(ctx, accountID, method); err != nil {
		return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
	}
	if err := e.attempts.Reset(ctx, accountID, method); err != nil {
		e.logger.Warn().Err(err).Str("account_id", accountID).Msg("two-factor counter reset failed")
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, accountID, "", nil, nil)
	return nil
}

func (e *Engine) twoFactorLimitErr(err error) error {
	if errors.Is(err, limiters.ErrTwoFactorRateLimited) {
		e.metricInc(MetricTwoFactorRateLimited)
		minutes := int((e.attempts.Window() + time.Minute - 1) / time.Minute)
		return &TwoFactorError{
			Err:     ErrTwoFactorRateLimited,
			Message: fmt.Sprintf("too many verification attempts, try again in %d minutes", minutes),
		}
	}
	return fmt.Errorf("%w: %v", ErrTwoFactorUnavailable, err)
}

// EnableTwoFactor turns two-factor on for the account. The account must have
// an email address.
func (e *Engine) EnableTwoFactor(ctx context.Context, accountID, method string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if method == "" {
		method = defaultTwoFactorMethod
	}
	if method != defaultTwoFactorMethod {
		return fmt.Errorf("%w: unsupported two-factor method %q", ErrValidation, method)
	}

	var fnErr error
	account, err := e.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
		a := tx.Account()
		if a.Email == "" {
			fnErr = ErrTwoFactorNoAddress
			return fnErr
		}
		a.TwoFactorEnabled = true
		a.TwoFactorMethod = method
		return nil
	})
	if err != nil {
		if fnErr != nil {
			return fnErr
		}
		return storeErr(err)
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, account.ID, account.Username, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return nil
}

// DisableTwoFactor turns two-factor off and drops any pending challenge.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	var method string
	account, err := e.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
		a := tx.Account()
		method = a.TwoFactorMethod
		a.TwoFactorEnabled = false
		a.TwoFactorMethod = ""
		return nil
	})
	if err != nil {
		return storeErr(err)
	}
	if method != "" {
		_, _ = e.challenges.Delete(ctx, accountID, method)
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, account.ID, account.Username, nil, nil)
	return nil
}

// TwoFactorStatus returns the account's two-factor settings with the email masked.
func (e *Engine) TwoFactorStatus(ctx context.Context, accountID string) (*TwoFactorStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	status := twoFactorStatus(account)
	return &status, nil
}

func twoFactorStatus(a *Account) TwoFactorStatus {
	method := a.TwoFactorMethod
	if method == "" {
		method = defaultTwoFactorMethod
	}
	return TwoFactorStatus{
		Enabled: a.TwoFactorEnabled,
		Method:  method,
		Email:   fieldcrypt.MaskEmail(a.Email),
	}
}

func twoFactorBody(username, code string, ttl time.Duration) string {
	minutes := int((ttl + time.Minute - 1) / time.Minute)
	return fmt.Sprintf(`<div style="font-family:sans-serif">
<p>Hello %s,</p>
<p>Your verification code is <strong style="font-size:20px;letter-spacing:4px">%s</strong>.</p>
<p>The code is valid for %d minutes. If you did not try to sign in, change your password immediately.</p>
</div>`, html.EscapeString(username), code, minutes)
}
