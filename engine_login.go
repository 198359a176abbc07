package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/lockout"
	"github.com/MrEthical07/goGuard/jwt"
)

const defaultTwoFactorMethod = "email"

type loginState struct {
	result    *LoginResult
	lockedNow bool
	until     time.Time
	upgraded  bool
	twoFactor bool
	method    string
	prevIP    string
	token     string
	expiry    int64
	status    PasswordPolicyInfo
}

// Login describes the login operation and its observable behavior.
//
// Login runs the lockout check, password verification, legacy upgrade,
// expiry check and either the two-factor hand-off or token issuance inside
// one row-locked transaction. Domain outcomes are reported through the
// result code; the error is reserved for backend failures.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx = e.withClient(ctx, req.IP, req.UserAgent)

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		e.metricInc(MetricLoginFailure)
		return &LoginResult{Code: LoginFailed, Message: "username and password are required"}, nil
	}

	now := e.now()
	var st loginState
	var fnErr error
	account, err := e.store.UpdateAccountByUsername(ctx, username, func(tx AccountTx) error {
		fnErr = e.loginTx(tx.Account(), req, now, &st)
		return fnErr
	})
	if err != nil {
		if fnErr != nil {
			return nil, fnErr
		}
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", username, ErrInvalidCredentials, nil)
			return credentialFailure(0), nil
		}
		return nil, storeErr(err)
	}

	if st.upgraded {
		e.metricInc(MetricLegacyHashUpgraded)
		e.emitAudit(ctx, auditEventLegacyHashUpgraded, true, account.ID, account.Username, nil, nil)
	}

	if st.result != nil {
		return e.finishFailedLogin(ctx, account, &st), nil
	}

	if st.twoFactor {
		return e.beginTwoFactorLogin(ctx, account, st.method)
	}

	result := &LoginResult{
		Code:        LoginOK,
		Message:     "login successful",
		AccountID:   account.ID,
		Username:    account.Username,
		Token:       st.token,
		TokenExpiry: st.expiry,
	}
	if st.status.ShouldWarn {
		info := st.status
		result.PasswordWarning = &info
	}
	result.Suspicious = e.trackDevice(ctx, account, req, st.prevIP)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, account.Username, nil, nil)
	return result, nil
}

func (e *Engine) loginTx(a *Account, req LoginRequest, now time.Time, st *loginState) error {
	if a.Disabled || !a.IsAdmin() {
		st.result = credentialFailure(0)
		return nil
	}

	ls := lockout.State{FailedAttempts: a.FailedAttempts, LockedUntil: a.LockedUntil}
	admission := e.lockout.Admit(&ls, now)
	if !admission.Allowed {
		err := &LockedError{Remaining: admission.Remaining, Minutes: admission.RemainingMinutes()}
		st.result = &LoginResult{Code: LoginFailed, Message: err.Error(), RemainingMinutes: err.Minutes}
		return nil
	}

	if !e.hasher.Verify(req.Password, a.PasswordHash) {
		failure := e.lockout.Fail(&ls, now)
		a.FailedAttempts, a.LockedUntil = ls.FailedAttempts, ls.LockedUntil
		if failure.LockedNow {
			minutes := lockout.Admission{Remaining: failure.Until.Sub(now)}.RemainingMinutes()
			st.lockedNow = true
			st.until = failure.Until
			st.result = &LoginResult{
				Code:             LoginFailed,
				Message:          fmt.Sprintf("too many failed attempts, account locked for %d minutes", minutes),
				RemainingMinutes: minutes,
			}
			return nil
		}
		st.result = credentialFailure(failure.RemainingAttempts)
		return nil
	}

	e.lockout.Succeed(&ls)
	a.FailedAttempts, a.LockedUntil = ls.FailedAttempts, ls.LockedUntil

	if e.config.Password.UpgradeLegacyOnLogin && e.hasher.NeedsUpgrade(a.PasswordHash) {
		upgraded, err := e.hasher.Hash(req.Password)
		if err != nil {
			return err
		}
		a.PasswordHash = upgraded
		st.upgraded = true
	}

	if a.PasswordChangedAt.IsZero() {
		a.PasswordChangedAt = now
	}
	st.status = e.policyInfo(a, now)
	if st.status.IsExpired {
		a.PasswordExpired = true
		st.result = &LoginResult{
			Code:        LoginPasswordExpired,
			Message:     "password expired, please change it before signing in",
			AccountID:   a.ID,
			Username:    a.Username,
			ForceChange: true,
		}
		return nil
	}

	if a.TwoFactorEnabled {
		st.twoFactor = true
		st.method = a.TwoFactorMethod
		if st.method == "" {
			st.method = defaultTwoFactorMethod
		}
		return nil
	}

	if err := e.issueToken(a, now, st); err != nil {
		return err
	}
	st.prevIP = a.LastLoginIP
	a.LastLoginAt = now
	a.LastLoginIP = req.IP
	return nil
}

func (e *Engine) finishFailedLogin(ctx context.Context, account *Account, st *loginState) *LoginResult {
	result := st.result
	switch result.Code {
	case LoginPasswordExpired:
		token, err := e.pending.Issue(jwt.PurposePasswordChange, account.ID, "", e.config.TwoFactor.PendingTokenTTL)
		if err != nil {
			e.logger.Error().Err(err).Str("account_id", account.ID).Msg("issue password change token")
		}
		result.ChangeToken = token
		e.metricInc(MetricLoginPasswordExpired)
		e.emitAudit(ctx, auditEventLoginPasswordExpired, false, account.ID, account.Username, ErrPasswordExpired, nil)
		return result
	}

	if st.lockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, account.ID, account.Username, ErrAccountLocked, func() map[string]string {
			return map[string]string{"locked_until": st.until.UTC().Format(time.RFC3339)}
		})
		actor := Actor{AccountID: account.ID, Username: account.Username}
		sev := e.config.Lockout.ReportSeverity
		e.Detect(ctx, IncidentBruteForce, sev,
			fmt.Sprintf("account %s locked after %d consecutive failed logins", account.Username, e.config.Lockout.Threshold),
			actor, clientIPFromContext(ctx))
		e.Respond(ctx, IncidentBruteForce, sev, actor, clientIPFromContext(ctx))
		return result
	}

	if result.RemainingMinutes > 0 {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, account.Username, ErrAccountLocked, nil)
		return result
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, account.ID, account.Username, ErrInvalidCredentials, nil)
	return result
}

func (e *Engine) beginTwoFactorLogin(ctx context.Context, account *Account, method string) (*LoginResult, error) {
	masked, err := e.sendCode(ctx, account, method)
	if err != nil {
		var tfe *TwoFactorError
		if errors.As(err, &tfe) {
			return &LoginResult{Code: LoginFailed, Message: tfe.Error()}, nil
		}
		if errors.Is(err, ErrDeliveryFailed) || errors.Is(err, ErrTwoFactorNoAddress) {
			return &LoginResult{Code: LoginFailed, Message: err.Error()}, nil
		}
		return nil, err
	}

	temp, err := e.pending.Issue(jwt.PurposePendingTwoFactor, account.ID, method, e.config.TwoFactor.PendingTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue pending token: %w", err)
	}

	e.metricInc(MetricTwoFactorRequired)
	e.emitAudit(ctx, auditEventTwoFactorRequired, true, account.ID, account.Username, nil, func() map[string]string {
		return map[string]string{"method": method}
	})
	return &LoginResult{
		Code:          LoginTwoFactorRequired,
		Message:       "verification code sent to " + masked,
		AccountID:     account.ID,
		Username:      account.Username,
		TempToken:     temp,
		MaskedAddress: masked,
		Method:        method,
	}, nil
}

// CompleteTwoFactorLogin describes the completetwofactorlogin operation and its observable behavior.
//
// CompleteTwoFactorLogin verifies code for the account and method named by
// tempToken, then issues the session exactly as a password-only login would.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, tempToken, code, ip, userAgent string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ctx = e.withClient(ctx, ip, userAgent)

	claims, err := e.pending.Parse(tempToken, jwt.PurposePendingTwoFactor)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", ErrTwoFactorPending, nil)
		return nil, ErrTwoFactorPending
	}
	accountID, method := claims.Subject, claims.Method
	if method == "" {
		method = defaultTwoFactorMethod
	}

	if err := e.VerifyTwoFactorCode(ctx, accountID, code, method); err != nil {
		return nil, err
	}

	now := e.now()
	var st loginState
	var fnErr error
	account, err := e.store.UpdateAccount(ctx, accountID, func(tx AccountTx) error {
		a := tx.Account()
		if a.Disabled || !a.IsAdmin() {
			fnErr = ErrInvalidCredentials
			return fnErr
		}
		if fnErr = e.issueToken(a, now, &st); fnErr != nil {
			return fnErr
		}
		st.status = e.policyInfo(a, now)
		st.prevIP = a.LastLoginIP
		a.LastLoginAt = now
		a.LastLoginIP = ip
		return nil
	})
	if err != nil {
		if fnErr != nil {
			return nil, fnErr
		}
		return nil, storeErr(err)
	}

	result := &LoginResult{
		Code:        LoginOK,
		Message:     "login successful",
		AccountID:   account.ID,
		Username:    account.Username,
		Token:       st.token,
		TokenExpiry: st.expiry,
	}
	if st.status.ShouldWarn {
		info := st.status
		result.PasswordWarning = &info
	}
	result.Suspicious = e.trackDevice(ctx, account, LoginRequest{IP: ip, UserAgent: userAgent}, st.prevIP)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, account.Username, nil, func() map[string]string {
		return map[string]string{"two_factor": method}
	})
	return result, nil
}

func (e *Engine) issueToken(a *Account, now time.Time, st *loginState) error {
	token, err := internal.NewSessionToken(e.random, a.Username, now)
	if err != nil {
		return err
	}
	a.Token = token
	a.TokenExpiry = now.Add(e.config.Session.Lifetime).UnixMilli()
	st.token = token
	st.expiry = a.TokenExpiry
	return nil
}

func (e *Engine) withClient(ctx context.Context, ip, userAgent string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if ip != "" && clientIPFromContext(ctx) == "" {
		ctx = WithClientIP(ctx, ip)
	}
	if userAgent != "" && userAgentFromContext(ctx) == "" {
		ctx = WithUserAgent(ctx, userAgent)
	}
	return ctx
}

func credentialFailure(remaining int) *LoginResult {
	return &LoginResult{
		Code:              LoginFailed,
		Message:           CredentialFailureMessage,
		RemainingAttempts: remaining,
	}
}
