package goGuard

import (
	"context"
	"errors"
	"time"
)

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate resolves a presented session token. An empty token is
// NoCredential, not a rejection. No outcome mutates the account. The error
// is non-nil only when the store could not be reached.
func (e *Engine) Authenticate(ctx context.Context, token string) (AuthOutcome, error) {
	if err := e.ready(); err != nil {
		return AuthOutcome{}, err
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	if token == "" {
		e.metricInc(MetricTokenAbsent)
		return AuthOutcome{Kind: NoCredential}, nil
	}

	account, err := e.store.AccountByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return e.reject(ctx, nil, ReasonInvalidToken), nil
		}
		return AuthOutcome{}, storeErr(err)
	}

	if account.TokenExpiry <= 0 {
		return e.reject(ctx, account, ReasonMalformed), nil
	}
	if e.now().UnixMilli() > account.TokenExpiry {
		return e.reject(ctx, account, ReasonExpired), nil
	}

	e.metricInc(MetricTokenAuthenticated)
	return AuthOutcome{Kind: Authenticated, Account: account}, nil
}

func (e *Engine) reject(ctx context.Context, account *Account, reason RejectReason) AuthOutcome {
	e.metricInc(MetricTokenRejected)
	var id, name string
	if account != nil {
		id, name = account.ID, account.Username
	}
	e.emitAudit(ctx, auditEventTokenRejected, false, id, name, reason.Err(), nil)
	return AuthOutcome{Kind: Rejected, Reason: reason}
}
