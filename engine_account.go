package goGuard

import (
	"context"
)

// DeleteAccount describes the deleteaccount operation and its observable behavior.
//
// DeleteAccount removes the account row. The last enabled administrator
// cannot be deleted and yields ErrLastAdministrator.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	var username string
	err := e.store.DeleteAccount(ctx, accountID, func(a *Account, enabledAdmins int) error {
		username = a.Username
		if a.IsAdmin() && !a.Disabled && enabledAdmins <= 1 {
			return ErrLastAdministrator
		}
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, auditEventAccountDeleted, false, accountID, username, err, nil)
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventAccountDeleted, true, accountID, username, nil, nil)
	return nil
}
