package credlock

import "context"

// ChangePassword rotates the password of an account that already has one.
// Every refresh record is cleared in the same store mutation, so all
// sessions end with the old password.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	if currentPassword == newPassword {
		e.emitAudit(ctx, AuditWarn, EventChangePasswordReuse, accountID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.PasswordHash == "" {
		// Federation-only account; SetPassword is the right entry point.
		return ErrConflict
	}

	ok, err := e.hasher.Verify(currentPassword, acct.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, AuditWarn, EventChangePasswordWrongPassword, accountID, ErrVerificationFailed, nil)
		return ErrVerificationFailed
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.store.UpdatePasswordAndClearSessions(ctx, accountID, newHash); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditInfo, EventChangePasswordSuccess, accountID, nil, nil)

	return nil
}

// SetPassword establishes a first password on a passwordless (federated)
// account. Accounts that already have a password must use ChangePassword.
func (e *Engine) SetPassword(ctx context.Context, accountID, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.PasswordHash != "" {
		e.emitAudit(ctx, AuditWarn, EventSetPasswordConflict, accountID, ErrConflict, nil)
		return ErrConflict
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.store.UpdatePasswordAndClearSessions(ctx, accountID, newHash); err != nil {
		return err
	}

	e.metricInc(MetricPasswordSet)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditInfo, EventSetPasswordSuccess, accountID, nil, nil)

	return nil
}
