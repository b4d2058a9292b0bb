package credlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RequestPasswordReset issues a reset token for the email. Unknown emails
// are a silent no-op returning an empty token so the response does not
// reveal which accounts exist; the miss is still audited. A new request
// overwrites any earlier token.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	email = normalizeEmail(email)

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, AuditWarn, EventResetPasswordUserNotFound, "", nil, func() map[string]string {
				return map[string]string{
					"email": email,
				}
			})
			return "", nil
		}
		return "", err
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(e.config.Lifespans.PasswordReset)

	if err := e.store.SetPasswordResetToken(ctx, email, token, expiresAt); err != nil {
		return "", err
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, AuditInfo, EventResetPasswordRequested, acct.ID, nil, nil)

	return token, nil
}

// ConfirmPasswordReset consumes a reset token: the new password hash goes
// in, the token and every refresh record go out, in one store mutation.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.FindByPasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, AuditWarn, EventResetPasswordFailure, "", ErrNotFound, nil)
		}
		return err
	}

	if time.Now().After(acct.PasswordResetExpires) {
		e.emitAudit(ctx, AuditWarn, EventResetPasswordFailure, acct.ID, ErrTokenExpired, nil)
		return ErrTokenExpired
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.store.ApplyPasswordReset(ctx, token, newHash); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmed)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditInfo, EventResetPasswordSuccess, acct.ID, nil, nil)

	return nil
}
