package credlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RequestEmailChange stages an address change. The current password must
// verify, and the target address must be free. The returned plaintext token
// goes to the caller's mail layer; issuing a new request overwrites any
// earlier pending change.
func (e *Engine) RequestEmailChange(ctx context.Context, accountID, newEmail, pass string) (string, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}

	newEmail = normalizeEmail(newEmail)

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, AuditWarn, EventChangeEmailUserNotFound, accountID, ErrNotFound, nil)
		}
		return "", err
	}

	ok := false
	if acct.PasswordHash != "" {
		ok, err = e.hasher.Verify(pass, acct.PasswordHash)
		if err != nil {
			ok = false
		}
	}
	if !ok {
		e.emitAudit(ctx, AuditWarn, EventChangeEmailWrongPassword, accountID, ErrVerificationFailed, nil)
		return "", ErrVerificationFailed
	}

	if _, err := e.store.FindByEmail(ctx, newEmail); err == nil {
		e.emitAudit(ctx, AuditWarn, EventChangeEmailConflict, accountID, ErrConflict, func() map[string]string {
			return map[string]string{
				"pending_email": newEmail,
			}
		})
		return "", ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(e.config.Lifespans.EmailChange)

	if err := e.store.SetPendingEmailChange(ctx, accountID, newEmail, token, expiresAt); err != nil {
		return "", err
	}

	e.metricInc(MetricEmailChangeRequested)
	e.emitAudit(ctx, AuditInfo, EventChangeEmailRequested, accountID, nil, func() map[string]string {
		return map[string]string{
			"pending_email": newEmail,
		}
	})

	return token, nil
}

// ConfirmEmailChange consumes an email-change token and applies the staged
// address swap.
func (e *Engine) ConfirmEmailChange(ctx context.Context, token string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.FindByEmailChangeToken(ctx, token)
	if err != nil {
		return err
	}

	if time.Now().After(acct.EmailChangeExpires) {
		return ErrTokenExpired
	}
	if acct.PendingEmail == "" {
		return ErrConflict
	}

	if err := e.store.ConfirmEmailChange(ctx, acct.ID, acct.PendingEmail); err != nil {
		return err
	}

	e.metricInc(MetricEmailChangeConfirmed)
	e.emitAudit(ctx, AuditInfo, EventChangeEmailConfirmed, acct.ID, nil, func() map[string]string {
		return map[string]string{
			"email": acct.PendingEmail,
		}
	})

	return nil
}
