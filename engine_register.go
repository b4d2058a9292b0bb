package credlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Register starts local signup. The returned plaintext verification token is
// meant for the caller's mail layer; it is never persisted in the clear.
//
// When a verified account already holds the email the call is a silent no-op
// returning an empty token, so responses do not reveal which emails exist.
// An unverified account gets its verification token and password hash
// replaced instead, letting a stalled signup retry cleanly.
func (e *Engine) Register(ctx context.Context, email, pass string) (string, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}

	email = normalizeEmail(email)

	existing, findErr := e.store.FindByEmail(ctx, email)
	if findErr != nil && !errors.Is(findErr, ErrNotFound) {
		return "", findErr
	}
	if findErr == nil && existing.Verified {
		e.emitAudit(ctx, AuditWarn, EventRegisterDuplicate, existing.ID, nil, func() map[string]string {
			return map[string]string{
				"email": email,
			}
		})
		return "", nil
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(e.config.Lifespans.Verification)

	if findErr == nil {
		if err := e.store.SetVerificationToken(ctx, email, hash, token, expiresAt); err != nil {
			return "", err
		}
	} else {
		if _, err := e.store.Insert(ctx, NewAccount{
			Email:               email,
			PasswordHash:        hash,
			Roles:               cloneStrings(e.config.Account.DefaultRoles),
			Provider:            ProviderLocal,
			VerificationToken:   token,
			VerificationExpires: expiresAt,
		}); err != nil {
			return "", err
		}
	}

	e.metricInc(MetricAccountRegistered)
	e.emitAudit(ctx, AuditInfo, EventRegisterRequested, "", nil, func() map[string]string {
		return map[string]string{
			"email": email,
		}
	})

	return token, nil
}

// ConfirmVerification consumes a verification token and marks the account
// verified.
func (e *Engine) ConfirmVerification(ctx context.Context, token string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.FindByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, AuditWarn, EventVerifyAccountFailure, "", ErrNotFound, nil)
		}
		return err
	}

	if time.Now().After(acct.VerificationExpires) {
		e.emitAudit(ctx, AuditWarn, EventVerifyAccountFailure, acct.ID, ErrTokenExpired, nil)
		return ErrTokenExpired
	}

	if err := e.store.MarkVerified(ctx, acct.ID); err != nil {
		return err
	}

	e.metricInc(MetricAccountVerified)
	e.emitAudit(ctx, AuditInfo, EventVerifyAccountSuccess, acct.ID, nil, nil)

	return nil
}
