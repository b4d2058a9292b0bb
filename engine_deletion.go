package credlock

import (
	"context"
	"time"
)

// MarkForDeletion schedules the account for deletion after the configured
// grace period. The password must verify when one is on file; federation-only
// accounts are trusted on the authenticated account ID alone. The next
// successful login cancels the schedule.
//
// The engine does not delete anything itself; a sweeper job owns the rows
// whose scheduled time has passed.
func (e *Engine) MarkForDeletion(ctx context.Context, accountID, pass string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	acct, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if acct.PasswordHash != "" {
		ok, err := e.hasher.Verify(pass, acct.PasswordHash)
		if err != nil || !ok {
			e.emitAudit(ctx, AuditWarn, EventDeleteAccountWrongPassword, accountID, ErrVerificationFailed, nil)
			return ErrVerificationFailed
		}
	}

	at := time.Now().Add(e.config.Lifespans.Deletion)

	if err := e.store.ScheduleDeletion(ctx, accountID, at); err != nil {
		return err
	}

	e.metricInc(MetricDeletionScheduled)
	e.emitAudit(ctx, AuditInfo, EventDeleteAccountScheduled, accountID, nil, func() map[string]string {
		return map[string]string{
			"scheduled_at": at.UTC().Format(time.RFC3339),
		}
	})

	return nil
}
