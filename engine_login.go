package credlock

import (
	"context"
	"errors"
)

// Login authenticates a local account by email and password. The attempt
// counter is charged before the account lookup, so unknown emails burn
// attempts too. An empty password is a supplied, failing password; it never
// turns into a passwordless login.
func (e *Engine) Login(ctx context.Context, email, password string) (TokenPair, error) {
	return e.login(ctx, email, &password)
}

// LoginFederated completes a trusted federation callback: the caller has
// already authenticated the email with the named provider. When no account
// holds the email, a verified passwordless account is provisioned carrying
// the provider tag.
func (e *Engine) LoginFederated(ctx context.Context, email, provider string) (TokenPair, error) {
	if e == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	_, err := e.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_, err = e.store.Insert(ctx, NewAccount{
			Email:    email,
			Roles:    cloneStrings(e.config.Account.DefaultRoles),
			Provider: provider,
			Verified: true,
		})
		// A concurrent callback may have provisioned the account first;
		// fall through to the login in that case.
		if err != nil && !errors.Is(err, ErrConflict) {
			return TokenPair{}, err
		}
	} else if err != nil {
		return TokenPair{}, err
	}

	return e.login(ctx, email, nil)
}

// login is the shared tail of both entry points. A nil password means the
// caller vouches for the identity and the password check is skipped.
func (e *Engine) login(ctx context.Context, email string, password *string) (TokenPair, error) {
	if e == nil || e.store == nil || e.limiter == nil || e.hasher == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	attempts, err := e.limiter.CheckAndIncrement(ctx, email)
	if err != nil {
		// Fail closed: an unreachable counter must not open the door.
		return TokenPair{}, err
	}
	if attempts > int64(e.config.RateLimit.MaxLoginAttempts) {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, AuditWarn, EventLoginRateLimitExceeded, "", ErrTooManyAttempts, func() map[string]string {
			return map[string]string{
				"email": email,
			}
		})
		return TokenPair{}, ErrTooManyAttempts
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditWarn, EventLoginUserNotFound, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{
					"email": email,
				}
			})
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	if !acct.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditWarn, EventLoginUnverifiedUser, acct.ID, ErrAccountUnverified, nil)
		return TokenPair{}, ErrAccountUnverified
	}

	if password != nil {
		// A passwordless account has no hash to check against, so any
		// supplied password fails the same way a wrong one does.
		ok := false
		if acct.PasswordHash != "" && *password != "" {
			ok, err = e.hasher.Verify(*password, acct.PasswordHash)
			if err != nil {
				ok = false
			}
		}
		if !ok {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditWarn, EventLoginWrongPassword, acct.ID, ErrInvalidCredentials, nil)
			return TokenPair{}, ErrInvalidCredentials
		}
	}

	pair, err := e.issueSessionTokens(ctx, acct)
	if err != nil {
		return TokenPair{}, err
	}

	if acct.DeletionPending {
		if err := e.store.CancelScheduledDeletion(ctx, acct.ID); err != nil {
			return TokenPair{}, err
		}
		e.metricInc(MetricDeletionCancelled)
		e.emitAudit(ctx, AuditInfo, EventDeleteAccountCancelled, acct.ID, nil, nil)
	}

	if err := e.limiter.Clear(ctx, email); err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditInfo, EventLoginSuccess, acct.ID, nil, nil)

	return pair, nil
}
