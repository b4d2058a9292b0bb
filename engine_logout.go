package credlock

import "context"

// Logout removes the refresh record matching the presented token. It is
// best-effort and always returns nil: an attacker probing with stolen or
// garbage tokens learns nothing from the response. Internal failures are
// logged and audited instead.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.store == nil || e.hasher == nil {
		return nil
	}

	subject := ""
	if claims, err := e.refreshTokens.Parse(refreshToken); err == nil {
		subject = claims.Subject
	} else {
		// An expired token should still clear its record, so fall back
		// to the unverified subject claim.
		subject, err = e.refreshTokens.Subject(refreshToken)
		if err != nil || subject == "" {
			e.emitAudit(ctx, AuditWarn, EventLogoutMalformedToken, "", ErrInvalidToken, nil)
			return nil
		}
	}

	acct, err := e.store.FindByID(ctx, subject)
	if err != nil {
		e.logger.Warn().Err(err).Msg("logout: account lookup failed")
		return nil
	}

	matched := e.matchRefreshRecord(refreshToken, acct.RefreshTokenHashes)
	if matched == "" {
		return nil
	}

	if err := e.store.RemoveRefreshToken(ctx, acct.ID, matched); err != nil {
		e.logger.Warn().Err(err).Msg("logout: refresh record removal failed")
		return nil
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditInfo, EventLogoutSuccess, acct.ID, nil, nil)

	return nil
}

// GlobalLogout clears every refresh record for the account, ending all of
// its sessions at once.
func (e *Engine) GlobalLogout(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := e.store.ClearRefreshTokens(ctx, accountID); err != nil {
		return err
	}

	e.metricInc(MetricGlobalLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, AuditInfo, EventGlobalLogout, accountID, nil, nil)

	return nil
}
