package credlock

import (
	"context"
	"errors"
)

// Refresh rotates a refresh token: the presented token is validated, matched
// against the account's hashed registry, and atomically replaced by a fresh
// pair's record. A token that parses but has no registry record has been
// consumed, evicted, or revoked and is rejected with ErrTokenNotRecognized.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	claims, err := e.refreshTokens.Parse(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, ErrInvalidToken
	}

	acct, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}

	matched := e.matchRefreshRecord(refreshToken, acct.RefreshTokenHashes)
	if matched == "" {
		e.metricInc(MetricRotationMismatch)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditError, EventTokenRotationMismatch, acct.ID, ErrTokenNotRecognized, nil)
		return TokenPair{}, ErrTokenNotRecognized
	}

	// Claims are rebuilt from the account record, not copied from the old
	// token, so role changes take effect on the next rotation.
	access, err := e.accessTokens.Sign(acct.ID, acct.Roles)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.refreshTokens.Sign(acct.ID, acct.Roles)
	if err != nil {
		return TokenPair{}, err
	}
	newHash, err := e.hasher.Hash(refresh)
	if err != nil {
		return TokenPair{}, err
	}

	if err := e.store.ReplaceRefreshToken(ctx, acct.ID, matched, newHash); err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditInfo, EventTokenRefreshed, acct.ID, nil, nil)

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
