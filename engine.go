package credlock

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/credlock/credlock/internal/rate"
	"github.com/credlock/credlock/jwt"
	"github.com/credlock/credlock/password"
)

// Engine orchestrates the session and credential lifecycle flows. Construct
// it through [Builder.Build]; after that it is immutable and safe for
// concurrent use.
type Engine struct {
	config        Config
	store         CredentialStore
	limiter       *rate.Limiter
	hasher        *password.Argon2
	accessTokens  *jwt.Manager
	refreshTokens *jwt.Manager
	audit         *auditDispatcher
	metrics       *Metrics
	logger        zerolog.Logger
}

// Close drains and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	level AuditLevel,
	code string,
	actorID string,
	err error,
	detailsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	details := map[string]string{}
	if ip := clientIPFromContext(ctx); ip != "" {
		details["ip"] = ip
	}
	if path := requestPathFromContext(ctx); path != "" {
		details["path"] = path
	}
	if method := requestMethodFromContext(ctx); method != "" {
		details["method"] = method
	}
	if detailsBuilder != nil {
		for k, v := range detailsBuilder() {
			details[k] = v
		}
	}
	if len(details) == 0 {
		details = nil
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Code:      code,
		ActorID:   actorID,
		Details:   details,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

// issueSessionTokens signs a fresh access/refresh pair for the account and
// makes the hashed refresh record durable before returning it. The trim
// after the append is what enforces FIFO retention.
func (e *Engine) issueSessionTokens(ctx context.Context, acct Account) (TokenPair, error) {
	access, err := e.accessTokens.Sign(acct.ID, acct.Roles)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.refreshTokens.Sign(acct.ID, acct.Roles)
	if err != nil {
		return TokenPair{}, err
	}
	hashed, err := e.hasher.Hash(refresh)
	if err != nil {
		return TokenPair{}, err
	}

	if err := e.store.AppendRefreshToken(ctx, acct.ID, hashed); err != nil {
		return TokenPair{}, err
	}
	if err := e.store.TrimRefreshTokens(ctx, acct.ID, e.config.Refresh.MaxTokensPerAccount); err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricSessionCreated)

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// matchRefreshRecord finds the stored hash that the presented token verifies
// against. Hashes are salted, so equality requires a verify per record.
func (e *Engine) matchRefreshRecord(token string, hashes []string) string {
	for _, hash := range hashes {
		ok, err := e.hasher.Verify(token, hash)
		if err == nil && ok {
			return hash
		}
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
