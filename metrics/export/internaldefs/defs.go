// Package internaldefs holds the shared metric name table used by the
// Prometheus and OTel exporters. It is internal to metrics/export.
package internaldefs

import (
	credlock "github.com/credlock/credlock"
)

type CounterDef struct {
	ID   credlock.MetricID
	Name string
	Help string
}

// CounterDefs maps every engine counter to its exported name. Both exporters
// iterate this table so the two surfaces never drift apart.
var CounterDefs = []CounterDef{
	{ID: credlock.MetricLoginSuccess, Name: "credlock_login_success_total", Help: "Successful login attempts."},
	{ID: credlock.MetricLoginFailure, Name: "credlock_login_failure_total", Help: "Failed login attempts."},
	{ID: credlock.MetricLoginRateLimited, Name: "credlock_login_rate_limited_total", Help: "Login attempts rejected by the attempt counter."},
	{ID: credlock.MetricRefreshSuccess, Name: "credlock_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: credlock.MetricRefreshFailure, Name: "credlock_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: credlock.MetricRotationMismatch, Name: "credlock_rotation_mismatch_total", Help: "Valid refresh tokens with no matching registry record."},
	{ID: credlock.MetricLogout, Name: "credlock_logout_total", Help: "Single-session logout operations."},
	{ID: credlock.MetricGlobalLogout, Name: "credlock_global_logout_total", Help: "Global logout operations."},
	{ID: credlock.MetricSessionCreated, Name: "credlock_session_created_total", Help: "Issued refresh token records."},
	{ID: credlock.MetricSessionInvalidated, Name: "credlock_session_invalidated_total", Help: "Invalidated refresh token records."},
	{ID: credlock.MetricPasswordChanged, Name: "credlock_password_changed_total", Help: "Successful password changes."},
	{ID: credlock.MetricPasswordSet, Name: "credlock_password_set_total", Help: "First passwords set on federated accounts."},
	{ID: credlock.MetricPasswordResetRequested, Name: "credlock_password_reset_requested_total", Help: "Password reset requests."},
	{ID: credlock.MetricPasswordResetConfirmed, Name: "credlock_password_reset_confirmed_total", Help: "Consumed password reset tokens."},
	{ID: credlock.MetricEmailChangeRequested, Name: "credlock_email_change_requested_total", Help: "Staged email changes."},
	{ID: credlock.MetricEmailChangeConfirmed, Name: "credlock_email_change_confirmed_total", Help: "Applied email changes."},
	{ID: credlock.MetricAccountRegistered, Name: "credlock_account_registered_total", Help: "Accounts created or re-armed through registration."},
	{ID: credlock.MetricAccountVerified, Name: "credlock_account_verified_total", Help: "Accounts marked verified."},
	{ID: credlock.MetricDeletionScheduled, Name: "credlock_deletion_scheduled_total", Help: "Accounts scheduled for deletion."},
	{ID: credlock.MetricDeletionCancelled, Name: "credlock_deletion_cancelled_total", Help: "Deletion schedules cancelled by login."},
}
