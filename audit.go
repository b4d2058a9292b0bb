package credlock

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditLevel classifies audit events by severity.
type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warn"
	AuditError AuditLevel = "error"
)

// Audit event codes. Codes are stable strings; sinks may filter or route on
// them without parsing the rest of the event.
const (
	EventLoginSuccess           = "LOGIN_SUCCESS"
	EventLoginRateLimitExceeded = "LOGIN_RATE_LIMIT_EXCEEDED"
	EventLoginUserNotFound      = "LOGIN_USER_NOT_FOUND"
	EventLoginUnverifiedUser    = "LOGIN_UNVERIFIED_USER"
	EventLoginWrongPassword     = "LOGIN_WRONG_PASSWORD"

	EventTokenRefreshed        = "TOKEN_REFRESHED"
	EventTokenRotationMismatch = "TOKEN_ROTATION_MISMATCH"

	EventLogoutSuccess        = "LOGOUT_SUCCESS"
	EventLogoutMalformedToken = "LOGOUT_MALFORMED_TOKEN"
	EventGlobalLogout         = "GLOBAL_LOGOUT"

	EventChangePasswordSuccess       = "CHANGE_PASSWORD_SUCCESS"
	EventChangePasswordWrongPassword = "CHANGE_PASSWORD_WRONG_PASSWORD"
	EventChangePasswordReuse         = "CHANGE_PASSWORD_REUSE"
	EventSetPasswordSuccess          = "SET_PASSWORD_SUCCESS"
	EventSetPasswordConflict         = "SET_PASSWORD_CONFLICT"

	EventDeleteAccountScheduled     = "DELETE_ACCOUNT_SCHEDULED"
	EventDeleteAccountWrongPassword = "DELETE_ACCOUNT_WRONG_PASSWORD"
	EventDeleteAccountCancelled     = "DELETE_ACCOUNT_CANCELLED"

	EventRegisterRequested    = "REGISTER_REQUESTED"
	EventRegisterDuplicate    = "REGISTER_DUPLICATE"
	EventVerifyAccountSuccess = "VERIFY_ACCOUNT_SUCCESS"
	EventVerifyAccountFailure = "VERIFY_ACCOUNT_FAILURE"

	EventChangeEmailRequested     = "CHANGE_EMAIL_REQUESTED"
	EventChangeEmailWrongPassword = "CHANGE_EMAIL_WRONG_PASSWORD"
	EventChangeEmailConflict      = "CHANGE_EMAIL_CONFLICT"
	EventChangeEmailConfirmed     = "CHANGE_EMAIL_CONFIRMED"
	EventChangeEmailUserNotFound  = "CHANGE_EMAIL_USER_NOT_FOUND"

	EventResetPasswordRequested    = "RESET_PASSWORD_REQUESTED"
	EventResetPasswordUserNotFound = "RESET_PASSWORD_USER_NOT_FOUND"
	EventResetPasswordSuccess      = "RESET_PASSWORD_SUCCESS"
	EventResetPasswordFailure      = "RESET_PASSWORD_FAILURE"
)

// AuditEvent is the record handed to sinks. Details carries request context
// (ip, path, method) plus flow-specific keys.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     AuditLevel        `json:"level"`
	Code      string            `json:"code"`
	ActorID   string            `json:"actor_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine. Emit must
// be safe for concurrent use and should return promptly; slow sinks cause
// drops (or backpressure, depending on AuditConfig.DropIfFull).
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel, useful for tests and
// in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
