package credlock

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// password login against a passwordless account. Callers must not be
	// able to tell these apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountUnverified rejects login before email verification completes.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrTooManyAttempts rejects login once the attempt counter for the
	// email exceeds the configured window maximum.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidToken marks a refresh token that fails signature or expiry
	// validation, or whose subject no longer exists.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenNotRecognized marks a well-formed refresh token with no
	// matching record in the account's registry: consumed, evicted, or
	// revoked.
	ErrTokenNotRecognized = errors.New("token not recognized")
	// ErrTokenExpired marks a purpose token presented past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrVerificationFailed marks a failed password confirmation on an
	// authenticated operation (change password, change email, deletion).
	ErrVerificationFailed = errors.New("password verification failed")
	// ErrPasswordReuse rejects a password change where the new password
	// equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrConflict marks a uniqueness or state conflict: duplicate email,
	// SetPassword on an account that already has one.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned by stores for missing accounts and tokens.
	ErrNotFound = errors.New("not found")
	// ErrEngineNotReady is returned when an Engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
