package credlock

import (
	"context"
	"time"
)

// Provider tags recorded on accounts at creation time. Federated providers
// beyond these are allowed; the engine treats the tag as opaque.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Account is the credential record managed through [CredentialStore].
//
// PasswordHash is empty for federation-only accounts; such accounts cannot
// log in with a password until SetPassword establishes one.
// RefreshTokenHashes is ordered oldest first and bounded by the configured
// retention limit.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	Provider     string

	Verified            bool
	VerificationToken   string
	VerificationExpires time.Time

	PendingEmail       string
	EmailChangeToken   string
	EmailChangeExpires time.Time

	PasswordResetToken   string
	PasswordResetExpires time.Time

	DeletionPending     bool
	DeletionScheduledAt time.Time

	RefreshTokenHashes []string
}

// NewAccount is the insert payload for [CredentialStore.Insert]. Federated
// provisioning passes Verified=true and an empty PasswordHash.
type NewAccount struct {
	Email               string
	PasswordHash        string
	Roles               []string
	Provider            string
	Verified            bool
	VerificationToken   string
	VerificationExpires time.Time
}

// CredentialStore is the persistence contract the engine runs against.
// Implementations must return [ErrNotFound] for missing accounts and tokens
// and [ErrConflict] for email uniqueness violations. Every mutation must be
// durable when the call returns.
//
// Refresh-token mutations operate on the account's ordered hash registry:
// Append adds to the tail, Replace atomically swaps a matched record in place
// (appending instead when the old record is already gone), and Trim keeps the
// newest max entries.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByVerificationToken(ctx context.Context, token string) (Account, error)
	FindByPasswordResetToken(ctx context.Context, token string) (Account, error)
	FindByEmailChangeToken(ctx context.Context, token string) (Account, error)
	Insert(ctx context.Context, input NewAccount) (Account, error)

	// UpdatePasswordAndClearSessions swaps the password hash and removes
	// every refresh-token record in one durable step. Shared by password
	// change, set, and reset.
	UpdatePasswordAndClearSessions(ctx context.Context, id, newHash string) error

	// SetVerificationToken re-arms verification for an existing unverified
	// account, replacing its password hash alongside the token.
	SetVerificationToken(ctx context.Context, email, passwordHash, token string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id string) error

	SetPendingEmailChange(ctx context.Context, id, pendingEmail, token string, expiresAt time.Time) error
	ConfirmEmailChange(ctx context.Context, id, newEmail string) error

	SetPasswordResetToken(ctx context.Context, email, token string, expiresAt time.Time) error
	// ApplyPasswordReset consumes the reset token: new hash in, token and
	// all refresh records out, atomically.
	ApplyPasswordReset(ctx context.Context, token, newHash string) error

	ScheduleDeletion(ctx context.Context, id string, at time.Time) error
	CancelScheduledDeletion(ctx context.Context, id string) error

	AppendRefreshToken(ctx context.Context, id, hash string) error
	ReplaceRefreshToken(ctx context.Context, id, oldHash, newHash string) error
	RemoveRefreshToken(ctx context.Context, id, hash string) error
	ClearRefreshTokens(ctx context.Context, id string) error
	TrimRefreshTokens(ctx context.Context, id string, max int) error
}
