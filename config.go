package credlock

import (
	"errors"
	"time"
)

// Config is the full engine configuration tree. Zero values are filled in
// from DefaultConfig during Build; Validate rejects combinations the engine
// cannot run with.
type Config struct {
	Tokens    TokenConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Refresh   RefreshConfig
	Lifespans LifespanConfig
	Account   AccountConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig drives both JWT signers. Access and refresh tokens are signed
// with independent keys so a leaked refresh key cannot mint access tokens.
type TokenConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"

	// HS256: raw secrets. Ed25519: 32-byte seeds or 64-byte private keys.
	AccessKey  []byte
	RefreshKey []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Issuer string
	Leeway time.Duration
}

// PasswordConfig holds the argon2id parameters used for password hashes and
// refresh-token hashes alike.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RateLimitConfig bounds login attempts per normalized email within a fixed
// window. The counter lives in Redis and the engine fails closed when the
// backend is unreachable.
type RateLimitConfig struct {
	MaxLoginAttempts int
	Window           time.Duration
	RedisPrefix      string
}

// RefreshConfig bounds the per-account refresh-token registry.
type RefreshConfig struct {
	MaxTokensPerAccount int
}

// LifespanConfig sets the validity window for each purpose token and the
// grace period between deletion request and the scheduled deletion time.
type LifespanConfig struct {
	Verification  time.Duration
	PasswordReset time.Duration
	EmailChange   time.Duration
	Deletion      time.Duration
}

// AccountConfig covers account provisioning defaults.
type AccountConfig struct {
	DefaultRoles []string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration. Token keys must still be
// supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			SigningMethod: "hs256",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 5,
			Window:           5 * time.Minute,
			RedisPrefix:      "cl:la:",
		},
		Refresh: RefreshConfig{
			MaxTokensPerAccount: 5,
		},
		Lifespans: LifespanConfig{
			Verification:  24 * time.Hour,
			PasswordReset: 1 * time.Hour,
			EmailChange:   24 * time.Hour,
			Deletion:      30 * 24 * time.Hour,
		},
		Account: AccountConfig{
			DefaultRoles: []string{"USER"},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch c.Tokens.SigningMethod {
	case "hs256", "ed25519":
	default:
		return errors.New("config: unsupported signing method")
	}
	if len(c.Tokens.AccessKey) == 0 || len(c.Tokens.RefreshKey) == 0 {
		return errors.New("config: access and refresh keys required")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Tokens.RefreshTTL <= c.Tokens.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	if c.RateLimit.MaxLoginAttempts <= 0 {
		return errors.New("config: max login attempts must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: rate limit window must be positive")
	}
	if c.Refresh.MaxTokensPerAccount <= 0 {
		return errors.New("config: refresh retention must be positive")
	}
	if c.Lifespans.Verification <= 0 ||
		c.Lifespans.PasswordReset <= 0 ||
		c.Lifespans.EmailChange <= 0 ||
		c.Lifespans.Deletion <= 0 {
		return errors.New("config: lifespans must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("config: audit buffer size must not be negative")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.AccessKey = cloneBytes(cfg.Tokens.AccessKey)
	out.Tokens.RefreshKey = cloneBytes(cfg.Tokens.RefreshKey)
	out.Account.DefaultRoles = cloneStrings(cfg.Account.DefaultRoles)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
