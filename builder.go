package credlock

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/credlock/credlock/internal/rate"
	"github.com/credlock/credlock/jwt"
	"github.com/credlock/credlock/password"
)

// Builder assembles an Engine. A Builder is single-use: Build returns an
// error when called twice.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  CredentialStore
	sink   AuditSink
	logger zerolog.Logger

	loggerSet bool
	built     bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the login attempt counter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the credential store the engine runs against.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the sink that receives audit events. Defaults to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the logger for internal warnings the engine swallows
// (best-effort logout failures and the like). Defaults to zerolog.Nop.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the dependencies, and returns the
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	accessTokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Tokens.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.Tokens.SigningMethod),
		Key:           cloneBytes(cfg.Tokens.AccessKey),
		Issuer:        cfg.Tokens.Issuer,
		Leeway:        cfg.Tokens.Leeway,
	})
	if err != nil {
		return nil, err
	}
	refreshTokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Tokens.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.Tokens.SigningMethod),
		Key:           cloneBytes(cfg.Tokens.RefreshKey),
		Issuer:        cfg.Tokens.Issuer,
		Leeway:        cfg.Tokens.Leeway,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if !b.loggerSet {
		logger = zerolog.Nop()
	}

	engine := &Engine{
		config:        cfg,
		store:         b.store,
		hasher:        hasher,
		accessTokens:  accessTokens,
		refreshTokens: refreshTokens,
		logger:        logger,
	}
	engine.limiter = rate.New(b.redis, rate.Config{
		MaxAttempts: cfg.RateLimit.MaxLoginAttempts,
		Window:      cfg.RateLimit.Window,
		KeyPrefix:   cfg.RateLimit.RedisPrefix,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
