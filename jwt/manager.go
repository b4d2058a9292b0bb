// Package jwt wraps golang-jwt signing and validation for the engine's two
// token classes. The engine holds one Manager per class (access, refresh),
// each with its own key and TTL.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	ErrInvalidKey    = errors.New("invalid signing key")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Config configures one Manager. For HS256 the Key is the shared secret; for
// Ed25519 it is a 32-byte seed, a 64-byte private key, or PEM.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	Key           []byte
	Issuer        string
	Leeway        time.Duration
}

// SessionClaims is the claim set carried by both token classes. The jti
// makes every signed token unique even within one wall-clock second.
type SessionClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Key) == 0 {
		return nil, ErrInvalidKey
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.Key
		m.verifyKey = cfg.Key
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.Key)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verifyKey = priv.Public()
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// Sign issues a token for the subject with the manager's TTL.
func (m *Manager) Sign(subject string, roles []string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
}

// Parse validates signature, expiry, and issuer, and returns the claims.
func (m *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// Subject extracts the sub claim WITHOUT verifying the signature or expiry.
// Only best-effort cleanup paths (logout on an expired token) may use it;
// never trust the result for authentication.
func (m *Manager) Subject(tokenStr string) (string, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, ErrInvalidKey
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return edKey, nil
}
