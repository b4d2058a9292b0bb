// Package password provides argon2id hashing in PHC string format. The
// engine uses one hasher for account passwords and refresh-token records
// alike, so a leaked store never exposes a usable secret.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minInputBytes         = 10
	algorithmID           = "argon2id"
)

var ErrHashFormat = errors.New("invalid argon2id hash format")

type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Argon2 is a configured argon2id hasher. Safe for concurrent use.
type Argon2 struct {
	config Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return nil, errors.New("argon2 time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a PHC-encoded argon2id hash with a fresh random salt. Input
// bytes are used exactly as provided, no Unicode normalization.
func (a *Argon2) Hash(secret string) (string, error) {
	if len(secret) < minInputBytes {
		return "", errors.New("input must be at least 10 bytes")
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encodedHash and
// compares in constant time. The stored parameters win over the hasher's own
// configuration, so old hashes keep verifying after a parameter bump.
func (a *Argon2) Verify(secret, encodedHash string) (bool, error) {
	memory, timeCost, parallelism, salt, want, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey(
		[]byte(secret),
		salt,
		timeCost,
		memory,
		parallelism,
		uint32(len(want)),
	)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parsePHC(encodedHash string) (memory, timeCost uint32, parallelism uint8, salt, hash []byte, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return 0, 0, 0, nil, nil, ErrHashFormat
	}

	version, convErr := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || convErr != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, ErrHashFormat
	}

	var m, t, p uint64
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return 0, 0, 0, nil, nil, ErrHashFormat
		}
		v, convErr := strconv.ParseUint(kv[1], 10, 32)
		if convErr != nil {
			return 0, 0, 0, nil, nil, ErrHashFormat
		}
		switch kv[0] {
		case "m":
			m = v
		case "t":
			t = v
		case "p":
			p = v
		default:
			return 0, 0, 0, nil, nil, ErrHashFormat
		}
	}
	if m < uint64(minMemoryKB) || t < uint64(minTimeCost) || p < uint64(minParallelism) || p > 255 {
		return 0, 0, 0, nil, nil, ErrHashFormat
	}

	salt, convErr = base64.StdEncoding.DecodeString(parts[4])
	if convErr != nil || len(salt) < int(minSaltLength) {
		return 0, 0, 0, nil, nil, ErrHashFormat
	}
	hash, convErr = base64.StdEncoding.DecodeString(parts[5])
	if convErr != nil || len(hash) == 0 {
		return 0, 0, 0, nil, nil, ErrHashFormat
	}

	return uint32(m), uint32(t), uint8(p), salt, hash, nil
}
