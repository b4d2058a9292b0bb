package credlock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/credlock/credlock/password"
)

func newTestHasher() (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
}

type mockStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	byEmail  map[string]string

	insertErr         error
	updatePasswordErr error
	appendErr         error
	replaceErr        error
	removeErr         error
	clearErr          error
	trimErr           error
	cancelErr         error

	findByIDCalls int
	insertCalls   int
	appendCalls   int
	replaceCalls  int
	removeCalls   int
	clearCalls    int
	trimCalls     int
	cancelCalls   int
}

func newMockStore() *mockStore {
	return &mockStore{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
	}
}

func (m *mockStore) seed(acct Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[acct.ID] = cloneMockAccount(acct)
	m.byEmail[acct.Email] = acct.ID
}

func (m *mockStore) get(id string) Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	return cloneMockAccount(m.accounts[id])
}

func (m *mockStore) drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return
	}
	delete(m.byEmail, acct.Email)
	delete(m.accounts, id)
}

func cloneMockAccount(acct Account) Account {
	out := acct
	out.Roles = append([]string(nil), acct.Roles...)
	out.RefreshTokenHashes = append([]string(nil), acct.RefreshTokenHashes...)
	return out
}

func (m *mockStore) FindByID(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.findByIDCalls++

	acct, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return cloneMockAccount(acct), nil
}

func (m *mockStore) FindByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return Account{}, ErrNotFound
	}
	return cloneMockAccount(m.accounts[id]), nil
}

func (m *mockStore) findByToken(match func(Account) bool) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acct := range m.accounts {
		if match(acct) {
			return cloneMockAccount(acct), nil
		}
	}
	return Account{}, ErrNotFound
}

func (m *mockStore) FindByVerificationToken(_ context.Context, token string) (Account, error) {
	return m.findByToken(func(a Account) bool {
		return token != "" && a.VerificationToken == token
	})
}

func (m *mockStore) FindByPasswordResetToken(_ context.Context, token string) (Account, error) {
	return m.findByToken(func(a Account) bool {
		return token != "" && a.PasswordResetToken == token
	})
}

func (m *mockStore) FindByEmailChangeToken(_ context.Context, token string) (Account, error) {
	return m.findByToken(func(a Account) bool {
		return token != "" && a.EmailChangeToken == token
	})
}

func (m *mockStore) Insert(_ context.Context, input NewAccount) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertCalls++

	if m.insertErr != nil {
		return Account{}, m.insertErr
	}
	if _, taken := m.byEmail[input.Email]; taken {
		return Account{}, ErrConflict
	}

	acct := Account{
		ID:                  fmt.Sprintf("a%d", len(m.accounts)+1),
		Email:               input.Email,
		PasswordHash:        input.PasswordHash,
		Roles:               append([]string(nil), input.Roles...),
		Provider:            input.Provider,
		Verified:            input.Verified,
		VerificationToken:   input.VerificationToken,
		VerificationExpires: input.VerificationExpires,
	}
	m.accounts[acct.ID] = acct
	m.byEmail[acct.Email] = acct.ID

	return cloneMockAccount(acct), nil
}

func (m *mockStore) UpdatePasswordAndClearSessions(_ context.Context, id, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.PasswordHash = newHash
	acct.RefreshTokenHashes = nil
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) SetVerificationToken(_ context.Context, email, passwordHash, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	acct := m.accounts[id]
	acct.PasswordHash = passwordHash
	acct.Verified = false
	acct.VerificationToken = token
	acct.VerificationExpires = expiresAt
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) MarkVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.Verified = true
	acct.VerificationToken = ""
	acct.VerificationExpires = time.Time{}
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) SetPendingEmailChange(_ context.Context, id, pendingEmail, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.PendingEmail = pendingEmail
	acct.EmailChangeToken = token
	acct.EmailChangeExpires = expiresAt
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) ConfirmEmailChange(_ context.Context, id, newEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if other, taken := m.byEmail[newEmail]; taken && other != id {
		return ErrConflict
	}

	delete(m.byEmail, acct.Email)
	acct.Email = newEmail
	acct.PendingEmail = ""
	acct.EmailChangeToken = ""
	acct.EmailChangeExpires = time.Time{}
	m.accounts[id] = acct
	m.byEmail[newEmail] = id
	return nil
}

func (m *mockStore) SetPasswordResetToken(_ context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return ErrNotFound
	}
	acct := m.accounts[id]
	acct.PasswordResetToken = token
	acct.PasswordResetExpires = expiresAt
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) ApplyPasswordReset(_ context.Context, token, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, acct := range m.accounts {
		if token == "" || acct.PasswordResetToken != token {
			continue
		}
		acct.PasswordHash = newHash
		acct.PasswordResetToken = ""
		acct.PasswordResetExpires = time.Time{}
		acct.RefreshTokenHashes = nil
		m.accounts[id] = acct
		return nil
	}
	return ErrNotFound
}

func (m *mockStore) ScheduleDeletion(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.DeletionPending = true
	acct.DeletionScheduledAt = at
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) CancelScheduledDeletion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelCalls++

	if m.cancelErr != nil {
		return m.cancelErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.DeletionPending = false
	acct.DeletionScheduledAt = time.Time{}
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) AppendRefreshToken(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendCalls++

	if m.appendErr != nil {
		return m.appendErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.RefreshTokenHashes = append(acct.RefreshTokenHashes, hash)
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) ReplaceRefreshToken(_ context.Context, id, oldHash, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replaceCalls++

	if m.replaceErr != nil {
		return m.replaceErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	for i, h := range acct.RefreshTokenHashes {
		if h == oldHash {
			acct.RefreshTokenHashes[i] = newHash
			m.accounts[id] = acct
			return nil
		}
	}
	acct.RefreshTokenHashes = append(acct.RefreshTokenHashes, newHash)
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) RemoveRefreshToken(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeCalls++

	if m.removeErr != nil {
		return m.removeErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	kept := acct.RefreshTokenHashes[:0]
	for _, h := range acct.RefreshTokenHashes {
		if h != hash {
			kept = append(kept, h)
		}
	}
	acct.RefreshTokenHashes = kept
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) ClearRefreshTokens(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearCalls++

	if m.clearErr != nil {
		return m.clearErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.RefreshTokenHashes = nil
	m.accounts[id] = acct
	return nil
}

func (m *mockStore) TrimRefreshTokens(_ context.Context, id string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trimCalls++

	if m.trimErr != nil {
		return m.trimErr
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if excess := len(acct.RefreshTokenHashes) - max; excess > 0 {
		acct.RefreshTokenHashes = append([]string(nil), acct.RefreshTokenHashes[excess:]...)
	}
	m.accounts[id] = acct
	return nil
}

func newTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessKey = []byte("access-signing-key-for-tests-001")
	cfg.Tokens.RefreshKey = []byte("refresh-signing-key-for-tests-01")
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestEngine(t *testing.T, rdb *redis.Client, store CredentialStore) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(newTestConfig()).
		WithRedis(rdb).
		WithStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestEngineWithSink(t *testing.T, rdb *redis.Client, store CredentialStore, sink AuditSink) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(newTestConfig()).
		WithRedis(rdb).
		WithStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// seedVerifiedAccount hashes the password with test parameters and seeds a
// verified local account.
func seedVerifiedAccount(t *testing.T, store *mockStore, id, email, pass string) Account {
	t.Helper()

	acct := Account{
		ID:       id,
		Email:    email,
		Roles:    []string{"USER"},
		Provider: ProviderLocal,
		Verified: true,
	}
	if pass != "" {
		acct.PasswordHash = testHash(t, pass)
	}
	store.seed(acct)
	return acct
}

func testHash(t *testing.T, secret string) string {
	t.Helper()

	hasher, err := newTestHasher()
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return hash
}

// collectAuditCodes closes the engine to flush the dispatcher, then drains
// the sink channel.
func collectAuditCodes(engine *Engine, sink *ChannelSink) []string {
	engine.Close()

	var codes []string
	for {
		select {
		case event := <-sink.Events():
			codes = append(codes, event.Code)
		default:
			return codes
		}
	}
}

func containsCode(codes []string, want string) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}
