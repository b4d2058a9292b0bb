// Package memory provides an in-process CredentialStore. It is the reference
// implementation of the store contract and the backing store for tests and
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/credlock/credlock"
)

// Store is a mutex-guarded CredentialStore. Safe for concurrent use. All
// returned accounts are deep copies; callers cannot mutate stored state.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*credlock.Account
	byEmail  map[string]string
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*credlock.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *Store) FindByID(_ context.Context, id string) (credlock.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.Account{}, credlock.ErrNotFound
	}
	return cloneAccount(acct), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (credlock.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return credlock.Account{}, credlock.ErrNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *Store) FindByVerificationToken(_ context.Context, token string) (credlock.Account, error) {
	return s.findByToken(token, func(a *credlock.Account) string { return a.VerificationToken })
}

func (s *Store) FindByPasswordResetToken(_ context.Context, token string) (credlock.Account, error) {
	return s.findByToken(token, func(a *credlock.Account) string { return a.PasswordResetToken })
}

func (s *Store) FindByEmailChangeToken(_ context.Context, token string) (credlock.Account, error) {
	return s.findByToken(token, func(a *credlock.Account) string { return a.EmailChangeToken })
}

func (s *Store) findByToken(token string, tokenOf func(*credlock.Account) string) (credlock.Account, error) {
	if token == "" {
		return credlock.Account{}, credlock.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acct := range s.accounts {
		if tokenOf(acct) == token {
			return cloneAccount(acct), nil
		}
	}
	return credlock.Account{}, credlock.ErrNotFound
}

func (s *Store) Insert(_ context.Context, input credlock.NewAccount) (credlock.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[input.Email]; taken {
		return credlock.Account{}, credlock.ErrConflict
	}

	acct := &credlock.Account{
		ID:                  uuid.NewString(),
		Email:               input.Email,
		PasswordHash:        input.PasswordHash,
		Roles:               cloneStrings(input.Roles),
		Provider:            input.Provider,
		Verified:            input.Verified,
		VerificationToken:   input.VerificationToken,
		VerificationExpires: input.VerificationExpires,
	}
	s.accounts[acct.ID] = acct
	s.byEmail[acct.Email] = acct.ID

	return cloneAccount(acct), nil
}

func (s *Store) UpdatePasswordAndClearSessions(_ context.Context, id, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.PasswordHash = newHash
	acct.RefreshTokenHashes = nil

	return nil
}

func (s *Store) SetVerificationToken(_ context.Context, email, passwordHash, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return credlock.ErrNotFound
	}

	acct := s.accounts[id]
	acct.PasswordHash = passwordHash
	acct.Verified = false
	acct.VerificationToken = token
	acct.VerificationExpires = expiresAt

	return nil
}

func (s *Store) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.Verified = true
	acct.VerificationToken = ""
	acct.VerificationExpires = time.Time{}

	return nil
}

func (s *Store) SetPendingEmailChange(_ context.Context, id, pendingEmail, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.PendingEmail = pendingEmail
	acct.EmailChangeToken = token
	acct.EmailChangeExpires = expiresAt

	return nil
}

func (s *Store) ConfirmEmailChange(_ context.Context, id, newEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}
	if takenBy, taken := s.byEmail[newEmail]; taken && takenBy != id {
		return credlock.ErrConflict
	}

	delete(s.byEmail, acct.Email)
	acct.Email = newEmail
	s.byEmail[newEmail] = id

	acct.PendingEmail = ""
	acct.EmailChangeToken = ""
	acct.EmailChangeExpires = time.Time{}

	return nil
}

func (s *Store) SetPasswordResetToken(_ context.Context, email, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return credlock.ErrNotFound
	}

	acct := s.accounts[id]
	acct.PasswordResetToken = token
	acct.PasswordResetExpires = expiresAt

	return nil
}

func (s *Store) ApplyPasswordReset(_ context.Context, token, newHash string) error {
	if token == "" {
		return credlock.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.accounts {
		if acct.PasswordResetToken != token {
			continue
		}

		acct.PasswordHash = newHash
		acct.PasswordResetToken = ""
		acct.PasswordResetExpires = time.Time{}
		acct.RefreshTokenHashes = nil

		return nil
	}
	return credlock.ErrNotFound
}

func (s *Store) ScheduleDeletion(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.DeletionPending = true
	acct.DeletionScheduledAt = at

	return nil
}

func (s *Store) CancelScheduledDeletion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.DeletionPending = false
	acct.DeletionScheduledAt = time.Time{}

	return nil
}

func (s *Store) AppendRefreshToken(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.RefreshTokenHashes = append(acct.RefreshTokenHashes, hash)

	return nil
}

// ReplaceRefreshToken swaps oldHash for newHash in place. When oldHash is no
// longer present the new record is appended instead, so a rotation that
// raced a removal still leaves the caller with a working token.
func (s *Store) ReplaceRefreshToken(_ context.Context, id, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	for i, h := range acct.RefreshTokenHashes {
		if h == oldHash {
			acct.RefreshTokenHashes[i] = newHash
			return nil
		}
	}
	acct.RefreshTokenHashes = append(acct.RefreshTokenHashes, newHash)

	return nil
}

func (s *Store) RemoveRefreshToken(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	kept := acct.RefreshTokenHashes[:0]
	for _, h := range acct.RefreshTokenHashes {
		if h != hash {
			kept = append(kept, h)
		}
	}
	acct.RefreshTokenHashes = kept

	return nil
}

func (s *Store) ClearRefreshTokens(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	acct.RefreshTokenHashes = nil

	return nil
}

func (s *Store) TrimRefreshTokens(_ context.Context, id string, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return credlock.ErrNotFound
	}

	if max > 0 && len(acct.RefreshTokenHashes) > max {
		// Keep the newest max records; the head of the slice is oldest.
		acct.RefreshTokenHashes = acct.RefreshTokenHashes[len(acct.RefreshTokenHashes)-max:]
	}

	return nil
}

func cloneAccount(acct *credlock.Account) credlock.Account {
	out := *acct
	out.Roles = cloneStrings(acct.Roles)
	out.RefreshTokenHashes = cloneStrings(acct.RefreshTokenHashes)
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
