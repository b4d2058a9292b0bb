// Package postgres implements CredentialStore on PostgreSQL through
// database/sql and the pgx stdlib driver. The schema ships as embedded goose
// migrations; call RunMigrations once at startup.
//
// Accounts live in the accounts table; the refresh-token registry is a child
// table ordered by insertion id, so FIFO retention maps to deleting the
// lowest ids.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/credlock/credlock"
	"github.com/credlock/credlock/store/postgres/migrations"
)

const uniqueViolationCode = "23505"

const accountColumns = `id, email, password_hash, roles, provider, verified,
	verification_token, verification_expires,
	pending_email, email_change_token, email_change_expires,
	password_reset_token, password_reset_expires,
	deletion_pending, deletion_scheduled_at`

// Store is a PostgreSQL-backed CredentialStore. Safe for concurrent use; the
// underlying *sql.DB pools connections.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the DSN with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations applies the embedded schema migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (credlock.Account, error) {
	return s.findOne(ctx, "id = $1", id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (credlock.Account, error) {
	return s.findOne(ctx, "email = $1", email)
}

func (s *Store) FindByVerificationToken(ctx context.Context, token string) (credlock.Account, error) {
	if token == "" {
		return credlock.Account{}, credlock.ErrNotFound
	}
	return s.findOne(ctx, "verification_token = $1", token)
}

func (s *Store) FindByPasswordResetToken(ctx context.Context, token string) (credlock.Account, error) {
	if token == "" {
		return credlock.Account{}, credlock.ErrNotFound
	}
	return s.findOne(ctx, "password_reset_token = $1", token)
}

func (s *Store) FindByEmailChangeToken(ctx context.Context, token string) (credlock.Account, error) {
	if token == "" {
		return credlock.Account{}, credlock.ErrNotFound
	}
	return s.findOne(ctx, "email_change_token = $1", token)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (credlock.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where

	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return credlock.Account{}, credlock.ErrNotFound
	}
	if err != nil {
		return credlock.Account{}, fmt.Errorf("query account: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT token_hash FROM refresh_tokens WHERE account_id = $1 ORDER BY id`, acct.ID)
	if err != nil {
		return credlock.Account{}, fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return credlock.Account{}, fmt.Errorf("scan refresh token: %w", err)
		}
		acct.RefreshTokenHashes = append(acct.RefreshTokenHashes, hash)
	}
	if err := rows.Err(); err != nil {
		return credlock.Account{}, fmt.Errorf("iterate refresh tokens: %w", err)
	}

	return acct, nil
}

func (s *Store) Insert(ctx context.Context, input credlock.NewAccount) (credlock.Account, error) {
	provider := input.Provider
	if provider == "" {
		provider = credlock.ProviderLocal
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, password_hash, roles, provider, verified, verification_token, verification_expires)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), $7)
		 RETURNING id`,
		input.Email,
		input.PasswordHash,
		joinRoles(input.Roles),
		provider,
		input.Verified,
		input.VerificationToken,
		nullTime(input.VerificationExpires),
	).Scan(&id)
	if isUniqueViolation(err) {
		return credlock.Account{}, credlock.ErrConflict
	}
	if err != nil {
		return credlock.Account{}, fmt.Errorf("insert account: %w", err)
	}

	return credlock.Account{
		ID:                  id,
		Email:               input.Email,
		PasswordHash:        input.PasswordHash,
		Roles:               input.Roles,
		Provider:            provider,
		Verified:            input.Verified,
		VerificationToken:   input.VerificationToken,
		VerificationExpires: input.VerificationExpires,
	}, nil
}

func (s *Store) UpdatePasswordAndClearSessions(ctx context.Context, id, newHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, newHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return credlock.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1`, id); err != nil {
		return fmt.Errorf("clear refresh tokens: %w", err)
	}

	return tx.Commit()
}

func (s *Store) SetVerificationToken(ctx context.Context, email, passwordHash, token string, expiresAt time.Time) error {
	return s.execExpectRow(ctx,
		`UPDATE accounts
		 SET password_hash = $2, verified = FALSE, verification_token = $3, verification_expires = $4
		 WHERE email = $1`,
		email, passwordHash, token, expiresAt)
}

func (s *Store) MarkVerified(ctx context.Context, id string) error {
	return s.execExpectRow(ctx,
		`UPDATE accounts
		 SET verified = TRUE, verification_token = NULL, verification_expires = NULL
		 WHERE id = $1`,
		id)
}

func (s *Store) SetPendingEmailChange(ctx context.Context, id, pendingEmail, token string, expiresAt time.Time) error {
	return s.execExpectRow(ctx,
		`UPDATE accounts
		 SET pending_email = $2, email_change_token = $3, email_change_expires = $4
		 WHERE id = $1`,
		id, pendingEmail, token, expiresAt)
}

func (s *Store) ConfirmEmailChange(ctx context.Context, id, newEmail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts
		 SET email = $2, pending_email = NULL, email_change_token = NULL, email_change_expires = NULL
		 WHERE id = $1`,
		id, newEmail)
	if isUniqueViolation(err) {
		return credlock.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("confirm email change: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return credlock.ErrNotFound
	}
	return nil
}

func (s *Store) SetPasswordResetToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	return s.execExpectRow(ctx,
		`UPDATE accounts
		 SET password_reset_token = $2, password_reset_expires = $3
		 WHERE email = $1`,
		email, token, expiresAt)
}

func (s *Store) ApplyPasswordReset(ctx context.Context, token, newHash string) error {
	if token == "" {
		return credlock.ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`UPDATE accounts
		 SET password_hash = $2, password_reset_token = NULL, password_reset_expires = NULL
		 WHERE password_reset_token = $1
		 RETURNING id`,
		token, newHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return credlock.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("apply password reset: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1`, id); err != nil {
		return fmt.Errorf("clear refresh tokens: %w", err)
	}

	return tx.Commit()
}

func (s *Store) ScheduleDeletion(ctx context.Context, id string, at time.Time) error {
	return s.execExpectRow(ctx,
		`UPDATE accounts SET deletion_pending = TRUE, deletion_scheduled_at = $2 WHERE id = $1`,
		id, at)
}

func (s *Store) CancelScheduledDeletion(ctx context.Context, id string) error {
	return s.execExpectRow(ctx,
		`UPDATE accounts SET deletion_pending = FALSE, deletion_scheduled_at = NULL WHERE id = $1`,
		id)
}

func (s *Store) AppendRefreshToken(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (account_id, token_hash) VALUES ($1, $2)`, id, hash)
	if err != nil {
		return fmt.Errorf("append refresh token: %w", err)
	}
	return nil
}

// ReplaceRefreshToken swaps the matched record in place, resetting its
// creation time so the rotated token counts as the newest. When the old
// record is already gone the new one is appended instead.
func (s *Store) ReplaceRefreshToken(ctx context.Context, id, oldHash, newHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET token_hash = $3, created_at = now()
		 WHERE account_id = $1 AND token_hash = $2`,
		id, oldHash, newHash)
	if err != nil {
		return fmt.Errorf("replace refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.AppendRefreshToken(ctx, id, newHash)
	}
	return nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1 AND token_hash = $2`, id, hash)
	if err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE account_id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear refresh tokens: %w", err)
	}
	return nil
}

func (s *Store) TrimRefreshTokens(ctx context.Context, id string, max int) error {
	if max <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens
		 WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM refresh_tokens WHERE account_id = $1 ORDER BY id DESC LIMIT $2
		 )`,
		id, max)
	if err != nil {
		return fmt.Errorf("trim refresh tokens: %w", err)
	}
	return nil
}

func (s *Store) execExpectRow(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return credlock.ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (credlock.Account, error) {
	var (
		acct                credlock.Account
		passwordHash        sql.NullString
		roles               string
		verificationToken   sql.NullString
		verificationExpires sql.NullTime
		pendingEmail        sql.NullString
		emailChangeToken    sql.NullString
		emailChangeExpires  sql.NullTime
		resetToken          sql.NullString
		resetExpires        sql.NullTime
		deletionScheduledAt sql.NullTime
	)

	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&passwordHash,
		&roles,
		&acct.Provider,
		&acct.Verified,
		&verificationToken,
		&verificationExpires,
		&pendingEmail,
		&emailChangeToken,
		&emailChangeExpires,
		&resetToken,
		&resetExpires,
		&acct.DeletionPending,
		&deletionScheduledAt,
	)
	if err != nil {
		return credlock.Account{}, err
	}

	acct.PasswordHash = passwordHash.String
	acct.Roles = splitRoles(roles)
	acct.VerificationToken = verificationToken.String
	acct.VerificationExpires = verificationExpires.Time
	acct.PendingEmail = pendingEmail.String
	acct.EmailChangeToken = emailChangeToken.String
	acct.EmailChangeExpires = emailChangeExpires.Time
	acct.PasswordResetToken = resetToken.String
	acct.PasswordResetExpires = resetExpires.Time
	acct.DeletionScheduledAt = deletionScheduledAt.Time

	return acct, nil
}

func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return "USER"
	}
	return strings.Join(roles, ",")
}

func splitRoles(roles string) []string {
	if roles == "" {
		return nil
	}
	return strings.Split(roles, ",")
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
