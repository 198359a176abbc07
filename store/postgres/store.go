package postgres

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fieldcrypt"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Store is a goGuard.Store backed by PostgreSQL.
type Store struct {
	db        DB
	encryptor *fieldcrypt.Encryptor
}

var _ goGuard.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithEncryptor encrypts account emails at rest.
func WithEncryptor(enc *fieldcrypt.Encryptor) Option {
	return func(s *Store) { s.encryptor = enc }
}

// New returns a Store on db.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// TokenDigest is the value stored in accounts.token_hash for token.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const accountColumns = `id, username, email, password_hash, role, disabled, token_hash, token_expiry,
	failed_attempts, locked_until, last_login_at, last_login_ip, two_factor_enabled,
	two_factor_method, password_changed_at, password_expired, created_at`

// accountRow carries the stored digest alongside the account so an update
// that does not rotate the token keeps it.
type accountRow struct {
	account   goGuard.Account
	tokenHash string
}

func (s *Store) scanAccount(row pgx.Row) (*accountRow, error) {
	var r accountRow
	a := &r.account
	var role string
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role, &a.Disabled, &r.tokenHash, &a.TokenExpiry,
		&a.FailedAttempts, &a.LockedUntil, &a.LastLoginAt, &a.LastLoginIP, &a.TwoFactorEnabled,
		&a.TwoFactorMethod, &a.PasswordChangedAt, &a.PasswordExpired, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goGuard.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Role = goGuard.Role(role)
	if a.Email, err = s.openEmail(a.Email); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) sealEmail(email string) (string, error) {
	if s.encryptor == nil {
		return email, nil
	}
	return s.encryptor.EncryptIfNeeded(email)
}

func (s *Store) openEmail(email string) (string, error) {
	if s.encryptor == nil {
		return email, nil
	}
	out, err := s.encryptor.DecryptIfNeeded(email)
	if err != nil {
		return "", fmt.Errorf("decrypt account email: %w", err)
	}
	return out, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *goGuard.Account) error {
	email, err := s.sealEmail(a.Email)
	if err != nil {
		return err
	}
	tokenHash := ""
	if a.Token != "" {
		tokenHash = TokenDigest(a.Token)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.Username, email, a.PasswordHash, string(a.Role), a.Disabled, tokenHash, a.TokenExpiry,
		a.FailedAttempts, a.LockedUntil, a.LastLoginAt, a.LastLoginIP, a.TwoFactorEnabled,
		a.TwoFactorMethod, a.PasswordChangedAt, a.PasswordExpired, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return goGuard.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (*goGuard.Account, error) {
	r, err := s.scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &r.account, nil
}

func (s *Store) AccountByToken(ctx context.Context, token string) (*goGuard.Account, error) {
	if token == "" {
		return nil, goGuard.ErrAccountNotFound
	}
	r, err := s.scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE token_hash = $1`, TokenDigest(token)))
	if err != nil {
		return nil, err
	}
	return &r.account, nil
}

func (s *Store) UpdateAccount(ctx context.Context, id string, fn func(goGuard.AccountTx) error) (*goGuard.Account, error) {
	return s.update(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id, fn)
}

func (s *Store) UpdateAccountByUsername(ctx context.Context, username string, fn func(goGuard.AccountTx) error) (*goGuard.Account, error) {
	return s.update(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1 FOR UPDATE`, username, fn)
}

func (s *Store) update(ctx context.Context, query, key string, fn func(goGuard.AccountTx) error) (*goGuard.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := s.scanAccount(tx.QueryRow(ctx, query, key))
	if err != nil {
		return nil, err
	}
	atx := &accountTx{tx: tx, account: &r.account}
	if err := fn(atx); err != nil {
		return nil, err
	}

	a := atx.account
	email, err := s.sealEmail(a.Email)
	if err != nil {
		return nil, err
	}
	tokenHash := r.tokenHash
	if a.Token != "" {
		tokenHash = TokenDigest(a.Token)
	}
	_, err = tx.Exec(ctx, `
		UPDATE accounts SET
			email = $2, password_hash = $3, role = $4, disabled = $5, token_hash = $6, token_expiry = $7,
			failed_attempts = $8, locked_until = $9, last_login_at = $10, last_login_ip = $11,
			two_factor_enabled = $12, two_factor_method = $13, password_changed_at = $14, password_expired = $15
		WHERE id = $1`,
		a.ID, email, a.PasswordHash, string(a.Role), a.Disabled, tokenHash, a.TokenExpiry,
		a.FailedAttempts, a.LockedUntil, a.LastLoginAt, a.LastLoginIP,
		a.TwoFactorEnabled, a.TwoFactorMethod, a.PasswordChangedAt, a.PasswordExpired,
	)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	out := *a
	return &out, nil
}

type accountTx struct {
	tx      pgx.Tx
	account *goGuard.Account
}

func (t *accountTx) Account() *goGuard.Account { return t.account }

func (t *accountTx) PasswordHistory(ctx context.Context, limit int) ([]goGuard.PasswordHistoryEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT password_hash, created_at FROM password_history
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, t.account.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	var out []goGuard.PasswordHistoryEntry
	for rows.Next() {
		e := goGuard.PasswordHistoryEntry{AccountID: t.account.ID}
		if err := rows.Scan(&e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *accountTx) AppendPasswordHistory(ctx context.Context, entry goGuard.PasswordHistoryEntry, keep int) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO password_history (account_id, password_hash, created_at) VALUES ($1, $2, $3)`,
		t.account.ID, entry.PasswordHash, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}
	if keep <= 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM password_history
		WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM password_history WHERE account_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		)`, t.account.ID, keep); err != nil {
		return fmt.Errorf("trim password history: %w", err)
	}
	return nil
}

func (s *Store) AdminEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT email FROM accounts
		WHERE role = $1 AND NOT disabled AND email <> ''
		ORDER BY username`, string(goGuard.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("query admin emails: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin email: %w", err)
		}
		if email, err = s.openEmail(email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAccount(ctx context.Context, id string, guard func(*goGuard.Account, int) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Concurrent deletes serialize on the enabled administrator rows, so the
	// count below cannot go stale before commit. Rows lock in id order.
	admins, err := lockAdministrators(ctx, tx)
	if err != nil {
		return err
	}
	r, err := s.scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(&r.account, admins); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func lockAdministrators(ctx context.Context, tx pgx.Tx) (int, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM accounts WHERE role = $1 AND NOT disabled ORDER BY id FOR UPDATE`,
		string(goGuard.RoleAdmin))
	if err != nil {
		return 0, fmt.Errorf("lock administrators: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("lock administrators: %w", err)
	}
	return n, nil
}
