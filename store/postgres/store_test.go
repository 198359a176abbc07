package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/fieldcrypt"
)

var (
	accountCols = []string{
		"id", "username", "email", "password_hash", "role", "disabled", "token_hash", "token_expiry",
		"failed_attempts", "locked_until", "last_login_at", "last_login_ip", "two_factor_enabled",
		"two_factor_method", "password_changed_at", "password_expired", "created_at",
	}
	deviceCols = []string{
		"id", "account_id", "fingerprint", "name", "type", "user_agent", "first_ip",
		"last_login_at", "last_login_ip", "login_count", "trusted", "active", "created_at",
	}
	base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func accountRows(email, tokenHash string, failed int) *pgxmock.Rows {
	var zero time.Time
	return pgxmock.NewRows(accountCols).AddRow(
		"a1", "alice", email, "$2a$04$hash", "admin", false, tokenHash, int64(0),
		failed, zero, zero, "", false,
		"", base, false, base,
	)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// sealedEmail matches an encrypted email argument that opens to want.
type sealedEmail struct {
	enc  *fieldcrypt.Encryptor
	want string
}

func (s sealedEmail) Match(v any) bool {
	blob, ok := v.(string)
	if !ok || !fieldcrypt.IsEncrypted(blob) {
		return false
	}
	plain, err := s.enc.Decrypt(blob)
	return err == nil && plain == s.want
}

func TestMigrateAppliesSchema(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, New(mock).Migrate(context.Background()))
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	enc, err := fieldcrypt.New("process-secret", nil)
	require.NoError(t, err)
	acct := &goGuard.Account{ID: "a1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", Role: goGuard.RoleAdmin, CreatedAt: base}

	t.Run("encrypts email", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs("a1", "alice", sealedEmail{enc: enc, want: "alice@example.com"}, "h", "admin", false, "", int64(0),
				0, pgxmock.AnyArg(), pgxmock.AnyArg(), "", false, "", pgxmock.AnyArg(), false, base).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, New(mock, WithEncryptor(enc)).CreateAccount(ctx, acct))
	})

	t.Run("duplicate username", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(anyArgs(len(accountCols))...).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		assert.ErrorIs(t, New(mock).CreateAccount(ctx, acct), goGuard.ErrAccountExists)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(anyArgs(len(accountCols))...).
			WillReturnError(errors.New("db down"))
		err := New(mock).CreateAccount(ctx, acct)
		require.Error(t, err)
		assert.NotErrorIs(t, err, goGuard.ErrAccountExists)
	})
}

func TestAccountByIDDecryptsEmail(t *testing.T) {
	ctx := context.Background()
	enc, err := fieldcrypt.New("process-secret", nil)
	require.NoError(t, err)
	blob, err := enc.Encrypt("alice@example.com")
	require.NoError(t, err)

	mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs("a1").
		WillReturnRows(accountRows(blob, "", 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	s := New(mock, WithEncryptor(enc))
	a, err := s.AccountByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.Equal(t, goGuard.RoleAdmin, a.Role)
	assert.Equal(t, 2, a.FailedAttempts)
	assert.Empty(t, a.Token)

	_, err = s.AccountByID(ctx, "missing")
	assert.ErrorIs(t, err, goGuard.ErrAccountNotFound)
}

func TestAccountByTokenLooksUpDigest(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE token_hash = $1")).
		WithArgs(TokenDigest("tok")).
		WillReturnRows(accountRows("", TokenDigest("tok"), 0))

	s := New(mock)
	a, err := s.AccountByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)

	_, err = s.AccountByToken(ctx, "")
	assert.ErrorIs(t, err, goGuard.ErrAccountNotFound)
}

func TestUpdateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("rotated token is stored as digest", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1 FOR UPDATE")).
			WithArgs("a1").
			WillReturnRows(accountRows("", "old-digest", 3))
		mock.ExpectExec("UPDATE accounts SET").
			WithArgs("a1", "", "$2a$04$hash", "admin", false, TokenDigest("fresh"), int64(99),
				0, pgxmock.AnyArg(), pgxmock.AnyArg(), "10.0.0.1", false, "", base, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		a, err := New(mock).UpdateAccount(ctx, "a1", func(tx goGuard.AccountTx) error {
			acct := tx.Account()
			acct.FailedAttempts = 0
			acct.Token = "fresh"
			acct.TokenExpiry = 99
			acct.LastLoginIP = "10.0.0.1"
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", a.Token)
	})

	t.Run("untouched token keeps stored digest", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE username = $1 FOR UPDATE")).
			WithArgs("alice").
			WillReturnRows(accountRows("", "old-digest", 0))
		mock.ExpectExec("UPDATE accounts SET").
			WithArgs("a1", "", "$2a$04$hash", "admin", false, "old-digest", int64(0),
				1, pgxmock.AnyArg(), pgxmock.AnyArg(), "", false, "", base, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		_, err := New(mock).UpdateAccountByUsername(ctx, "alice", func(tx goGuard.AccountTx) error {
			tx.Account().FailedAttempts++
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		mock := newMock(t)
		boom := errors.New("boom")
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("a1").
			WillReturnRows(accountRows("", "", 0))
		mock.ExpectRollback()

		_, err := New(mock).UpdateAccount(ctx, "a1", func(goGuard.AccountTx) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("password history inside the transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("a1").
			WillReturnRows(accountRows("", "", 0))
		mock.ExpectQuery("SELECT password_hash, created_at FROM password_history").
			WithArgs("a1", 5).
			WillReturnRows(pgxmock.NewRows([]string{"password_hash", "created_at"}).
				AddRow("h2", base).
				AddRow("h1", base.Add(-time.Hour)))
		mock.ExpectExec("INSERT INTO password_history").
			WithArgs("a1", "$2a$04$hash", base).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM password_history").
			WithArgs("a1", 5).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec("UPDATE accounts SET").
			WithArgs("a1", "", "new-hash", "admin", false, "", int64(0),
				0, pgxmock.AnyArg(), pgxmock.AnyArg(), "", false, "", base, false).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		_, err := New(mock).UpdateAccount(ctx, "a1", func(tx goGuard.AccountTx) error {
			history, err := tx.PasswordHistory(ctx, 5)
			if err != nil {
				return err
			}
			require.Len(t, history, 2)
			assert.Equal(t, "h2", history[0].PasswordHash)
			if err := tx.AppendPasswordHistory(ctx, goGuard.PasswordHistoryEntry{PasswordHash: tx.Account().PasswordHash, CreatedAt: base}, 5); err != nil {
				return err
			}
			tx.Account().PasswordHash = "new-hash"
			return nil
		})
		require.NoError(t, err)
	})
}

func expectAdminLock(mock pgxmock.PgxPoolIface, ids ...string) {
	rows := pgxmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM accounts WHERE role = $1 AND NOT disabled ORDER BY id FOR UPDATE")).
		WithArgs("admin").
		WillReturnRows(rows)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("guard refuses", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		expectAdminLock(mock, "a1")
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).WithArgs("a1").WillReturnRows(accountRows("", "", 0))
		mock.ExpectRollback()

		var seen int
		err := New(mock).DeleteAccount(ctx, "a1", func(_ *goGuard.Account, admins int) error {
			seen = admins
			return goGuard.ErrLastAdministrator
		})
		assert.ErrorIs(t, err, goGuard.ErrLastAdministrator)
		assert.Equal(t, 1, seen)
	})

	t.Run("deletes", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		expectAdminLock(mock, "a0", "a1")
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).WithArgs("a1").WillReturnRows(accountRows("", "", 0))
		mock.ExpectExec("DELETE FROM accounts").WithArgs("a1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		require.NoError(t, New(mock).DeleteAccount(ctx, "a1", nil))
	})

	t.Run("lock failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY id FOR UPDATE")).
			WithArgs("admin").
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		err := New(mock).DeleteAccount(ctx, "a1", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock administrators")
	})
}

func TestAdminEmails(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT email FROM accounts").
		WithArgs("admin").
		WillReturnRows(pgxmock.NewRows([]string{"email"}).AddRow("alice@example.com").AddRow("bob@example.com"))

	got, err := New(mock).AdminEmails(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, got)
}

func TestDevices(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	s := New(mock)

	dev := &goGuard.Device{ID: "d1", AccountID: "a1", Fingerprint: "fp", Name: "Windows - Chrome", Type: "desktop",
		UserAgent: "ua", FirstIP: "10.0.0.1", LastLoginAt: base, LastLoginIP: "10.0.0.1", CreatedAt: base}
	mock.ExpectQuery("INSERT INTO devices").
		WithArgs("d1", "a1", "fp", "Windows - Chrome", "desktop", "ua", "10.0.0.1", base, "10.0.0.1", base).
		WillReturnRows(pgxmock.NewRows(deviceCols).
			AddRow("d0", "a1", "fp", "Windows - Chrome", "desktop", "ua", "10.0.0.9", base, "10.0.0.1", 4, true, true, base))

	got, err := s.UpsertDevice(ctx, dev)
	require.NoError(t, err)
	assert.Equal(t, "d0", got.ID)
	assert.Equal(t, 4, got.LoginCount)
	assert.True(t, got.Trusted)

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE account_id = $1 AND fingerprint = $2")).
		WithArgs("a1", "nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.DeviceByFingerprint(ctx, "a1", "nope")
	assert.ErrorIs(t, err, goGuard.ErrDeviceNotFound)

	mock.ExpectQuery("FROM devices").
		WithArgs("a1", true).
		WillReturnRows(pgxmock.NewRows(deviceCols).
			AddRow("d0", "a1", "fp", "Windows - Chrome", "desktop", "ua", "10.0.0.9", base, "10.0.0.1", 4, true, true, base))
	list, err := s.ListDevices(ctx, "a1", true)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	mock.ExpectExec("UPDATE devices SET trusted").
		WithArgs("d9", "a1", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, s.SetDeviceTrusted(ctx, "a1", "d9", true), goGuard.ErrDeviceNotFound)

	mock.ExpectExec("UPDATE devices SET active").
		WithArgs("d0", "a1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, s.SetDeviceActive(ctx, "a1", "d0", false))
}

func TestIncidentWhere(t *testing.T) {
	resolved := false
	where, args := incidentWhere(goGuard.IncidentFilter{
		Type:     goGuard.IncidentXSS,
		Search:   "50%_off",
		Resolved: &resolved,
	})
	assert.Equal(t, " WHERE type = $1 AND resolved = $2 AND (url ILIKE $3 OR ip ILIKE $3 OR description ILIKE $3)", where)
	assert.Equal(t, []any{"XSS_ATTEMPT", false, `%50\%\_off%`}, args)

	where, args = incidentWhere(goGuard.IncidentFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestListIncidents(t *testing.T) {
	mock := newMock(t)
	from := base.Add(-24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM incidents WHERE created_at >= $1 AND severity = $2")).
		WithArgs(from, "HIGH").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(from, "HIGH", 2, 4).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "type", "severity", "description", "account_id", "username", "ip", "user_agent",
			"url", "method", "status", "resolved", "resolved_by", "resolved_at", "created_at",
		}).AddRow("i1", "SQL_INJECTION_ATTEMPT", "HIGH", "SQL injection detected", "", "", "203.0.113.7", "curl",
			"/admin/users?id=1", "GET", 0, false, "", time.Time{}, base))

	items, total, err := New(mock).ListIncidents(context.Background(), goGuard.IncidentFilter{
		From: from, Severity: goGuard.SeverityHigh, Limit: 2, Offset: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, items, 1)
	assert.Equal(t, goGuard.IncidentSQLInjection, items[0].Type)
	assert.Equal(t, goGuard.SeverityHigh, items[0].Severity)
}

func TestInsertAndResolveIncident(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	s := New(mock)

	inc := &goGuard.Incident{ID: "i1", Type: goGuard.IncidentCSRF, Severity: goGuard.SeverityHigh, Description: "CSRF attack detected", CreatedAt: base}
	mock.ExpectExec("INSERT INTO incidents").
		WithArgs("i1", "CSRF_ATTEMPT", "HIGH", "CSRF attack detected", "", "", "", "", "", "", 0, false, "", time.Time{}, base).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.InsertIncident(ctx, inc))

	mock.ExpectExec("UPDATE incidents SET resolved").
		WithArgs("i1", "alice", base).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.ResolveIncident(ctx, "i1", "alice", base))

	mock.ExpectExec("UPDATE incidents SET resolved").
		WithArgs("i404", "alice", base).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, s.ResolveIncident(ctx, "i404", "alice", base), goGuard.ErrIncidentNotFound)
}
