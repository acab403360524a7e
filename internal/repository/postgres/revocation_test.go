package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/repository"
)

func newMockStore(t *testing.T, now time.Time) (*RevocationStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	return NewRevocationStore(mock).WithClock(func() time.Time { return now }), mock
}

func TestRevocationStore_PutUpserts(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	mock.ExpectExec(`INSERT INTO clinic\.session_revocations .* ON CONFLICT \(revocation_key\) DO UPDATE`).
		WithArgs("abc123", "security_logout", "42", "admin-1", base, base.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Put(context.Background(), domain.RevocationEntry{
		Key:       "abc123",
		Reason:    domain.RevocationReasonSecurityLogout,
		UserID:    "42",
		RevokedBy: "admin-1",
		CreatedAt: base,
		ExpiresAt: base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationStore_PutWrapsUnavailable(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	mock.ExpectExec(`INSERT INTO clinic\.session_revocations`).
		WillReturnError(errors.New("connection reset"))

	err := store.Put(context.Background(), domain.RevocationEntry{Key: "abc123", Reason: domain.RevocationReasonGeneric, ExpiresAt: base.Add(time.Hour)})
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRevocationStore_Get(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	rows := pgxmock.NewRows([]string{"revocation_key", "reason", "user_id", "revoked_by", "created_at", "expires_at"}).
		AddRow("abc123", "role_changed", "42", "admin-1", base.Add(-time.Minute), base.Add(time.Hour))

	mock.ExpectQuery(`SELECT revocation_key, reason, COALESCE\(user_id, ''\), COALESCE\(revoked_by, ''\), created_at, expires_at FROM clinic\.session_revocations WHERE revocation_key = \$1 AND expires_at > \$2`).
		WithArgs("abc123", base).
		WillReturnRows(rows)

	entry, err := store.Get(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if entry.Reason != domain.RevocationReasonRoleChanged || entry.UserID != "42" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationStore_GetNotFound(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	mock.ExpectQuery(`SELECT .* FROM clinic\.session_revocations`).
		WithArgs("missing", base).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevocationStore_DeleteExpiredBefore(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	mock.ExpectExec(`DELETE FROM clinic\.session_revocations WHERE expires_at < \$1`).
		WithArgs(base).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := store.DeleteExpiredBefore(context.Background(), base)
	if err != nil {
		t.Fatalf("DeleteExpiredBefore returned error: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removals, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationStore_DeleteUserEntries(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	mock.ExpectExec(`DELETE FROM clinic\.session_revocations WHERE \(revocation_key = \$1 OR user_id = \$2\)`).
		WithArgs("USER_42_ALL_TOKENS", "42").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	removed, err := store.DeleteUserEntries(context.Background(), "42")
	if err != nil {
		t.Fatalf("DeleteUserEntries returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationStore_DeleteByKeyPrefixEscapesWildcards(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, base)

	mock.ExpectExec(`DELETE FROM clinic\.session_revocations WHERE revocation_key LIKE \$1`).
		WithArgs(`USER\_%`).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	removed, err := store.DeleteByKeyPrefix(context.Background(), "USER_")
	if err != nil {
		t.Fatalf("DeleteByKeyPrefix returned error: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 removals, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevocationStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, time.Now())

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS clinic\.session_revocations`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
