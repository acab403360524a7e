package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carehub/clinic-api/internal/core/domain"
	"github.com/carehub/clinic-api/internal/core/port"
	"github.com/carehub/clinic-api/internal/repository"
)

const revocationTable = "clinic.session_revocations"

const revocationSchemaSQL = `
CREATE SCHEMA IF NOT EXISTS clinic;
CREATE TABLE IF NOT EXISTS clinic.session_revocations (
    revocation_key TEXT PRIMARY KEY,
    reason         TEXT NOT NULL,
    user_id        TEXT,
    revoked_by     TEXT,
    created_at     TIMESTAMPTZ NOT NULL,
    expires_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS session_revocations_expires_at_idx ON clinic.session_revocations (expires_at);
CREATE INDEX IF NOT EXISTS session_revocations_user_id_idx ON clinic.session_revocations (user_id);
`

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// RevocationStore implements port.RevocationStore backed by PostgreSQL.
type RevocationStore struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewRevocationStore constructs a store backed by any executor that satisfies pgExecutor.
func NewRevocationStore(exec pgExecutor) *RevocationStore {
	store := &RevocationStore{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	store.now = func() time.Time { return time.Now().UTC() }
	return store
}

// WithClock overrides the clock used to filter expired rows on read.
func (r *RevocationStore) WithClock(clock func() time.Time) *RevocationStore {
	if clock != nil {
		r.now = clock
	}
	return r
}

// EnsureSchema creates the revocation table when it does not exist yet.
func (r *RevocationStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.exec.Exec(ctx, revocationSchemaSQL); err != nil {
		return fmt.Errorf("ensure revocation schema: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// Put upserts the entry; the latest write for a key wins.
func (r *RevocationStore) Put(ctx context.Context, entry domain.RevocationEntry) error {
	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return fmt.Errorf("postgres put revocation: %w", repository.ErrInvalidKey)
	}

	stmt, args, err := r.builder.Insert(revocationTable).
		Columns("revocation_key", "reason", "user_id", "revoked_by", "created_at", "expires_at").
		Values(
			key,
			string(entry.Reason),
			optionalString(entry.UserID),
			optionalString(entry.RevokedBy),
			entry.CreatedAt.UTC(),
			entry.ExpiresAt.UTC(),
		).
		Suffix(`ON CONFLICT (revocation_key) DO UPDATE SET
			reason = EXCLUDED.reason,
			user_id = EXCLUDED.user_id,
			revoked_by = EXCLUDED.revoked_by,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert revocation sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert revocation: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

// Get fetches the unexpired entry stored under key.
func (r *RevocationStore) Get(ctx context.Context, key string) (*domain.RevocationEntry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("postgres get revocation: %w", repository.ErrInvalidKey)
	}

	stmt, args, err := r.builder.
		Select(
			"revocation_key",
			"reason",
			"COALESCE(user_id, '')",
			"COALESCE(revoked_by, '')",
			"created_at",
			"expires_at",
		).
		From(revocationTable).
		Where(squirrel.Eq{"revocation_key": key}).
		Where(squirrel.Gt{"expires_at": r.now()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select revocation sql: %w", err)
	}

	var (
		entry  domain.RevocationEntry
		reason string
	)
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&entry.Key,
		&reason,
		&entry.UserID,
		&entry.RevokedBy,
		&entry.CreatedAt,
		&entry.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select revocation: %w: %w", repository.ErrUnavailable, err)
	}
	entry.Reason = domain.RevocationReason(reason)
	return &entry, nil
}

// DeleteExpiredBefore removes rows whose expiry is strictly before now.
func (r *RevocationStore) DeleteExpiredBefore(ctx context.Context, now time.Time) (int, error) {
	return r.delete(ctx, "sweep", squirrel.Lt{"expires_at": now.UTC()})
}

// DeleteByKeyPrefix removes rows whose key starts with prefix.
func (r *RevocationStore) DeleteByKeyPrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("postgres delete by prefix: %w", repository.ErrInvalidKey)
	}
	return r.delete(ctx, "prefix", squirrel.Like{"revocation_key": escapeLike(prefix) + "%"})
}

// DeleteUserEntries removes the user's wildcard row and every row tagged with the user.
func (r *RevocationStore) DeleteUserEntries(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	wildcard := domain.UserWildcardKey(userID)
	if wildcard == "" {
		return 0, fmt.Errorf("postgres delete user entries: %w", repository.ErrInvalidKey)
	}
	return r.delete(ctx, "user", squirrel.Or{
		squirrel.Eq{"revocation_key": wildcard},
		squirrel.Eq{"user_id": userID},
	})
}

// Ping verifies database connectivity.
func (r *RevocationStore) Ping(ctx context.Context) error {
	if err := r.exec.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

func (r *RevocationStore) delete(ctx context.Context, label string, pred squirrel.Sqlizer) (int, error) {
	stmt, args, err := r.builder.Delete(revocationTable).Where(pred).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete revocation (%s) sql: %w", label, err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete revocations (%s): %w: %w", label, repository.ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func optionalString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

var (
	_ port.RevocationStore       = (*RevocationStore)(nil)
	_ port.RevocationStorePinger = (*RevocationStore)(nil)
)
