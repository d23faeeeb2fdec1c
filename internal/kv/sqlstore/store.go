// Package sqlstore implements the shared kv store on PostgreSQL.
//
// Entries live in the kv_entries table created by Migrate. Change
// notifications travel over LISTEN/NOTIFY, see Feed.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

const table = "kv_entries"

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements kv.Store on a kv_entries table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a PostgreSQL-backed store. The schema must already be migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := psq.Select("value").From(table).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", false, &kv.StorageError{Op: "get", Key: key, Err: err}
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &kv.StorageError{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	query, args, err := psq.Insert(table).
		Columns("key", "value", "updated_at").
		Values(key, value, s.now().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return &kv.StorageError{Op: "set", Key: key, Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &kv.StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	query, args, err := psq.Delete(table).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return &kv.StorageError{Op: "remove", Key: key, Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &kv.StorageError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	query, args, err := psq.Select("key").From(table).OrderBy("key").ToSql()
	if err != nil {
		return nil, &kv.StorageError{Op: "keys", Err: err}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &kv.StorageError{Op: "keys", Err: err}
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &kv.StorageError{Op: "keys", Err: err}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &kv.StorageError{Op: "keys", Err: err}
	}
	return keys, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	query, args, err := psq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, &kv.StorageError{Op: "len", Err: err}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &kv.StorageError{Op: "len", Err: err}
	}
	return n, nil
}

func (s *Store) Clear(ctx context.Context) error {
	query, args, err := psq.Delete(table).ToSql()
	if err != nil {
		return &kv.StorageError{Op: "clear", Err: err}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &kv.StorageError{Op: "clear", Err: err}
	}
	return nil
}
