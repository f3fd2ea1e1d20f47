package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection/migrations"
)

// SQLStore keeps records in a single projection_records table. It works on
// Postgres and SQLite; placeholders are rebound per driver.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// OpenSQL opens a database for dialect ("postgres" or "sqlite3") and
// optionally applies migrations.
func OpenSQL(ctx context.Context, dialect, dsn string, migrate bool) (*SQLStore, error) {
	if _, err := migrations.Dir(dialect); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if dialect == migrations.DialectSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if migrate {
		if err := migrations.Apply(ctx, db.DB, dialect); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

const (
	sqlGet    = `SELECT value FROM projection_records WHERE path = ?`
	sqlList   = `SELECT key, value FROM projection_records WHERE parent = ? ORDER BY key`
	sqlUpsert = `INSERT INTO projection_records (path, parent, key, value, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	sqlDelete = `DELETE FROM projection_records WHERE path = ? OR substr(path, 1, ?) = ?`
)

func (s *SQLStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(sqlGet), p).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return raw, nil
}

func (s *SQLStore) Set(ctx context.Context, path string, value interface{}) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	return s.upsert(ctx, p, raw)
}

func (s *SQLStore) Push(ctx context.Context, path string, value interface{}) (string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	raw, err := encode(value)
	if err != nil {
		return "", err
	}
	key := NewPushKey()
	if err := s.upsert(ctx, p+"/"+key, raw); err != nil {
		return "", err
	}
	return key, nil
}

func (s *SQLStore) upsert(ctx context.Context, path string, raw []byte) error {
	parent, key := splitPath(path)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(sqlUpsert), path, parent, key, string(raw), s.now().UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

type sqlEntry struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

func (s *SQLStore) List(ctx context.Context, path string) ([]Entry, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var rows []sqlEntry
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(sqlList), p); err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{Key: r.Key, Value: r.Value}
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, path string) error {
	p, err := cleanPath(path)
	if err != nil {
		return err
	}
	prefix := p + "/"
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(sqlDelete), p, len(prefix), prefix); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}
