package projection

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/projection/migrations"
)

func newMockSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

func TestSQLStoreGet(t *testing.T) {
	s, mock := newMockSQLStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM projection_records WHERE path = $1`)).
		WithArgs("neptunechain/assets/a1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"state":"Submitted"}`)))
	raw, err := s.Get(ctx, "neptunechain/assets/a1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"Submitted"}`, string(raw))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM projection_records WHERE path = $1`)).
		WithArgs("neptunechain/assets/a2").
		WillReturnError(sql.ErrNoRows)
	_, err = s.Get(ctx, "neptunechain/assets/a2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSetAndPush(t *testing.T) {
	s, mock := newMockSQLStore(t)
	ctx := context.Background()
	at := s.now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO projection_records (path, parent, key, value, updated_at) VALUES ($1, $2, $3, $4, $5)`)).
		WithArgs("neptunechain/assets/a1", "neptunechain/assets", "a1", `{"state":"Approved"}`, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Set(ctx, "neptunechain/assets/a1", map[string]string{"state": "Approved"}))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO projection_records`)).
		WithArgs(sqlmock.AnyArg(), "neptunechain/users/data/u1/assets/submissions", sqlmock.AnyArg(), `{"tx_hash":"0x01"}`, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	key, err := s.Push(ctx, "neptunechain/users/data/u1/assets/submissions", map[string]string{"tx_hash": "0x01"})
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListAndDelete(t *testing.T) {
	s, mock := newMockSQLStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM projection_records WHERE parent = $1 ORDER BY key`)).
		WithArgs("neptunechain/certificates").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("1", []byte(`{"id":"1"}`)).
			AddRow("2", []byte(`{"id":"2"}`)))
	entries, err := s.List(ctx, "neptunechain/certificates")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[1].Key)
	assert.JSONEq(t, `{"id":"2"}`, string(entries[1].Value))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM projection_records WHERE path = $1 OR substr(path, 1, $2) = $3`)).
		WithArgs("neptunechain/verification/queue/u1", len("neptunechain/verification/queue/u1/"), "neptunechain/verification/queue/u1/").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Delete(ctx, "neptunechain/verification/queue/u1"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreWrapsErrors(t *testing.T) {
	s, mock := newMockSQLStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO projection_records`)).
		WillReturnError(sql.ErrConnDone)

	err := s.Set(context.Background(), "neptunechain/assets/a1", 1)
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "neptunechain/assets/a1")
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "projection.db")
	s, err := OpenSQL(context.Background(), migrations.DialectSQLite, dsn, true)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	s, err := OpenSQL(context.Background(), migrations.DialectPostgres, dsn, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Delete(context.Background(), "neptunechain")
		_ = s.Close()
	})

	exerciseStore(t, s)
}

func TestOpenSQLRejectsUnknownDialect(t *testing.T) {
	_, err := OpenSQL(context.Background(), "mysql", "", false)
	assert.Error(t, err)
}
