package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// exerciseKV runs the behaviour every backend must share.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Put(ctx, "form_snapshots", []byte(`[1]`)))
	require.NoError(t, kv.Put(ctx, "form_snapshots", []byte(`[1,2]`)))
	require.NoError(t, kv.Put(ctx, "mcp_profiles", []byte(`{}`)))
	require.NoError(t, kv.Put(ctx, "mcp_profiles/work", []byte(`{"email":"w@x.test"}`)))

	got, err := kv.Get(ctx, "form_snapshots")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	keys, err := kv.Keys(ctx, "mcp_")
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp_profiles", "mcp_profiles/work"}, keys)

	require.NoError(t, kv.Delete(ctx, "mcp_profiles"))
	_, err = kv.Get(ctx, "mcp_profiles")
	assert.ErrorIs(t, err, ErrNotFound)

	var decoded []int
	ok, err := GetJSON(ctx, kv, "form_snapshots", &decoded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, decoded)

	ok, err = GetJSON(ctx, kv, "nothing", &decoded)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, PutJSON(ctx, kv, "n", map[string]int{"a": 1}))
	raw, err := kv.Get(ctx, "n")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseKV(t, m)

	// Returned slices must not alias internal state.
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", []byte("abc")))
	v, _ := m.Get(ctx, "k")
	v[0] = 'z'
	again, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestSQLite(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		s, err := OpenSQLite(context.Background(), ":memory:", zap.NewNop())
		require.NoError(t, err)
		defer s.Close()
		exerciseKV(t, s)
	})

	t.Run("persists across reopen", func(t *testing.T) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "nested", "locus.db")

		s, err := OpenSQLite(ctx, path, nil)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, "recovery_telemetry", []byte(`[]`)))
		require.NoError(t, s.Close())

		s, err = OpenSQLite(ctx, path, nil)
		require.NoError(t, err)
		defer s.Close()
		v, err := s.Get(ctx, "recovery_telemetry")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(v))
	})
}

func TestPostgres(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newStore := func(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		t.Cleanup(mock.Close)
		s := NewPostgres(mock, zap.NewNop())
		s.now = func() time.Time { return fixed }
		return s, mock
	}

	t.Run("migrate", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS locus_kv")).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		require.NoError(t, s.Migrate(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get hit and miss", func(t *testing.T) {
		s, mock := newStore(t)
		query := regexp.QuoteMeta("SELECT value FROM locus_kv WHERE key = $1")
		mock.ExpectQuery(query).WithArgs("form_snapshots").
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))
		mock.ExpectQuery(query).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

		v, err := s.Get(ctx, "form_snapshots")
		require.NoError(t, err)
		assert.Equal(t, `[]`, string(v))

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("put upserts with UTC timestamp", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO locus_kv (key, value, updated_at) VALUES ($1, $2, $3)")).
			WithArgs("k", []byte("v"), fixed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, s.Put(ctx, "k", []byte("v")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("errors are wrapped", func(t *testing.T) {
		s, mock := newStore(t)
		boom := errors.New("connection reset")
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM locus_kv")).WithArgs("k").WillReturnError(boom)
		err := s.Delete(ctx, "k")
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keys", func(t *testing.T) {
		s, mock := newStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM locus_kv WHERE starts_with(key, $1)")).
			WithArgs("mcp_").
			WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow("mcp_profiles").AddRow("mcp_profiles/work"))
		keys, err := s.Keys(ctx, "mcp_")
		require.NoError(t, err)
		assert.Equal(t, []string{"mcp_profiles", "mcp_profiles/work"}, keys)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
