package testdb_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/phrazzld/dbtestkit/internal/csvfix"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildUsers(t *testing.T) *testdb.Database {
	t.Helper()
	calls := 0
	env := newSQLiteEnv(t)
	return env.EnsureBuilt(t, sqliteParams(t.TempDir(), "app_1"), usersSource(&calls), 1)
}

func countUsers(t *testing.T, db *testdb.Database) int64 {
	t.Helper()
	n, err := db.Conn().FetchScalar(context.Background(), "SELECT COUNT(*) FROM users", 0)
	require.NoError(t, err)
	return n.(int64)
}

func TestAssertNoRows(t *testing.T) {
	db := buildUsers(t)

	assert.True(t, db.AssertNoRows(t, "SELECT name FROM users WHERE id = 3"))

	tb := &recordingTB{}
	assert.False(t, db.AssertNoRows(tb, "SELECT name FROM users WHERE id = 2"),
		"a row of NULLs is still a row")
	require.Len(t, tb.errors, 1)
	assert.Contains(t, tb.errors[0], "expected no rows")

	tb = &recordingTB{}
	assert.False(t, db.AssertNoRows(tb, "SELECT missing FROM users"))
	require.Len(t, tb.errors, 1)
	assert.Contains(t, tb.errors[0], "query failed")
}

func TestQueryCSV(t *testing.T) {
	db := buildUsers(t)

	got, err := db.QueryCSV(context.Background(), "SELECT id, name FROM users ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ada\n2,∅", got)

	got, err = db.QueryCSV(context.Background(), "SELECT id, name FROM users ORDER BY id", csvfix.WithDelimiter(';'))
	require.NoError(t, err)
	assert.Equal(t, "id;name\n1;ada\n2;∅", got)

	got, err = db.QueryCSV(context.Background(), "SELECT id FROM users WHERE id > 10")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAssertResultMatchesCSV(t *testing.T) {
	db := buildUsers(t)
	dir := t.TempDir()
	query := "SELECT id, name FROM users ORDER BY id"

	expected := filepath.Join(dir, "users.csv")
	require.NoError(t, os.WriteFile(expected, []byte("id,name\n1,ada\n2,∅\n\n"), 0o644))
	assert.True(t, db.AssertResultMatchesCSV(t, query, expected))

	wrong := filepath.Join(dir, "wrong.csv")
	require.NoError(t, os.WriteFile(wrong, []byte("id,name\n1,ada\n"), 0o644))
	tb := &recordingTB{}
	assert.False(t, db.AssertResultMatchesCSV(tb, query, wrong))
	require.Len(t, tb.errors, 1)
	assert.Contains(t, tb.errors[0], "does not match")

	tb = &recordingTB{}
	assert.False(t, db.AssertResultMatchesCSV(tb, query, filepath.Join(dir, "absent.csv")))
	require.Len(t, tb.errors, 1)
	assert.Contains(t, tb.errors[0], "cannot read expected CSV")
}

func TestExportCSVFeedsAssertion(t *testing.T) {
	db := buildUsers(t)
	path := filepath.Join(t.TempDir(), "users.csv")
	query := "SELECT name, id FROM users ORDER BY id DESC"

	require.NoError(t, db.ExportCSV(context.Background(), query, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "name,id\n∅,2\nada,1\n", string(data))
	assert.True(t, db.AssertResultMatchesCSV(t, query, path))

	err = db.ExportCSV(context.Background(), "SELECT nope FROM users", path)
	assert.ErrorIs(t, err, dbconn.ErrQueryExecution)
}

func TestLoadSQLFile(t *testing.T) {
	db := buildUsers(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "more_users.sql")
	require.NoError(t, os.WriteFile(path, []byte(
		"INSERT INTO users (id, name) VALUES (3, 'grace');\nINSERT INTO users (id, name) VALUES (4, 'alan');\n"), 0o644))
	require.NoError(t, db.LoadSQLFile(context.Background(), path))
	assert.Equal(t, int64(4), countUsers(t, db))

	err := db.LoadSQLFile(context.Background(), filepath.Join(dir, "absent.sql"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWithTxRollsBack(t *testing.T) {
	db := buildUsers(t)
	ctx := context.Background()

	db.WithTx(t, func(conn *dbconn.Conn) {
		_, err := conn.Exec(ctx, "INSERT INTO users (id, name) VALUES (5, 'linus')")
		require.NoError(t, err)
		n, err := conn.FetchScalar(ctx, "SELECT COUNT(*) FROM users", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
	assert.False(t, db.Conn().InTx())
	assert.Equal(t, int64(2), countUsers(t, db))

	db.WithTx(t, func(conn *dbconn.Conn) {
		require.NoError(t, conn.Commit())
	})
	assert.False(t, db.Conn().InTx())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := buildUsers(t)

	assert.PanicsWithValue(t, "boom", func() {
		db.WithTx(t, func(conn *dbconn.Conn) {
			_, err := conn.Exec(context.Background(), "DELETE FROM users")
			require.NoError(t, err)
			panic("boom")
		})
	})
	assert.False(t, db.Conn().InTx())
	assert.Equal(t, int64(2), countUsers(t, db))
}

func TestAssertConstraintViolation(t *testing.T) {
	db := buildUsers(t)
	ctx := context.Background()
	_, err := db.Conn().Exec(ctx, "CREATE UNIQUE INDEX users_name ON users (name)")
	require.NoError(t, err)

	assert.True(t, db.AssertConstraintViolation(t,
		"INSERT INTO users (id, name) VALUES (1, 'grace')", dbconn.UniqueViolation))
	assert.True(t, db.AssertConstraintViolation(t,
		"INSERT INTO users (id, name) VALUES (9, 'ada')", dbconn.UniqueViolation))
	assert.False(t, db.Conn().InTx())

	tb := &recordingTB{}
	assert.False(t, db.AssertConstraintViolation(tb,
		"INSERT INTO users (id, name) VALUES (9, 'grace')", dbconn.UniqueViolation))
	require.Len(t, tb.errors, 1)
	assert.Equal(t, int64(2), countUsers(t, db), "the statement was rolled back")
}
