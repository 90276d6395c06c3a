//go:build integration

package testdb_test

import (
	"context"
	"testing"

	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/directive"
	"github.com/phrazzld/dbtestkit/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationBuild(t *testing.T) {
	params := testdb.SkipUnlessIntegration(t)

	env := testdb.NewEnvironment()
	t.Cleanup(func() { _ = env.Close() })

	src := directive.List{
		{User: params.User, Database: params.Database, Payload: "CREATE TABLE IF NOT EXISTS dbtestkit_probe (id integer, label varchar(20))"},
		{User: params.User, Database: params.Database, Payload: "DELETE FROM dbtestkit_probe"},
		{User: params.User, Database: params.Database, Payload: "INSERT INTO dbtestkit_probe (id, label) VALUES (1, 'first')"},
	}
	db := env.EnsureBuilt(t, params, src, 3)

	db.AssertNoRows(t, "SELECT id FROM dbtestkit_probe WHERE id < 0")
	got, err := db.QueryCSV(context.Background(), "SELECT id, label FROM dbtestkit_probe")
	require.NoError(t, err)
	assert.Equal(t, "id,label\n1,first", got)

	db.WithTx(t, func(conn *dbconn.Conn) {
		_, err := conn.Exec(context.Background(), "DELETE FROM dbtestkit_probe")
		require.NoError(t, err)
	})
	n, err := db.Conn().FetchScalar(context.Background(), "SELECT COUNT(*) FROM dbtestkit_probe", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = db.Conn().Exec(context.Background(), "DROP TABLE dbtestkit_probe")
	require.NoError(t, err)
}
