package testdb_test

import (
	"testing"

	"github.com/phrazzld/dbtestkit/internal/ciutil"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearDatabaseURLs(t *testing.T) {
	t.Helper()
	for _, name := range ciutil.DatabaseURLEnvVars {
		t.Setenv(name, "")
	}
}

func TestParamsFromEnvUnset(t *testing.T) {
	clearDatabaseURLs(t)

	assert.False(t, testdb.IsIntegrationTestEnvironment())
	assert.True(t, testdb.ShouldSkipDatabaseTest())
	_, err := testdb.ParamsFromEnv()
	assert.ErrorIs(t, err, testdb.ErrNoDatabaseURL)
}

func TestParamsFromEnv(t *testing.T) {
	clearDatabaseURLs(t)
	t.Setenv(ciutil.EnvDatabaseURL, "postgres://app:secret@db:5433/app_1?sslmode=disable")

	assert.True(t, testdb.IsIntegrationTestEnvironment())
	p, err := testdb.ParamsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, dbconn.Params{
		Driver:   dbconn.Postgres,
		Host:     "db",
		Port:     5433,
		User:     "app",
		Password: "secret",
		Database: "app_1",
		Options:  map[string]string{"sslmode": "disable"},
	}, p)
}

func TestParamsFromEnvPrefersTestURL(t *testing.T) {
	clearDatabaseURLs(t)
	t.Setenv(ciutil.EnvDatabaseURL, "postgres://app@db/app_1")
	t.Setenv(ciutil.EnvTestDBURL, "mysql://root@127.0.0.1:3306/shop_2")

	p, err := testdb.ParamsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, dbconn.MySQL, p.Driver)
	assert.Equal(t, "shop_2", p.Database)
}

func TestParamsFromEnvInvalid(t *testing.T) {
	clearDatabaseURLs(t)
	t.Setenv(ciutil.EnvTestDBURL, "oracle://db/app")

	_, err := testdb.ParamsFromEnv()
	assert.ErrorIs(t, err, dbconn.ErrUnsupportedDriver)
}
