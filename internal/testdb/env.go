package testdb

import (
	"testing"

	"github.com/phrazzld/dbtestkit/internal/ciutil"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
)

// IsIntegrationTestEnvironment returns true if a test database URL is
// configured, indicating that integration tests can be run.
func IsIntegrationTestEnvironment() bool {
	return ciutil.GetTestDatabaseURL(nil) != ""
}

// ShouldSkipDatabaseTest returns true if no test database is configured.
func ShouldSkipDatabaseTest() bool {
	return !IsIntegrationTestEnvironment()
}

// ParamsFromEnv parses the configured test database URL.
func ParamsFromEnv() (dbconn.Params, error) {
	raw := ciutil.GetTestDatabaseURL(nil)
	if raw == "" {
		return dbconn.Params{}, ErrNoDatabaseURL
	}
	return dbconn.ParseURL(raw)
}

// SkipUnlessIntegration skips t when no test database is configured and
// otherwise returns its parameters.
func SkipUnlessIntegration(t testing.TB) dbconn.Params {
	t.Helper()
	if ShouldSkipDatabaseTest() {
		t.Skipf("%v - skipping integration test", ErrNoDatabaseURL)
	}
	p, err := ParamsFromEnv()
	if err != nil {
		t.Fatalf("invalid test database URL: %v", err)
	}
	return p
}
