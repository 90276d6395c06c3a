// Package testdb builds named test databases once per process and gives
// tests a managed connection with assertion helpers.
//
// An Environment owns the connection registry and remembers which databases
// it has built. The first Build of a database runs its directive list,
// then prunes older generations of the same prefix: a database named
// app_12 is generation 12 of "app", and only the newest generations up to
// the retention count survive.
//
// # Basic Usage
//
//	var env = testdb.NewEnvironment()
//
//	func TestReport(t *testing.T) {
//	    params := testdb.SkipUnlessIntegration(t).WithTarget("app", "app_12")
//	    db := env.EnsureBuilt(t, params, directive.FileSource{Path: "testdata/build.yaml"}, 3)
//
//	    db.AssertNoRows(t, "SELECT * FROM orders WHERE total < 0")
//	    db.AssertResultMatchesCSV(t, "SELECT id, iso FROM country ORDER BY id", "testdata/country.csv")
//	}
//
// # Environment Variables
//
//   - DBTESTKIT_TEST_DB_URL: preferred connection URL for integration tests
//   - DATABASE_URL: conventional fallback
//   - DBTESTKIT_DATABASE_URL: fallback shared with the dbbuild command
package testdb
