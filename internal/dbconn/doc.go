// Package dbconn wraps database/sql with the connection handling test suites
// need: one pinned session per parameter set, per-driver session setup,
// timing statistics and an optional query log.
//
// Connections are obtained from a Registry, which is explicitly constructed
// and owned by its caller:
//
//	reg := dbconn.NewRegistry(dbconn.WithLogger(logger))
//	defer reg.Close()
//
//	conn, err := reg.Get(dbconn.Params{Driver: dbconn.Postgres, Host: "localhost", Port: 5432,
//	    Database: "app_42", User: "app"})
//	rows, err := conn.FetchAll(ctx, "SELECT id, name FROM country ORDER BY id")
//
// Driver failures surface as *ConnectError or *QueryError, which match
// ErrConnect and ErrQueryExecution with errors.Is and unwrap to the driver
// error.
package dbconn
