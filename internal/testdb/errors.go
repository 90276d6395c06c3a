package testdb

import (
	"errors"
	"fmt"

	"github.com/phrazzld/dbtestkit/internal/ciutil"
)

// ErrMissingDatabaseName is returned when Build is called without a database.
var ErrMissingDatabaseName = errors.New("database name is required")

// ErrNoDatabaseURL is returned by ParamsFromEnv when no URL variable is set.
var ErrNoDatabaseURL = fmt.Errorf("no test database URL: set one of %v", ciutil.DatabaseURLEnvVars)

// BuildError reports a failed test database build.
type BuildError struct {
	Database string
	// Target is the password-free key of the connection parameters.
	Target string
	Err    error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build test database %s (%s): %v", e.Database, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}
