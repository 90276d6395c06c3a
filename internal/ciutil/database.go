package ciutil

import "log/slog"

// DatabaseURLEnvVars lists the variables holding a test database URL, most
// preferred first.
var DatabaseURLEnvVars = []string{EnvTestDBURL, EnvDatabaseURL, EnvDBTestKitDatabaseURL}

// GetTestDatabaseURL returns the test database URL from the first set
// variable of DatabaseURLEnvVars, or "" when none is set.
func GetTestDatabaseURL(logger *slog.Logger) string {
	dbURL := GetEnvWithFallbacks(DatabaseURLEnvVars, "", logger)
	if logger != nil {
		if dbURL == "" {
			logger.Info("No database URL environment variables found")
		} else {
			logger.Info("Using test database URL from environment",
				"value", MaskSensitiveValue(dbURL),
				"ci", IsCI(),
			)
		}
	}
	return dbURL
}
