package ciutil

import (
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/phrazzld/dbtestkit/internal/redact"
)

// Environment variable names used across the codebase.
const (
	// CI environment detection variables
	EnvCI               = "CI"
	EnvGitHubActions    = "GITHUB_ACTIONS"
	EnvGitHubWorkspace  = "GITHUB_WORKSPACE"
	EnvGitLabCI         = "GITLAB_CI"
	EnvGitLabProjectDir = "CI_PROJECT_DIR"
	EnvJenkinsURL       = "JENKINS_URL"
	EnvTravisCI         = "TRAVIS"
	EnvCircleCI         = "CIRCLECI"

	// EnvProjectRoot overrides project root detection.
	EnvProjectRoot = "DBTESTKIT_PROJECT_ROOT"

	// Database connection variables, in order of preference.
	EnvTestDBURL            = "DBTESTKIT_TEST_DB_URL"
	EnvDatabaseURL          = "DATABASE_URL"
	EnvDBTestKitDatabaseURL = "DBTESTKIT_DATABASE_URL"

	// Log settings
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ciMarkers are set by at least one supported CI system.
var ciMarkers = []string{EnvCI, EnvGitHubActions, EnvGitLabCI, EnvJenkinsURL, EnvTravisCI, EnvCircleCI}

// IsCI reports whether the process runs under a CI system. CI runs log in
// JSON with provider metadata and usually get their database URL from the
// pipeline.
func IsCI() bool {
	return slices.ContainsFunc(ciMarkers, func(name string) bool {
		return os.Getenv(name) != ""
	})
}

// IsGitHubActions returns true if the current environment is GitHub Actions.
func IsGitHubActions() bool {
	return os.Getenv(EnvGitHubActions) != "" && os.Getenv(EnvGitHubWorkspace) != ""
}

// IsGitLabCI returns true if the current environment is GitLab CI.
func IsGitLabCI() bool {
	return os.Getenv(EnvGitLabCI) != "" && os.Getenv(EnvGitLabProjectDir) != ""
}

// GetEnvWithFallbacks returns the value of the first non-empty environment
// variable in envVars, or defaultValue. Using any variable but the first is
// logged as a warning when logger is non-nil.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, envVar := range envVars {
		if val := os.Getenv(envVar); val != "" {
			if i > 0 && logger != nil {
				logger.Warn("preferred environment variable not set, using fallback",
					"preferred_var", envVars[0],
					"used_var", envVar,
					"value", MaskSensitiveValue(val))
			}
			return val
		}
	}
	return defaultValue
}

// MaskSensitiveValue masks credentials in connection strings and shortens
// values that look like keys or tokens, so they can be logged.
func MaskSensitiveValue(value string) string {
	if masked := redact.Credentials(value); masked != value {
		return masked
	}

	lower := strings.ToLower(value)
	if len(value) > 8 && (strings.Contains(lower, "key") ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret")) {
		return value[:4] + "****" + value[len(value)-4:]
	}
	return value
}
