package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/testdb"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DATABASE_URL", "LOG_LEVEL", "LOG_FORMAT",
		"DBTESTKIT_DATABASE_URL", "DBTESTKIT_DATABASE_DRIVER", "DBTESTKIT_DATABASE_HOST",
		"DBTESTKIT_DATABASE_NAME", "DBTESTKIT_BUILD_DIRECTIVE_FILE", "DBTESTKIT_BUILD_RETENTION",
		"DBTESTKIT_BUILD_QUERY_LOG", "DBTESTKIT_LOG_LEVEL", "DBTESTKIT_LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// setupProject writes a config file, a directive file and a seed script
// building a SQLite database in a temporary directory.
func setupProject(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	writeFile(t, filepath.Join(dir, "seed.sql"), "INSERT INTO users (name) VALUES ('ada');\n")
	writeFile(t, filepath.Join(dir, "build.yaml"), `
- ["{{.DBUser}}", "{{.DBName}}", "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"]
- ["{{.DBUser}}", "{{.DBName}}", seed.sql]
`)
	configPath = filepath.Join(dir, "dbtestkit.yaml")
	writeFile(t, configPath, `
database:
  driver: sqlite
  host: `+filepath.Join(dir, "build.db")+`
  name: app_1
build:
  directive_file: `+filepath.Join(dir, "build.yaml")+`
  retention: 2
log:
  level: debug
  format: json
`)
	return dir, configPath
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags([]string{"-c", "x.yaml", "--database", "app_4", "-r", "0"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "x.yaml", opts.configPath)
	assert.Equal(t, "app_4", opts.database)
	assert.True(t, opts.retainSet)
	assert.Equal(t, 0, opts.retention)

	opts, err = parseFlags(nil, &stderr)
	require.NoError(t, err)
	assert.False(t, opts.retainSet)

	_, err = parseFlags([]string{"extra"}, &stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"--help"}, &stderr)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, stderr.String(), "--retention")
}

func TestRunBuildsDatabase(t *testing.T) {
	clearEnv(t)
	dir, configPath := setupProject(t)
	queryLog := filepath.Join(dir, "queries.log")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", configPath, "--query-log", queryLog}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	assert.Contains(t, out, "built")
	assert.Contains(t, out, "app_1")
	assert.Contains(t, out, "sqlite://"+filepath.Join(dir, "build.db")+"/app_1")
	assert.NotContains(t, out, "prune failed")
	assert.Contains(t, stderr.String(), "dbbuild starting")

	reg := dbconn.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	conn, err := reg.Get(dbconn.Params{Driver: dbconn.SQLite, Host: filepath.Join(dir, "build.db")})
	require.NoError(t, err)
	name, err := conn.FetchScalar(context.Background(), "SELECT name FROM users", 0)
	require.NoError(t, err)
	assert.Equal(t, "ada", name)
}

func TestRunDatabaseOverride(t *testing.T) {
	clearEnv(t)
	_, configPath := setupProject(t)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-c", configPath, "-d", "app_2"}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.True(t, strings.HasPrefix(stdout.String(), "built"))
	assert.Contains(t, stdout.String(), "app_2")
}

func TestRunFailures(t *testing.T) {
	clearEnv(t)
	dir, configPath := setupProject(t)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-c", filepath.Join(dir, "absent.yaml")}, &stdout, &stderr)
	assert.ErrorContains(t, err, "failed to load configuration")

	writeFile(t, filepath.Join(dir, "build.yaml"), `- ["", "{{.DBName}}", "CREATE TABLE broken ("]`)
	err = run(context.Background(), []string{"-c", configPath}, &stdout, &stderr)
	var buildErr *testdb.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "app_1", buildErr.Database)
	assert.Empty(t, stdout.String())
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	db := &testdb.Database{Name: "app_5", Pruned: []string{"app_1", "app_2"}}
	err := report(&out, db, map[string]dbconn.Stats{
		"postgres://app@db:5432/app_5": {Queries: 4},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "app_5")
	assert.Contains(t, lines[1], "pruned")
	assert.Contains(t, lines[2], "app_2")
	assert.Contains(t, lines[3], "4 queries")
}
