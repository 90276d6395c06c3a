package directive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/redact"
)

// Loader executes an SQL file out of process against target.
type Loader interface {
	Load(ctx context.Context, target dbconn.Params, path string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, target dbconn.Params, path string) error

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, target dbconn.Params, path string) error {
	return f(ctx, target, path)
}

// DefaultLoaders returns the loaders available out of the box: psql for
// PostgreSQL.
func DefaultLoaders(logger *slog.Logger) map[dbconn.DriverKind]Loader {
	return map[dbconn.DriverKind]Loader{
		dbconn.Postgres: &PsqlLoader{Logger: logger},
	}
}

// LoadError describes a failed external load.
type LoadError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrExternalLoad, e.Command)
	if e.ExitCode >= 0 {
		msg += " exited with status " + strconv.Itoa(e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying process error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrExternalLoad) hold for every LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrExternalLoad
}

// DefaultPsqlBinary is the psql executable looked up on PATH.
const DefaultPsqlBinary = "psql"

// PsqlLoader runs
//
//	psql -v ON_ERROR_STOP=1 -h <host> -p <port> -U <user> <database> --file <path>
//
// passing the password through PGPASSWORD. The call blocks until psql exits;
// only ctx can cancel it.
type PsqlLoader struct {
	// Binary defaults to DefaultPsqlBinary.
	Binary string
	// Stdout receives psql's standard output. Defaults to io.Discard.
	Stdout io.Writer
	Logger *slog.Logger
}

// Args returns the psql arguments for loading path into target.
func (l *PsqlLoader) Args(target dbconn.Params, path string) []string {
	args := []string{"-v", "ON_ERROR_STOP=1"}
	if target.Host != "" {
		args = append(args, "-h", target.Host)
	}
	if target.Port != 0 {
		args = append(args, "-p", strconv.Itoa(target.Port))
	}
	if target.User != "" {
		args = append(args, "-U", target.User)
	}
	return append(args, target.Database, "--file", path)
}

// Load implements Loader.
func (l *PsqlLoader) Load(ctx context.Context, target dbconn.Params, path string) error {
	bin := l.Binary
	if bin == "" {
		bin = DefaultPsqlBinary
	}
	args := l.Args(target, path)
	command := shellquote.Join(append([]string{bin}, args...)...)

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "shell", slog.String("command", command))

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = os.Environ()
	if target.Password != "" {
		cmd.Env = append(cmd.Env, "PGPASSWORD="+target.Password)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = io.Discard
	if l.Stdout != nil {
		cmd.Stdout = l.Stdout
	}

	if err := cmd.Run(); err != nil {
		loadErr := &LoadError{
			Command:  command,
			ExitCode: -1,
			Stderr:   redact.Credentials(strings.TrimSpace(stderr.String())),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			loadErr.ExitCode = exitErr.ExitCode()
		}
		return loadErr
	}
	return nil
}
