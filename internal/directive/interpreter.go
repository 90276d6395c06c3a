package directive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
)

// DefaultThreshold is the SQL file size from which files go to an external
// Loader instead of being executed in-process.
const DefaultThreshold int64 = 1 << 20

// Interpreter runs directive lists.
type Interpreter struct {
	// Registry supplies the in-process connection of each target.
	Registry *dbconn.Registry
	// Base holds the host, port, driver and default credentials. Directives
	// override its user and database.
	Base dbconn.Params
	// Passwords maps a user to its password. Users not listed use
	// Base.Password.
	Passwords map[string]string
	// Loaders maps a driver kind to its external loader.
	Loaders map[dbconn.DriverKind]Loader
	// Threshold is the file size in bytes at which Loaders take over.
	Threshold int64
	// BaseDir resolves relative file payloads. Empty means the working
	// directory.
	BaseDir string
	// TempDir receives decompressed .gz payloads. Empty means os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// NewInterpreter returns an interpreter with the default threshold and
// loaders.
func NewInterpreter(reg *dbconn.Registry, base dbconn.Params, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		Registry:  reg,
		Base:      base,
		Loaders:   DefaultLoaders(logger),
		Threshold: DefaultThreshold,
		Logger:    logger,
	}
}

// Run executes directives in order and stops at the first failure. The
// returned error names the directive index, its target and its payload.
func (in *Interpreter) Run(ctx context.Context, directives []Directive) error {
	for i, d := range directives {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("directive %d (%s@%s) not started: %w", i, d.User, d.Database, err)
		}
		if err := in.runOne(ctx, d); err != nil {
			return fmt.Errorf("directive %d (%s@%s, %s %q) failed: %w",
				i, d.User, d.Database, Classify(d.Payload), strings.TrimSpace(d.Payload), err)
		}
	}
	return nil
}

// Target returns the connection parameters a directive runs with.
func (in *Interpreter) Target(d Directive) dbconn.Params {
	target := in.Base.WithTarget(d.User, d.Database)
	if pw, ok := in.Passwords[target.User]; ok {
		target.Password = pw
	} else {
		target.Password = in.Base.Password
	}
	return target
}

func (in *Interpreter) runOne(ctx context.Context, d Directive) error {
	payload := strings.TrimSpace(d.Payload)
	if payload == "" {
		return fmt.Errorf("%w: empty payload", ErrMalformedDirective)
	}
	target := in.Target(d)

	switch Classify(payload) {
	case GzipFile:
		return in.runGzipFile(ctx, target, in.resolve(payload))
	case SQLFile:
		return in.runSQLFile(ctx, target, in.resolve(payload))
	default:
		return in.exec(ctx, target, Terminate(payload))
	}
}

func (in *Interpreter) resolve(path string) string {
	if filepath.IsAbs(path) || in.BaseDir == "" {
		return path
	}
	return filepath.Join(in.BaseDir, path)
}

func (in *Interpreter) exec(ctx context.Context, target dbconn.Params, sql string) error {
	conn, err := in.Registry.Get(target)
	if err != nil {
		return err
	}
	in.logger().DebugContext(ctx, "SQL",
		slog.String("target", target.Key()),
		slog.String("query", sql))
	_, err = conn.Exec(ctx, sql)
	return err
}

func (in *Interpreter) runSQLFile(ctx context.Context, target dbconn.Params, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot stat SQL file: %w", err)
	}

	threshold := in.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if info.Size() < threshold {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read SQL file: %w", err)
		}
		return in.exec(ctx, target, string(data))
	}

	loader, ok := in.Loaders[target.Driver]
	if !ok || loader == nil {
		return fmt.Errorf("%w: no external loader for %q", dbconn.ErrUnsupportedDriver, target.Driver)
	}
	in.logger().InfoContext(ctx, "loading SQL file with external loader",
		slog.String("target", target.Key()),
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return loader.Load(ctx, target, path)
}

func (in *Interpreter) runGzipFile(ctx context.Context, target dbconn.Params, path string) error {
	tmp, err := in.gunzip(path)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			in.logger().Warn("failed to remove decompressed file",
				slog.String("file", tmp),
				slog.String("error", rmErr.Error()))
		}
	}()
	return in.runSQLFile(ctx, target, tmp)
}

// gunzip decompresses path into a new temporary file and returns its name.
// On failure nothing is left behind.
func (in *Interpreter) gunzip(path string) (name string, err error) {
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open gzip file: %w", err)
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := os.CreateTemp(in.TempDir, "dbtestkit-*.sql")
	if err != nil {
		return "", fmt.Errorf("cannot create temporary file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("cannot write temporary file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(dst.Name())
			name = ""
		}
	}()

	zr, err := gzip.NewReader(src)
	if err != nil {
		return "", fmt.Errorf("cannot decompress %s: %w", path, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	if _, err := io.Copy(dst, zr); err != nil {
		return "", fmt.Errorf("cannot decompress %s: %w", path, err)
	}
	return dst.Name(), nil
}

func (in *Interpreter) logger() *slog.Logger {
	if in.Logger == nil {
		return slog.Default()
	}
	return in.Logger
}
