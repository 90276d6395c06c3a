package testdb

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/directive"
	"github.com/phrazzld/dbtestkit/internal/platform/logger"
	"github.com/phrazzld/dbtestkit/internal/redact"
)

// State is the build state of one database within an Environment.
type State int

// Build states. A database only ever moves NotBuilt -> Building -> Built,
// or back to NotBuilt when its build fails.
const (
	NotBuilt State = iota
	Building
	Built
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Built:
		return "built"
	default:
		return "not built"
	}
}

// Environment builds test databases at most once each and hands out their
// managed connections. It is safe for concurrent use; builds are serialized.
type Environment struct {
	registry     *dbconn.Registry
	ownsRegistry bool
	logger       *slog.Logger
	runID        string
	loaders      map[dbconn.DriverKind]directive.Loader
	threshold    int64
	baseDir      string
	tempDir      string
	passwords    map[string]string
	queryLog     string

	mu     sync.Mutex
	states map[string]State
}

// Option configures an Environment.
type Option func(*Environment)

// WithRegistry makes the environment use reg instead of creating its own.
// The caller stays responsible for closing reg.
func WithRegistry(reg *dbconn.Registry) Option {
	return func(e *Environment) { e.registry = reg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Environment) { e.logger = l }
}

// WithRunID replaces the generated run id.
func WithRunID(id string) Option {
	return func(e *Environment) { e.runID = id }
}

// WithLoaders replaces the external loaders used for large SQL files.
func WithLoaders(loaders map[dbconn.DriverKind]directive.Loader) Option {
	return func(e *Environment) { e.loaders = loaders }
}

// WithThreshold sets the SQL file size handed to external loaders.
func WithThreshold(n int64) Option {
	return func(e *Environment) { e.threshold = n }
}

// WithBaseDir sets the directory relative file directives resolve against.
func WithBaseDir(dir string) Option {
	return func(e *Environment) { e.baseDir = dir }
}

// WithTempDir sets where decompressed .gz directives are written.
func WithTempDir(dir string) Option {
	return func(e *Environment) { e.tempDir = dir }
}

// WithPasswords sets per-user passwords for directive targets.
func WithPasswords(passwords map[string]string) Option {
	return func(e *Environment) { e.passwords = passwords }
}

// WithQueryLogPath makes every built database log its queries to path.
func WithQueryLogPath(path string) Option {
	return func(e *Environment) { e.queryLog = path }
}

// NewEnvironment returns an environment with nothing built yet.
func NewEnvironment(opts ...Option) *Environment {
	e := &Environment{
		logger:    slog.Default(),
		runID:     uuid.NewString(),
		threshold: directive.DefaultThreshold,
		states:    make(map[string]State),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = dbconn.NewRegistry(
			dbconn.WithLogger(e.logger),
			dbconn.WithSessionLabel(e.SessionLabel()),
		)
		e.ownsRegistry = true
	}
	if e.loaders == nil {
		e.loaders = directive.DefaultLoaders(e.logger)
	}
	return e
}

// RunID identifies this environment in logs and session labels.
func (e *Environment) RunID() string {
	return e.runID
}

// SessionLabel is the PostgreSQL application_name of the environment's
// connections.
func (e *Environment) SessionLabel() string {
	id := e.runID
	if len(id) > 8 {
		id = id[:8]
	}
	return dbconn.DefaultSessionLabel + "-" + id
}

// Registry returns the connection registry.
func (e *Environment) Registry() *dbconn.Registry {
	return e.registry
}

// State reports the build state of the named database.
func (e *Environment) State(database string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[database]
}

// Close closes the registry if the environment created it.
func (e *Environment) Close() error {
	if !e.ownsRegistry {
		return nil
	}
	return e.registry.Close()
}

// Build makes sure params.Database exists and returns its managed
// connection. The first call for a database runs the directives from src
// and then prunes old generations, keeping retention of them. Later calls
// only return the connection. A failed build leaves the database NotBuilt
// so the next call retries it.
func (e *Environment) Build(ctx context.Context, params dbconn.Params, src directive.Source, retention int) (*Database, error) {
	name := params.Database
	if name == "" {
		return nil, &BuildError{Target: params.Key(), Err: ErrMissingDatabaseName}
	}

	ctx = logger.WithRunID(logger.WithLogger(ctx, e.logger), e.runID)
	log := logger.FromContextOrDefault(ctx).With(slog.String("database", name))

	e.mu.Lock()
	defer e.mu.Unlock()

	firstBuild := e.states[name] != Built
	if firstBuild {
		e.states[name] = Building
		log.InfoContext(ctx, "building test database", slog.String("target", params.Key()))

		if err := e.run(ctx, params, src); err != nil {
			e.states[name] = NotBuilt
			log.ErrorContext(ctx, "test database build failed", slog.String("error", redact.Error(err)))
			return nil, &BuildError{Database: name, Target: params.Key(), Err: err}
		}
		e.states[name] = Built
	}

	conn, err := e.registry.Get(params)
	if err != nil {
		return nil, &BuildError{Database: name, Target: params.Key(), Err: err}
	}
	if e.queryLog != "" {
		conn.SetQueryLogPath(e.queryLog)
	}
	db := &Database{Name: name, Params: params, conn: conn}
	if !firstBuild {
		return db, nil
	}

	db.Pruned, db.PruneErr = Prune(ctx, conn, params, retention)
	switch {
	case errors.Is(db.PruneErr, dbconn.ErrUnsupportedDriver):
		log.DebugContext(ctx, "pruning not supported for driver", slog.String("driver", string(params.Driver)))
	case db.PruneErr != nil:
		log.WarnContext(ctx, "pruning old generations failed", slog.String("error", redact.Error(db.PruneErr)))
	}
	log.InfoContext(ctx, "test database ready", slog.Int("pruned", len(db.Pruned)))
	return db, nil
}

func (e *Environment) run(ctx context.Context, params dbconn.Params, src directive.Source) error {
	if src == nil {
		return errors.New("no directive source")
	}
	directives, err := src.Directives(directive.Vars{DBName: params.Database, DBUser: params.User})
	if err != nil {
		return err
	}

	interp := directive.NewInterpreter(e.registry, params, e.logger)
	interp.Loaders = e.loaders
	interp.Threshold = e.threshold
	interp.BaseDir = e.baseDir
	interp.TempDir = e.tempDir
	interp.Passwords = e.passwords
	return interp.Run(ctx, directives)
}

// EnsureBuilt is Build for tests: a failed build fails t immediately. The
// query log, if any, is removed when the test ends.
func (e *Environment) EnsureBuilt(t testing.TB, params dbconn.Params, src directive.Source, retention int) *Database {
	t.Helper()
	db, err := e.Build(context.Background(), params, src, retention)
	if err != nil {
		t.Fatalf("test database setup failed: %v", err)
		return nil
	}
	if path := db.conn.QueryLogPath(); path != "" {
		t.Cleanup(func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				t.Logf("Warning: failed to remove query log %s: %v", path, err)
			}
		})
	}
	return db
}
