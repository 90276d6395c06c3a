package dbconn

import (
	"database/sql"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultSessionLabel is the application_name set on PostgreSQL sessions.
const DefaultSessionLabel = "dbtestkit"

// Opener returns a database handle for p. Tests substitute one returning a
// go-sqlmock handle.
type Opener func(p Params) (*sql.DB, error)

// Registry caches one Conn per Params.Key. It is safe for concurrent use.
type Registry struct {
	open    Opener
	label   string
	logger  *slog.Logger
	logPath string
	now     func() time.Time

	mu    sync.Mutex
	conns map[string]*Conn
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOpener replaces OpenDB as the way handles are opened.
func WithOpener(open Opener) RegistryOption {
	return func(r *Registry) { r.open = open }
}

// WithLogger sets the logger handed to every Conn.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithSessionLabel sets the PostgreSQL application_name.
func WithSessionLabel(label string) RegistryOption {
	return func(r *Registry) { r.label = label }
}

// WithQueryLogPath sets the initial query log path of new connections.
func WithQueryLogPath(path string) RegistryOption {
	return func(r *Registry) { r.logPath = path }
}

// WithClock replaces time.Now for timing queries.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		open:   OpenDB,
		label:  DefaultSessionLabel,
		logger: slog.Default(),
		now:    time.Now,
		conns:  make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the connection registered for p, creating it if absent. It
// never connects or reconnects; the returned Conn connects on first use.
func (r *Registry) Get(p Params) (*Conn, error) {
	key := p.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[key]; ok {
		return c, nil
	}

	d, err := DialectFor(p.Driver)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		params:  p.WithTarget("", ""),
		dialect: d,
		open:    r.open,
		label:   r.label,
		logger:  r.logger,
		now:     r.now,
		logPath: r.logPath,
	}
	r.conns[key] = c
	return c, nil
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// AllStats returns the stats of every registered connection keyed by
// Params.Key.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.Lock()
	conns := maps.Clone(r.conns)
	r.mu.Unlock()

	out := make(map[string]Stats, len(conns))
	for key, c := range conns {
		out[key] = c.Stats()
	}
	return out
}

// Close closes every registered connection and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(conns)) {
		if err := conns[key].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
