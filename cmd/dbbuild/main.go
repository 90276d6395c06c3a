// Package main implements dbbuild, which builds a test database from a
// directive file, prunes its old generations and reports query timings.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/phrazzld/dbtestkit/internal/ciutil"
	"github.com/phrazzld/dbtestkit/internal/config"
	"github.com/phrazzld/dbtestkit/internal/dbconn"
	"github.com/phrazzld/dbtestkit/internal/directive"
	"github.com/phrazzld/dbtestkit/internal/platform/logger"
	"github.com/phrazzld/dbtestkit/internal/redact"
	"github.com/phrazzld/dbtestkit/internal/testdb"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "dbbuild: %s\n", redact.Error(err))
		}
		os.Exit(1)
	}
}

// options are the command line overrides of the loaded configuration.
type options struct {
	configPath string
	database   string
	retention  int
	retainSet  bool
	queryLog   string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("dbbuild", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "",
		"config file (default: "+config.ConfigName+".yaml in the working directory or project root)")
	fs.StringVarP(&opts.database, "database", "d", "", "database to build, overrides database.name")
	fs.IntVarP(&opts.retention, "retention", "r", 0, "generations to keep, overrides build.retention")
	fs.StringVar(&opts.queryLog, "query-log", "", "append every query to this file, overrides build.query_log")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	opts.retainSet = fs.Changed("retention")
	return opts, nil
}

// run loads the configuration, builds the database and prints a report to
// stdout. Logs go to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.SetupWithWriter(cfg.Log, stderr)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	params, err := cfg.Database.Params()
	if err != nil {
		return err
	}
	if opts.database != "" {
		params = params.WithTarget("", opts.database)
	}
	retention := cfg.Build.Retention
	if opts.retainSet {
		retention = opts.retention
	}
	queryLog := cfg.Build.QueryLog
	if opts.queryLog != "" {
		queryLog = opts.queryLog
	}

	directiveFile, err := ciutil.ResolvePath(cfg.Build.DirectiveFile, log)
	if err != nil {
		return err
	}

	env := testdb.NewEnvironment(
		testdb.WithLogger(log),
		testdb.WithLoaders(map[dbconn.DriverKind]directive.Loader{
			dbconn.Postgres: &directive.PsqlLoader{Binary: cfg.Build.PsqlBinary, Logger: log},
		}),
		testdb.WithThreshold(cfg.Build.Threshold),
		testdb.WithTempDir(cfg.Build.TempDir),
		testdb.WithPasswords(cfg.Build.Passwords),
		testdb.WithQueryLogPath(queryLog),
	)
	defer func() {
		if err := env.Close(); err != nil {
			log.Warn("failed to close connections", slog.String("error", redact.Error(err)))
		}
	}()

	log.Info("dbbuild starting",
		slog.String("target", params.Key()),
		slog.String("directive_file", directiveFile),
		slog.Int("retention", retention),
		slog.String("run_id", env.RunID()))

	db, err := env.Build(ctx, params, directive.FileSource{Path: directiveFile}, retention)
	if err != nil {
		return err
	}
	return report(stdout, db, env.Registry().AllStats())
}

func report(w io.Writer, db *testdb.Database, stats map[string]dbconn.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "built\t%s\n", db.Name)
	for _, name := range db.Pruned {
		fmt.Fprintf(tw, "pruned\t%s\n", name)
	}
	if db.PruneErr != nil && !errors.Is(db.PruneErr, dbconn.ErrUnsupportedDriver) {
		fmt.Fprintf(tw, "prune failed\t%s\n", redact.Error(db.PruneErr))
	}
	for _, key := range slices.Sorted(maps.Keys(stats)) {
		s := stats[key]
		fmt.Fprintf(tw, "stats\t%s\t%d queries\t%.3fs\n", key, s.Queries, s.Seconds())
	}
	return tw.Flush()
}
