package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mockenv/mockenv/pkg/cli/internal/output"
	"github.com/mockenv/mockenv/pkg/cli/internal/ports"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/proxy"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/schedule"
	"github.com/mockenv/mockenv/pkg/server"
	"github.com/mockenv/mockenv/pkg/watch"
)

// startFlagVals is the package-level instance bound to cobra flags.
var startFlagVals startFlags

// startFlags holds all parsed command-line flags for the start command.
type startFlags struct {
	// Listener overrides
	port     int
	hostname string
	h2c      bool
	noAdmin  bool

	// Runs
	seed          uint64
	resetSchedule string

	// Watch mode
	watch    bool
	debounce time.Duration

	// Request log
	logDB             string
	maxLogs           int
	retention         time.Duration
	retentionSchedule string

	// Metrics
	metrics bool

	// Route recording
	record        bool
	recordInclude []string
	recordExclude []string
	recordOutput  string
}

var startCmd = &cobra.Command{
	Use:   "start <file|glob>...",
	Short: "Serve one or more environments (foreground)",
	Long: `Serve one or more environments in the foreground.

Every environment document listens on its own port. Arguments are files or
glob patterns (** matches across directories). The server runs until
interrupted; recorded routes are saved on shutdown.`,
	Example: `  # Serve an environment
  mockenv start api.json

  # Serve every environment under envs/ and reload them on change
  mockenv start 'envs/**/*.json' --watch

  # Override the port and keep the request log in SQLite for a day
  mockenv start api.yaml --port 4000 --log-db requests.db --log-retention 24h

  # Reset globals, data buckets and sequences every hour
  mockenv start api.json --reset-schedule '@every 1h'

  # Record proxied routes, skipping static assets
  mockenv start api.json --record --record-exclude '/static/**'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger()
		if err != nil {
			return err
		}
		defer closeLog()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runStart(ctx, cmd.OutOrStdout(), args, &startFlagVals, log)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	f := &startFlagVals

	startCmd.Flags().IntVarP(&f.port, "port", "p", 0, "Port override (single environment only)")
	startCmd.Flags().StringVar(&f.hostname, "hostname", "", "Hostname override for every environment")
	startCmd.Flags().BoolVar(&f.h2c, "h2c", false, "Accept HTTP/2 without TLS")
	startCmd.Flags().BoolVar(&f.noAdmin, "no-admin", false, "Disable the "+server.AdminPrefix+" API")

	startCmd.Flags().Uint64Var(&f.seed, "seed", 0, "Faker seed for every run (0 = random)")
	startCmd.Flags().StringVar(&f.resetSchedule, "reset-schedule", "", "Cron schedule resetting runs (e.g. '@every 1h', '0 * * * *')")

	startCmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Reload environments when their file changes")
	startCmd.Flags().DurationVar(&f.debounce, "watch-debounce", watch.DefaultDebounce, "Delay before reloading a changed file")

	startCmd.Flags().StringVar(&f.logDB, "log-db", "", "SQLite database for the request log (default: in memory)")
	startCmd.Flags().IntVar(&f.maxLogs, "max-logs", server.DefaultMaxLogs, "Entries kept by the in-memory request log")
	startCmd.Flags().DurationVar(&f.retention, "log-retention", 0, "Drop request log entries older than this (0 = keep)")
	startCmd.Flags().StringVar(&f.retentionSchedule, "log-retention-schedule", "@every 1m", "Cron schedule of request log pruning")

	startCmd.Flags().BoolVar(&f.metrics, "metrics", false, "Expose Prometheus metrics on "+server.AdminPrefix+"/metrics")

	startCmd.Flags().BoolVar(&f.record, "record", false, "Record proxied routes into the environment")
	startCmd.Flags().StringSliceVar(&f.recordInclude, "record-include", nil, "Only record paths matching these globs")
	startCmd.Flags().StringSliceVar(&f.recordExclude, "record-exclude", nil, "Never record paths matching these globs")
	startCmd.Flags().StringVar(&f.recordOutput, "record-output", "", "File receiving recorded routes (default: the environment file)")
}

// loadedEnv is an environment document and the file it came from.
type loadedEnv struct {
	path string
	env  *environment.Environment
}

// instance is one served environment.
type instance struct {
	path     string
	server   *server.Server
	recorder *proxy.Recorder
	db       *requestlog.SQLiteStore
}

// runStart serves the environments named by args until ctx is done.
func runStart(ctx context.Context, w io.Writer, args []string, f *startFlags, log *slog.Logger) error {
	if err := validateStartFlags(f); err != nil {
		return err
	}
	envs, err := loadEnvironments(args)
	if err != nil {
		return err
	}
	if err := applyOverrides(envs, f); err != nil {
		return err
	}
	if err := checkPorts(envs); err != nil {
		return err
	}

	instances := make([]*instance, 0, len(envs))
	closeAll := func() {
		for _, inst := range instances {
			inst.close(log, f)
		}
	}
	for _, le := range envs {
		inst, err := newInstance(le, f, len(envs) > 1, log)
		if err != nil {
			closeAll()
			return err
		}
		instances = append(instances, inst)
		if err := inst.server.Start(); err != nil {
			closeAll()
			return fmt.Errorf("starting %s: %w", le.path, err)
		}
		env := inst.server.Environment()
		fmt.Fprintf(w, "Serving %q on %s (%d routes) from %s\n", env.Name, baseURL(inst.server), len(env.Routes), le.path)
	}

	sched, err := newScheduler(instances, f, log)
	if err != nil {
		closeAll()
		return err
	}
	sched.Start(ctx)

	if f.watch {
		go watchInstances(ctx, instances, f, log)
	}

	<-ctx.Done()
	fmt.Fprintln(w, "Shutting down...")
	sched.Stop()
	closeAll()
	return nil
}

func validateStartFlags(f *startFlags) error {
	if f.port < 0 || f.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", f.port)
	}
	if f.maxLogs < 0 {
		return fmt.Errorf("invalid --max-logs %d", f.maxLogs)
	}
	if f.retention < 0 {
		return fmt.Errorf("invalid --log-retention %s", f.retention)
	}
	filter := &proxy.Filter{IncludePaths: f.recordInclude, ExcludePaths: f.recordExclude}
	if err := filter.Validate(); err != nil {
		return fmt.Errorf("invalid record filter: %w", err)
	}
	return nil
}

// loadEnvironments loads every file or glob argument. A file named twice
// is served once.
func loadEnvironments(args []string) ([]loadedEnv, error) {
	seen := map[string]bool{}
	var out []loadedEnv
	add := func(path string, env *environment.Environment) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, loadedEnv{path: abs, env: env})
		}
		return nil
	}

	for _, arg := range args {
		if hasMeta(arg) {
			envs, paths, err := environment.LoadGlob(arg)
			if err != nil {
				return nil, err
			}
			for i, env := range envs {
				if err := add(paths[i], env); err != nil {
					return nil, err
				}
			}
			continue
		}
		env, err := environment.LoadFromFile(arg)
		if err != nil {
			return nil, err
		}
		if err := add(arg, env); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOverrides(envs []loadedEnv, f *startFlags) error {
	if f.port != 0 && len(envs) > 1 {
		return fmt.Errorf("--port applies to a single environment, got %d", len(envs))
	}
	if f.recordOutput != "" && len(envs) > 1 {
		return fmt.Errorf("--record-output applies to a single environment, got %d", len(envs))
	}
	for _, le := range envs {
		overrideEnv(le.env, f)
	}
	return nil
}

// overrideEnv applies the command-line overrides to a freshly loaded
// environment.
func overrideEnv(env *environment.Environment, f *startFlags) {
	if f.port != 0 {
		env.Port = f.port
	}
	if f.hostname != "" {
		env.Hostname = f.hostname
	}
	if f.record {
		env.RecordRoutes = true
	}
}

func checkPorts(envs []loadedEnv) error {
	list := make([]int, len(envs))
	for i, le := range envs {
		list[i] = le.env.Port
	}
	if port, a, b, found := ports.Duplicate(list); found {
		return fmt.Errorf("port %d is used by both %s and %s", port, envs[a].path, envs[b].path)
	}
	for _, le := range envs {
		if err := ports.Check(le.env.Hostname, le.env.Port); err != nil {
			return fmt.Errorf("port %d for %s is not available: %w", le.env.Port, le.path, err)
		}
	}
	return nil
}

func newInstance(le loadedEnv, f *startFlags, multi bool, log *slog.Logger) (*instance, error) {
	inst := &instance{
		path: le.path,
		recorder: proxy.NewRecorder(&proxy.Filter{
			IncludePaths: f.recordInclude,
			ExcludePaths: f.recordExclude,
		}, log),
	}

	opts := []server.Option{
		server.WithLogger(log.With("environment", le.env.Name)),
		server.WithBaseDir(filepath.Dir(le.path)),
		server.WithH2C(f.h2c),
		server.WithAdmin(!f.noAdmin),
		server.WithRecorder(inst.recorder),
	}
	if f.seed != 0 {
		opts = append(opts, server.WithSeed(f.seed))
	}
	if f.metrics {
		opts = append(opts, server.WithMetrics(metrics.New()))
	}

	if f.logDB != "" {
		path := f.logDB
		if multi {
			path = dbPathFor(f.logDB, le.env.Port)
		}
		db, err := requestlog.OpenSQLite(path, log)
		if err != nil {
			return nil, fmt.Errorf("opening request log %s: %w", path, err)
		}
		inst.db = db
		opts = append(opts, server.WithRequestLog(db))
	} else if f.maxLogs > 0 {
		opts = append(opts, server.WithRequestLog(requestlog.NewMemoryStore(f.maxLogs)))
	}

	inst.server = server.New(le.env, opts...)
	return inst, nil
}

// dbPathFor gives every environment its own database when several are
// served: requests.db becomes requests-3000.db.
func dbPathFor(base string, port int) string {
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), port, ext)
}

func newScheduler(instances []*instance, f *startFlags, log *slog.Logger) (*schedule.Scheduler, error) {
	sched := schedule.New(log)
	for _, inst := range instances {
		if f.resetSchedule != "" {
			if err := sched.AddRestart(f.resetSchedule, inst.server.Restart); err != nil {
				return nil, fmt.Errorf("--reset-schedule: %w", err)
			}
		}
		if f.retention > 0 {
			pruner, ok := inst.server.RequestLog().(requestlog.Pruner)
			if !ok {
				continue
			}
			if err := sched.AddRetention(f.retentionSchedule, pruner, f.retention); err != nil {
				return nil, fmt.Errorf("--log-retention-schedule: %w", err)
			}
		}
	}
	return sched, nil
}

// watchInstances reloads an environment when its file changes. A document
// that no longer loads is reported and the previous one keeps serving.
func watchInstances(ctx context.Context, instances []*instance, f *startFlags, log *slog.Logger) {
	byPath := make(map[string]*instance, len(instances))
	files := make([]string, 0, len(instances))
	for _, inst := range instances {
		byPath[inst.path] = inst
		files = append(files, inst.path)
	}

	w, err := watch.New(files, f.debounce, log)
	if err != nil {
		log.Error("file watching disabled", "error", err)
		return
	}
	err = w.Run(ctx, func(path string) error {
		inst, ok := byPath[path]
		if !ok {
			return nil
		}
		return inst.reload(f, log)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("file watcher stopped", "error", err)
	}
}

// reload loads the instance's file again and starts a new run with it.
// The listener keeps its address.
func (inst *instance) reload(f *startFlags, log *slog.Logger) error {
	env, err := environment.LoadFromFile(inst.path)
	if err != nil {
		log.Warn("environment reload failed", "path", inst.path, "error", err)
		return err
	}
	overrideEnv(env, f)
	current := inst.server.Environment()
	if env.Port != current.Port || env.Hostname != current.Hostname {
		log.Warn("listener changes apply on the next start", "path", inst.path, "port", env.Port, "hostname", env.Hostname)
	}
	inst.server.Reload(env)
	log.Info("environment reloaded", "path", inst.path, "name", env.Name, "routes", len(env.Routes))
	return nil
}

// close stops the server, saves recorded routes and closes the request
// log database.
func (inst *instance) close(log *slog.Logger, f *startFlags) {
	if err := inst.server.Close(); err != nil {
		output.Warn("shutdown of %s: %v", inst.path, err)
	}
	target := inst.path
	if f.recordOutput != "" {
		target = f.recordOutput
	}
	if err := inst.recorder.Save(inst.server.Environment(), target); err != nil {
		log.Error("saving recorded routes failed", "path", target, "error", err)
	}
	if inst.db != nil {
		if err := inst.db.Close(); err != nil {
			log.Warn("closing request log failed", "error", err)
		}
	}
}

func baseURL(s *server.Server) string {
	scheme := "http"
	if env := s.Environment(); env.TLSOptions != nil && env.TLSOptions.Enabled {
		scheme = "https"
	}
	return scheme + "://" + s.Addr()
}
