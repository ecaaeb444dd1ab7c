// Package server serves an environment over HTTP: route matching,
// response selection and rendering, CRUD routes over data buckets, the
// proxy fallback, WebSocket upgrades and the admin API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mockenv/mockenv/pkg/callback"
	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/proxy"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/resolver"
	"github.com/mockenv/mockenv/pkg/runstate"
	"github.com/mockenv/mockenv/pkg/sse"
	"github.com/mockenv/mockenv/pkg/template"
	mocktls "github.com/mockenv/mockenv/pkg/tls"
	"github.com/mockenv/mockenv/pkg/websocket"
)

// DefaultMaxLogs is the capacity of the default in-memory request log.
const DefaultMaxLogs = 100

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server is already running")

// Server serves one environment.
type Server struct {
	log       *slog.Logger
	metrics   *metrics.Collector
	reqLog    requestlog.Store
	client    *http.Client
	recorder  *proxy.Recorder
	seed      uint64
	baseDir   string
	h2c       bool
	admin     bool
	lookupEnv func(string) (string, bool)

	engine    *template.Engine
	resolver  *resolver.Resolver
	renderer  *content.Renderer
	callbacks *callback.Dispatcher
	proxy     *proxy.Proxy
	hub       *websocket.Hub
	events    *sse.Broker
	adminMux  *http.ServeMux

	// envVars overrides process environment variables for templates and
	// the admin API.
	envVars sync.Map

	state atomic.Pointer[state]

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	baseCancel context.CancelFunc
	running    bool
	startTime  time.Time
}

// state is everything bound to one run of one environment document.
type state struct {
	env    *environment.Environment
	run    *runstate.Run
	routes []*compiledRoute
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics records server activity in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRequestLog sets the request history store. The default keeps the
// last DefaultMaxLogs entries in memory.
func WithRequestLog(store requestlog.Store) Option {
	return func(s *Server) {
		if store != nil {
			s.reqLog = store
		}
	}
}

// WithSeed fixes the faker seed of every run.
func WithSeed(seed uint64) Option {
	return func(s *Server) { s.seed = seed }
}

// WithBaseDir sets the directory relative file paths resolve against,
// normally the directory of the environment document.
func WithBaseDir(dir string) Option {
	return func(s *Server) { s.baseDir = dir }
}

// WithH2C accepts HTTP/2 without TLS.
func WithH2C(enabled bool) Option {
	return func(s *Server) { s.h2c = enabled }
}

// WithAdmin toggles the admin API. It is on by default.
func WithAdmin(enabled bool) Option {
	return func(s *Server) { s.admin = enabled }
}

// WithHTTPClient sets the client used for proxying and callbacks.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithRecorder records proxied transactions of environments with
// RecordRoutes set.
func WithRecorder(r *proxy.Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithEnvLookup replaces os.LookupEnv as the source of environment
// variables.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(s *Server) {
		if fn != nil {
			s.lookupEnv = fn
		}
	}
}

// New creates a server for env. Routes whose endpoint cannot compile are
// logged and skipped.
func New(env *environment.Environment, opts ...Option) *Server {
	s := &Server{
		log:       logging.Nop(),
		admin:     true,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.Component(s.log, "server")
	if s.reqLog == nil {
		s.reqLog = requestlog.NewMemoryStore(DefaultMaxLogs)
	}

	s.engine = template.New()
	s.resolver = resolver.New(s.log)
	s.renderer = content.NewRenderer(s.engine, s.baseDir)
	s.callbacks = callback.New(s.renderer, callback.Options{
		Client:  s.client,
		Metrics: s.metrics,
		Logger:  s.log,
	})
	s.proxy = proxy.New(s.engine, proxy.Options{
		Client:   s.client,
		Recorder: s.recorder,
		Metrics:  s.metrics,
		Logger:   s.log,
	})
	s.hub = websocket.NewHub(s.resolver, s.renderer, websocket.Options{
		Metrics:    s.metrics,
		RequestLog: s,
		Logger:     s.log,
	})
	s.events = sse.NewBroker()
	s.adminMux = s.adminRoutes()

	s.state.Store(s.newState(env))
	return s
}

func (s *Server) newState(env *environment.Environment) *state {
	run := runstate.New(env, s.engine, runstate.Options{
		Seed:      s.seed,
		TLS:       env.TLSOptions != nil && env.TLSOptions.Enabled,
		Logger:    s.log,
		LookupEnv: s.envLookup,
	})
	run.Warm()
	return &state{
		env:    env,
		run:    run,
		routes: compileRoutes(env, s.log),
	}
}

// envLookup reads variables set through the admin API first.
func (s *Server) envLookup(name string) (string, bool) {
	if v, ok := s.envVars.Load(name); ok {
		return v.(string), true
	}
	return s.lookupEnv(name)
}

// Environment returns the environment being served.
func (s *Server) Environment() *environment.Environment {
	return s.state.Load().env
}

// Run returns the current run.
func (s *Server) Run() *runstate.Run {
	return s.state.Load().run
}

// Recorder returns the route recorder, nil when recording is off.
func (s *Server) Recorder() *proxy.Recorder {
	return s.recorder
}

// RequestLog returns the request history store.
func (s *Server) RequestLog() requestlog.Store {
	return s.reqLog
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s
}

// Log records a request log entry and streams it to admin event
// subscribers.
func (s *Server) Log(entry *requestlog.Entry) {
	s.reqLog.Log(entry)
	s.events.Publish(sse.Event{Type: eventTransaction, Data: entry})
}

// Restart drops the run state (globals, data buckets, counters, faker
// sequence) and starts a new run of the same environment. Open WebSocket
// connections are closed.
func (s *Server) Restart() {
	s.swap(s.Environment())
	s.log.Info("run restarted")
}

// Reload serves env from now on, in a new run.
func (s *Server) Reload(env *environment.Environment) {
	s.swap(env)
	s.log.Info("environment reloaded", "name", env.Name, "routes", len(env.Routes))
}

func (s *Server) swap(env *environment.Environment) {
	s.state.Store(s.newState(env))
	s.hub.CloseAll()
	s.metrics.Restart()
}

// Start listens on the environment's hostname and port and serves in the
// background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	env := s.Environment()
	tlsConfig, err := mocktls.ServerConfig(env.TLSOptions, s.baseDir, env.Hostname)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	addr := net.JoinHostPort(env.Hostname, strconv.Itoa(env.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	var handler http.Handler = s
	if s.h2c && tlsConfig == nil {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	// Cancelling the base context ends long-lived admin streams so
	// Shutdown does not wait on them.
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		var err error
		if tlsConfig != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	s.httpServer = srv
	s.listener = ln
	s.baseCancel = cancel
	s.running = true
	s.startTime = time.Now()
	s.log.Info("server started", "addr", ln.Addr().String(), "tls", tlsConfig != nil, "name", env.Name)
	return nil
}

// Addr returns the address the server listens on, empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is started.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}

// Stop gracefully shuts down the listener. Open WebSocket connections
// are closed; the server can be started again.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.baseCancel()
	s.hub.CloseAll()
	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		err = fmt.Errorf("HTTP shutdown: %w", shutdownErr)
	}

	s.httpServer = nil
	s.listener = nil
	s.running = false
	s.log.Info("server stopped")
	return err
}

// Close stops the server and releases its background workers: pending
// callbacks are cancelled and WebSocket and event streams end.
func (s *Server) Close() error {
	err := s.Stop()
	s.hub.Close()
	s.callbacks.Close()
	s.events.Close()
	return err
}

// Compile-time check.
var _ requestlog.Logger = (*Server)(nil)
