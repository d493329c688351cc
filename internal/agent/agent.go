// Package agent drives one export session from startup to shutdown: it
// connects to the collector, registers with the export provider, creates
// a suspended session, resumes it and runs the provider loop.
package agent

import (
	"context"
	goerrors "errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/config"
	"github.com/crimson-sun/leaf/internal/encoder"
	"github.com/crimson-sun/leaf/internal/output"
	"github.com/crimson-sun/leaf/internal/output/file"
	"github.com/crimson-sun/leaf/internal/output/multi"
	"github.com/crimson-sun/leaf/internal/output/stdout"
	"github.com/crimson-sun/leaf/internal/output/tcp"
	"github.com/crimson-sun/leaf/internal/pipeline"
	"github.com/crimson-sun/leaf/internal/provider"
)

const (
	ErrCodeConfigUnreadable = "LEAF_CONFIG_UNREADABLE"
	ErrCodeEnvironment      = "LEAF_ENVIRONMENT"
	ErrCodeRegistration     = "LEAF_REGISTRATION"
	ErrCodeSession          = "LEAF_SESSION"
	ErrCodeLoop             = "LEAF_PROVIDER_LOOP"
	ErrCodeMirror           = "LEAF_MIRROR"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// ServerName is the name the agent registers its server entity under.
const ServerName = "lea_server"

// State is the agent's position in its lifecycle.
type State int

const (
	Unconfigured State = iota
	Connected
	Registered
	SessionSuspended
	SessionRunning
	Terminated
)

var stateNames = [...]string{
	Unconfigured:     "unconfigured",
	Connected:        "connected",
	Registered:       "registered",
	SessionSuspended: "session_suspended",
	SessionRunning:   "session_running",
	Terminated:       "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Dialer connects to the collector.
type Dialer func(ctx context.Context, host string, port int) (output.Output, error)

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithExit replaces the function Halt ends the process with. Default: os.Exit.
func WithExit(fn func(int)) Option {
	return func(a *Agent) { a.exit = fn }
}

// WithDialer replaces the collector dialer.
func WithDialer(d Dialer) Option {
	return func(a *Agent) { a.dial = d }
}

// WithDryRun writes rendered lines to w instead of dialing the collector.
func WithDryRun(w io.Writer) Option {
	return func(a *Agent) { a.dryRun = w }
}

// WithTimeouts sets the collector dial timeout and per-line write timeout.
func WithTimeouts(dial, write time.Duration) Option {
	return func(a *Agent) {
		a.dialTimeout = dial
		a.writeTimeout = write
	}
}

// Agent owns every resource of a session. Start and Serve run on the
// caller's goroutine; Interrupt may be called from any goroutine.
type Agent struct {
	prov         provider.Provider
	logger       *slog.Logger
	exit         func(int)
	dial         Dialer
	dryRun       io.Writer
	dialTimeout  time.Duration
	writeTimeout time.Duration

	mu      sync.Mutex
	state   State
	loopCtx context.Context
	cancel  context.CancelFunc

	env     provider.Env
	client  provider.Entity
	server  provider.Entity
	session provider.Session
	out     output.Output
	pipe    *pipeline.Pipeline

	haltOnce sync.Once
}

// New creates an Agent for the given provider.
func New(prov provider.Provider, opts ...Option) *Agent {
	a := &Agent{
		prov:        prov,
		logger:      slog.Default(),
		exit:        os.Exit,
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dial == nil {
		a.dial = a.dialTCP
	}
	return a
}

func (a *Agent) dialTCP(ctx context.Context, host string, port int) (output.Output, error) {
	return tcp.Dial(ctx, host, port,
		tcp.WithDialTimeout(a.dialTimeout),
		tcp.WithWriteTimeout(a.writeTimeout),
		tcp.WithLogger(a.logger),
	)
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.logger.Debug("agent state", "state", s.String())
}

// Start prepares a suspended session from the configuration file at path.
// The collector connection is made before anything is registered with the
// provider, so a collector that is down costs no provider resources.
// Resources acquired before a failure are kept for Halt to release.
func (a *Agent) Start(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeConfigUnreadable, "unable to open configuration file").
			WithContext("path", path)
	}
	f.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.loopCtx, a.cancel = loopCtx, cancel
	a.mu.Unlock()

	env, err := a.prov.Init(path)
	if err != nil {
		return errors.Wrap(err, ErrCodeEnvironment, "unable to initialize provider environment").
			WithContext("path", path)
	}
	a.env = env

	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	out, err := a.connect(ctx, cfg)
	if err != nil {
		return err
	}
	a.out = out
	a.setState(Connected)

	enc := encoder.New(encoder.WithResolveNames(cfg.ResolveNames))
	a.pipe = pipeline.New(loopCtx, enc, out, pipeline.WithLogger(a.logger))

	if a.client, err = env.NewClient(a.pipe); err != nil {
		return errors.Wrap(err, ErrCodeRegistration, "unable to register client")
	}
	if a.server, err = env.NewServer(ServerName); err != nil {
		return errors.Wrap(err, ErrCodeRegistration, "unable to register server").
			WithContext("server", ServerName)
	}
	a.setState(Registered)

	a.session, err = env.NewSession(a.client, a.server, provider.SessionOptions{
		Online:       cfg.Online,
		FromEnd:      cfg.FromEnd,
		Filename:     cfg.LogFilename,
		ResolveNames: cfg.ResolveNames,
	})
	if err != nil {
		return errors.Wrap(err, ErrCodeSession, "unable to create session").
			WithContext("log_filename", cfg.LogFilename)
	}
	a.setState(SessionSuspended)

	a.logger.Info("session created",
		"log_filename", cfg.LogFilename,
		"online", cfg.Online,
		"from_end", cfg.FromEnd,
		"resolve_names", cfg.ResolveNames,
	)
	return nil
}

// connect opens the line destination: the collector, or the dry-run
// writer, plus the mirror file when one is configured.
func (a *Agent) connect(ctx context.Context, cfg config.Config) (output.Output, error) {
	var primary output.Output
	if a.dryRun != nil {
		primary = stdout.New(a.dryRun)
		a.logger.Info("dry run, not connecting to collector",
			"addr", cfg.ServerAddr, "port", cfg.ServerPort)
	} else {
		out, err := a.dial(ctx, cfg.ServerAddr, cfg.ServerPort)
		if err != nil {
			return nil, err
		}
		primary = out
	}

	if cfg.Mirror.Path == "" {
		return primary, nil
	}
	mirror, err := file.New(cfg.Mirror.Path, file.WithMaxSize(cfg.Mirror.MaxSize))
	if err != nil {
		primary.Close()
		return nil, errors.Wrap(err, ErrCodeMirror, "unable to open mirror file").
			WithContext("path", cfg.Mirror.Path)
	}
	return multi.New(primary, mirror), nil
}

// Serve resumes the session and blocks in the provider loop until the log
// ends, ctx is cancelled, or Interrupt is called. Cancellation is a clean
// exit.
func (a *Agent) Serve(ctx context.Context) error {
	a.mu.Lock()
	state, loopCtx := a.state, a.loopCtx
	a.mu.Unlock()
	if state != SessionSuspended {
		return errors.New(ErrCodeSession, "no suspended session to serve").
			WithContext("state", state.String())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(loopCtx, cancel)
	defer stop()

	if err := a.session.Resume(); err != nil {
		return errors.Wrap(err, ErrCodeSession, "unable to resume session")
	}
	a.setState(SessionRunning)

	if err := a.env.Run(ctx); err != nil && !goerrors.Is(err, context.Canceled) {
		return errors.Wrap(err, ErrCodeLoop, "provider loop failed")
	}
	return nil
}

// Run starts the session, installs signal handlers, serves until the
// session ends, and halts with the resulting exit code.
func (a *Agent) Run(ctx context.Context, path string) {
	a.Halt(a.run(ctx, path))
}

func (a *Agent) run(ctx context.Context, path string) int {
	if err := a.Start(ctx, path); err != nil {
		a.logger.Error("startup failed", "error", err)
		return ExitFailure
	}

	stop := a.HandleSignals()
	defer stop()

	if err := a.Serve(ctx); err != nil {
		a.logger.Error("session failed", "error", err)
		return ExitFailure
	}
	return ExitOK
}
