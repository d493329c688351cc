package logfile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/provider"
)

const defaultPollInterval = time.Second

// Env is a log-file environment. It hosts at most one session.
type Env struct {
	values map[string]string
	dict   map[int]string
	poll   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	session *Session
	closed  bool
}

func newEnv(values map[string]string, logger *slog.Logger) (*Env, error) {
	e := &Env{
		values: values,
		dict:   make(map[int]string),
		poll:   defaultPollInterval,
		logger: logger,
	}
	if v, ok := values["poll_interval"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New(ErrCodeConfig, "poll_interval must be a positive duration").
				WithContext("value", v)
		}
		e.poll = d
	}
	if path, ok := values["attr_dictionary"]; ok {
		dict, err := loadDictionary(path)
		if err != nil {
			return nil, err
		}
		e.dict = dict
	}
	return e, nil
}

// Get returns a configuration value.
func (e *Env) Get(name string) (string, bool) {
	v, ok := e.values[name]
	return v, ok
}

// NewClient registers the handler that receives session events.
func (e *Env) NewClient(h provider.Handler) (provider.Entity, error) {
	if h == nil {
		return nil, errors.New(ErrCodeState, "client handler is nil")
	}
	if e.isClosed() {
		return nil, errors.New(ErrCodeState, "environment is closed")
	}
	return &entity{env: e, name: "lea_client", handler: h}, nil
}

// NewServer registers a named server.
func (e *Env) NewServer(name string) (provider.Entity, error) {
	if e.isClosed() {
		return nil, errors.New(ErrCodeState, "environment is closed")
	}
	return &entity{env: e, name: name}, nil
}

// NewSession opens the record file and returns a suspended session.
func (e *Env) NewSession(client, server provider.Entity, opts provider.SessionOptions) (provider.Session, error) {
	c, ok := client.(*entity)
	if !ok || c.env != e || c.handler == nil || c.isClosed() {
		return nil, errors.New(ErrCodeState, "client is not registered with this environment")
	}
	srv, ok := server.(*entity)
	if !ok || srv.env != e || srv.isClosed() {
		return nil, errors.New(ErrCodeState, "server is not registered with this environment")
	}
	if opts.Filename == "" {
		return nil, errors.New(ErrCodeConfig, "log file name is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New(ErrCodeState, "environment is closed")
	}
	if e.session != nil {
		return nil, errors.New(ErrCodeState, "environment already has a session")
	}

	s, err := newSession(e, c.handler, srv.name, opts)
	if err != nil {
		return nil, err
	}
	e.session = s
	return s, nil
}

// Close releases the session, if any. It is safe to call more than once.
func (e *Env) Close() error {
	e.mu.Lock()
	e.closed = true
	s := e.session
	e.mu.Unlock()
	if s != nil {
		return s.Close()
	}
	return nil
}

func (e *Env) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
