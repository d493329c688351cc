package logfile

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/agilira/go-errors"
	"github.com/google/uuid"

	"github.com/crimson-sun/leaf/internal/model"
	"github.com/crimson-sun/leaf/internal/provider"
	"github.com/crimson-sun/leaf/internal/resolve"
)

// Session reads one record file. It is created suspended and does not
// deliver events until resumed and run.
type Session struct {
	id       string
	opts     provider.SessionOptions
	handler  provider.Handler
	resolver *resolve.Resolver
	logger   *slog.Logger

	// names is only touched from the loop goroutine once running.
	names map[int]string

	mu      sync.Mutex
	src     *source
	resumed bool
	closed  bool
}

func newSession(e *Env, h provider.Handler, server string, opts provider.SessionOptions) (*Session, error) {
	src, err := openSource(opts.Filename, opts.Online, opts.FromEnd)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	names := make(map[int]string, len(e.dict))
	for k, v := range e.dict {
		names[k] = v
	}
	return &Session{
		id:       id,
		opts:     opts,
		handler:  h,
		resolver: resolve.New(resolve.WithNames(opts.ResolveNames)),
		logger:   e.logger.With("session", id, "server", server, "file", opts.Filename),
		names:    names,
		src:      src,
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Resume lets the session deliver events.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(ErrCodeState, "session is closed").WithContext("session", s.id)
	}
	s.resumed = true
	return nil
}

// AttrName returns the dictionary name of an attribute, or "attr<id>" for
// ids the dictionary does not know.
func (s *Session) AttrName(id int) string {
	if name, ok := s.names[id]; ok && name != "" {
		return name
	}
	return "attr" + strconv.Itoa(id)
}

// Resolve renders f through the generic resolver.
func (s *Session) Resolve(f model.Field) (string, error) {
	return s.resolver.Resolve(f)
}

// Close releases the record file. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.close()
}

func (s *Session) state() (resumed, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed, s.closed
}

// reopen replaces the source with a fresh one reading from the start.
func (s *Session) reopen() error {
	src, err := openSource(s.opts.Filename, s.opts.Online, false)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		src.close()
		return errors.New(ErrCodeState, "session is closed").WithContext("session", s.id)
	}
	old := s.src
	s.src = src
	return old.close()
}

func (s *Session) current() *source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}
