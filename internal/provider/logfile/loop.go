package logfile

import (
	"context"
	goerrors "errors"
	"io"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/provider"
)

// Run delivers the session's events to the client handler until the file
// is exhausted (offline), ctx is cancelled, or reading fails. Reaching the
// end of the file or being cancelled is not an error.
func (e *Env) Run(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return errors.New(ErrCodeState, "no session to run")
	}
	resumed, closed := s.state()
	if closed {
		return errors.New(ErrCodeState, "session is closed").WithContext("session", s.id)
	}
	if !resumed {
		return errors.New(ErrCodeState, "session is suspended").WithContext("session", s.id)
	}

	h := s.handler
	h.OnSessionStart(s)
	h.OnSessionEstablished(s)

	var changed <-chan struct{}
	if s.opts.Online {
		ch, stop := e.follow(s)
		defer stop()
		changed = ch
	}

	for {
		if ctx.Err() != nil {
			h.OnSessionEnd(s)
			return nil
		}

		ent, err := s.current().dec.next()
		switch {
		case err == nil:
			s.dispatch(ent)
			continue
		case isMalformed(err):
			s.logger.Warn("skipping malformed entry", "error", err)
			continue
		case err != io.EOF:
			return err
		}

		if !s.opts.Online {
			h.OnEOF(s)
			h.OnSessionEnd(s)
			return nil
		}

		select {
		case <-ctx.Done():
			h.OnSessionEnd(s)
			return nil
		case <-changed:
		}
		if s.current().replaced() {
			if err := s.reopen(); err != nil {
				// The new file may not be in place yet.
				s.logger.Debug("log file not reopened", "error", err)
				continue
			}
			s.logger.Info("log file switched")
			h.OnSwitch(s)
		}
	}
}

func (s *Session) dispatch(ent entry) {
	if d := ent.dict; d != nil {
		s.names[d.id] = d.name
		s.handler.OnDictionary(s, d.id, d.vt)
	}
	if ent.hasRecord {
		s.handler.OnRecord(s, modelRecord(ent), ent.perms)
	}
}

// follow watches the session's file and signals each change on the
// returned channel. If argus refuses the path, a plain ticker stands in.
func (e *Env) follow(s *Session) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	notify := func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	w := argus.New(argus.Config{
		PollInterval: e.poll,
		// Audit stays off; the zero value would select the SQLite backend.
		Audit: argus.AuditConfig{Enabled: false, MinLevel: argus.AuditCritical},
		ErrorHandler: func(err error, path string) {
			s.logger.Warn("file watch error", "path", path, "error", err)
		},
	})
	err := w.Watch(s.opts.Filename, func(argus.ChangeEvent) { notify() })
	if err == nil {
		err = w.Start()
	}
	if err == nil {
		return ch, func() { w.Stop() }
	}

	s.logger.Warn("file watcher unavailable, polling", "error", err, "interval", e.poll)
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(e.poll)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				notify()
			}
		}
	}()
	return ch, func() { close(done) }
}

func isMalformed(err error) bool {
	var coder errors.ErrorCoder
	return goerrors.As(err, &coder) && string(coder.ErrorCode()) == ErrCodeMalformed
}

var _ provider.Env = (*Env)(nil)
var _ provider.Session = (*Session)(nil)
