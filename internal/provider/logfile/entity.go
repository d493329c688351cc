package logfile

import (
	"sync"

	"github.com/crimson-sun/leaf/internal/provider"
)

// entity is a registered client or server.
type entity struct {
	env     *Env
	name    string
	handler provider.Handler // clients only

	mu     sync.Mutex
	closed bool
}

func (e *entity) Name() string { return e.name }

func (e *entity) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *entity) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
