// Package provider defines the port through which the agent drives an
// external log-export library.
package provider

import (
	"context"

	"github.com/crimson-sun/leaf/internal/model"
)

// Status is a handler's answer to the provider.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

// Handler receives session events. The provider calls every method
// synchronously from the goroutine running Env.Run.
type Handler interface {
	// OnRecord delivers one record. Fields are only valid until it returns.
	OnRecord(s Session, rec model.Record, perms []int) Status

	OnDictionary(s Session, attrID int, vt model.ValueType) Status
	OnSessionStart(s Session) Status
	OnSessionEnd(s Session) Status
	OnSessionEstablished(s Session) Status
	OnEOF(s Session) Status
	OnSwitch(s Session) Status
}

// Session is an export session. It is created suspended.
type Session interface {
	Resume() error
	AttrName(id int) string
	Resolve(f model.Field) (string, error)
	Close() error
}

// Entity is a registered client or server.
type Entity interface {
	Name() string
	Close() error
}

// SessionOptions carries the session-relevant configuration.
type SessionOptions struct {
	Online       bool
	FromEnd      bool
	Filename     string
	ResolveNames bool
}

// Env is an initialized provider environment.
type Env interface {
	// Get returns a named configuration value.
	Get(name string) (string, bool)

	NewClient(h Handler) (Entity, error)
	NewServer(name string) (Entity, error)
	NewSession(client, server Entity, opts SessionOptions) (Session, error)

	// Run blocks dispatching events until the session ends, ctx is
	// cancelled, or a fatal error occurs.
	Run(ctx context.Context) error

	Close() error
}

// Provider creates environments from a configuration file.
type Provider interface {
	Init(configPath string) (Env, error)
}
