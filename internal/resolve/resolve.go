// Package resolve is the generic field resolver used by export sessions to
// turn any field into human-readable text.
package resolve

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/model"
)

// ErrCodeUnsupported is returned for value types outside the known set.
const ErrCodeUnsupported = "LEAF_RESOLVE_UNSUPPORTED"

// TimeLayout is the display layout of TypeTime values, always in UTC.
const TimeLayout = "2Jan2006 15:04:05"

const (
	defaultLookupTimeout = 2 * time.Second
	// maxHosts bounds the reverse lookup cache; when full it is emptied.
	maxHosts = 4096
)

// LookupFunc performs a reverse DNS lookup.
type LookupFunc func(ctx context.Context, addr string) ([]string, error)

// Option configures a Resolver.
type Option func(*Resolver)

// WithNames enables reverse DNS for addresses and service names for ports.
func WithNames(on bool) Option {
	return func(r *Resolver) { r.names = on }
}

// WithLookup replaces the reverse DNS lookup. Default: net.DefaultResolver.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) { r.lookup = fn }
}

// WithMaxHosts caps the number of cached reverse lookups. Default: 4096.
func WithMaxHosts(n int) Option {
	return func(r *Resolver) { r.maxHosts = n }
}

// WithLookupTimeout bounds a single reverse lookup. Default: 2s.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// Resolver renders fields of every known type. Reverse lookups are cached,
// including failures; the cache is dropped whenever it reaches its cap.
type Resolver struct {
	names    bool
	lookup   LookupFunc
	timeout  time.Duration
	maxHosts int

	mu    sync.Mutex
	hosts map[uint32]string
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		lookup:   net.DefaultResolver.LookupAddr,
		timeout:  defaultLookupTimeout,
		maxHosts: maxHosts,
		hosts:    make(map[uint32]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the display text of f.
func (r *Resolver) Resolve(f model.Field) (string, error) {
	switch f.Type {
	case model.TypeIPAddr:
		if r.names {
			return r.host(f.Value.U32), nil
		}
		return model.AddrFromStored(f.Value.U32).String(), nil
	case model.TypeTCPPort, model.TypeUDPPort:
		port := model.PortFromStored(f.Value.U16)
		if r.names {
			if name, ok := serviceName(f.Type, port); ok {
				return name, nil
			}
		}
		return strconv.FormatUint(uint64(port), 10), nil
	case model.TypeString, model.TypeOther:
		return f.Value.Str, nil
	case model.TypeUint32:
		return strconv.FormatUint(uint64(f.Value.U32), 10), nil
	case model.TypeInt32:
		return strconv.FormatInt(int64(int32(f.Value.U32)), 10), nil
	case model.TypeUshort:
		return strconv.FormatUint(uint64(f.Value.U16), 10), nil
	case model.TypeTime:
		return time.Unix(int64(f.Value.U32), 0).UTC().Format(TimeLayout), nil
	}
	return "", errors.New(ErrCodeUnsupported, "no display rule for value type").
		WithContext("attr_id", f.AttrID).
		WithContext("type", f.Type.String())
}

// host returns the reverse DNS name of a stored address, falling back to
// dotted decimal.
func (r *Resolver) host(stored uint32) string {
	r.mu.Lock()
	name, ok := r.hosts[stored]
	r.mu.Unlock()
	if ok {
		return name
	}

	dotted := model.AddrFromStored(stored).String()
	name = dotted
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if names, err := r.lookup(ctx, dotted); err == nil && len(names) > 0 {
		name = strings.TrimSuffix(names[0], ".")
	}

	r.mu.Lock()
	if len(r.hosts) >= r.maxHosts {
		clear(r.hosts)
	}
	r.hosts[stored] = name
	r.mu.Unlock()
	return name
}
