package leaf

import (
	"time"

	"github.com/crimson-sun/leaf/internal/encoder"
	"github.com/crimson-sun/leaf/internal/resolve"
)

type options struct {
	resolveNames bool
	ceiling      int
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

// Option configures Format and Dial.
type Option func(*options)

// WithResolveNames renders addresses as host names and ports as service
// names where known.
func WithResolveNames(on bool) Option {
	return func(o *options) {
		o.resolveNames = on
	}
}

// WithCeiling sets the maximum line length, newline included. Default: 8192.
func WithCeiling(n int) Option {
	return func(o *options) {
		o.ceiling = n
	}
}

// WithDialTimeout bounds connection establishment. Default: 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithWriteTimeout bounds the delivery of each line. Default: none.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

func defaultOptions() options {
	return options{
		ceiling:     encoder.DefaultCeiling,
		dialTimeout: 10 * time.Second,
	}
}

func (o options) encoder() *encoder.Encoder {
	return encoder.New(
		encoder.WithCeiling(o.ceiling),
		encoder.WithResolveNames(o.resolveNames),
	)
}

func (o options) resolver() *resolve.Resolver {
	return resolve.New(resolve.WithNames(o.resolveNames))
}
