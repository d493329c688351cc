// Package tcp forwards rendered lines to a collector over one long-lived
// TCP stream.
package tcp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

const (
	ErrCodeDialFailed = "LEAF_DIAL_FAILED"
	ErrCodeSendFailed = "LEAF_SEND_FAILED"
	// ErrCodeSendStalled means the stream accepted no bytes for maxStalls
	// consecutive writes.
	ErrCodeSendStalled = "LEAF_SEND_STALLED"
	ErrCodeConnClosed  = "LEAF_CONN_CLOSED"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultMaxStalls   = 16
)

// Option configures an Output.
type Option func(*Output)

// WithDialTimeout bounds connection establishment. Default: 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Output) { o.dialTimeout = d }
}

// WithWriteTimeout sets a deadline for delivering one line. 0 (default)
// means no deadline. Only applies to network connections.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Output) { o.writeTimeout = d }
}

// WithMaxStalls sets how many consecutive zero-byte writes are tolerated
// before a send is abandoned. Default: 16.
func WithMaxStalls(n int) Option {
	return func(o *Output) { o.maxStalls = n }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Output) { o.logger = l }
}

// Output owns the collector stream. It has a single writer: callers must
// not invoke Write concurrently. A failed line is reported and never
// retried, and the stream is left open for the next line.
type Output struct {
	w            io.Writer
	conn         net.Conn // nil when wrapping a plain writer
	addr         string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	maxStalls    int
	logger       *slog.Logger

	closeOnce sync.Once
	closed    bool
}

func newOutput(opts []Option) *Output {
	o := &Output{
		dialTimeout: defaultDialTimeout,
		maxStalls:   defaultMaxStalls,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dial connects to the collector at host:port.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Output, error) {
	o := newOutput(opts)
	o.addr = net.JoinHostPort(host, strconv.Itoa(port))

	d := net.Dialer{Timeout: o.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeDialFailed, "unable to connect to collector").
			WithContext("addr", o.addr)
	}
	o.conn = conn
	o.w = conn
	o.logger.Info("connected to collector", "addr", o.addr)
	return o, nil
}

// New wraps an established writer. Write deadlines are applied only when w
// is a net.Conn.
func New(w io.Writer, opts ...Option) *Output {
	o := newOutput(opts)
	o.w = w
	if c, ok := w.(net.Conn); ok {
		o.conn = c
		o.addr = c.RemoteAddr().String()
	}
	return o
}

// Addr returns the collector address, if known.
func (o *Output) Addr() string { return o.addr }

// Write sends line in full. A single underlying write may accept fewer
// bytes than offered; Write keeps going from where it stopped until every
// byte is out, a write reports an error, or the stream stalls. On a
// network connection, cancelling ctx aborts a write in progress.
func (o *Output) Write(ctx context.Context, line []byte) error {
	if o.closed {
		return errors.New(ErrCodeConnClosed, "collector connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, ErrCodeSendFailed, "send cancelled")
	}
	if o.conn != nil {
		if err := o.conn.SetWriteDeadline(o.deadline(ctx)); err != nil {
			return errors.Wrap(err, ErrCodeSendFailed, "set write deadline")
		}
		// Cancellation expires the deadline so a write stuck on a stalled
		// collector returns.
		fired := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			defer close(fired)
			o.conn.SetWriteDeadline(time.Now())
		})
		defer func() {
			if !stop() {
				<-fired
			}
		}()
	}

	total, stalls := 0, 0
	for total < len(line) {
		n, err := o.w.Write(line[total:])
		if n < 0 || n > len(line)-total {
			return errors.New(ErrCodeSendFailed, "invalid write count").
				WithContext("count", n)
		}
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(ctx.Err(), ErrCodeSendFailed, "send cancelled").
					WithContext("written", total).
					WithContext("length", len(line))
			}
			return errors.Wrap(err, ErrCodeSendFailed, "write to collector").
				WithContext("written", total).
				WithContext("length", len(line))
		}
		if n == 0 {
			stalls++
			if stalls >= o.maxStalls {
				return errors.New(ErrCodeSendStalled, "collector accepted no data").
					WithContext("written", total).
					WithContext("length", len(line))
			}
			continue
		}
		stalls = 0
	}
	return nil
}

// deadline returns the earlier of the context deadline and the per-line
// write timeout, or the zero time when neither applies.
func (o *Output) deadline(ctx context.Context) time.Time {
	var dl time.Time
	if o.writeTimeout > 0 {
		dl = time.Now().Add(o.writeTimeout)
	}
	if cd, ok := ctx.Deadline(); ok && (dl.IsZero() || cd.Before(dl)) {
		dl = cd
	}
	return dl
}

// Close closes the collector connection. Safe to call more than once.
func (o *Output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.closed = true
		if c, ok := o.w.(io.Closer); ok {
			err = c.Close()
		}
		if o.addr != "" {
			o.logger.Info("collector connection closed", "addr", o.addr)
		}
	})
	return err
}
