package leaf

import (
	"context"
	"fmt"

	"github.com/crimson-sun/leaf/internal/encoder"
	"github.com/crimson-sun/leaf/internal/output/tcp"
	"github.com/crimson-sun/leaf/internal/resolve"
)

// Format renders fields as one line, newline included.
func Format(fields []Field, opts ...Option) (string, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	line, err := encode(o.encoder(), o.resolver(), fields)
	if err != nil {
		return "", err
	}
	return string(line), nil
}

func encode(enc *encoder.Encoder, res *resolve.Resolver, fields []Field) ([]byte, error) {
	rec, names, err := toRecord(fields)
	if err != nil {
		return nil, err
	}
	return enc.Encode(rec, fieldLookup{names: names, Resolver: res})
}

// IsDropped reports whether err means a record was dropped: it would not
// fit under the ceiling or a field could not be resolved.
func IsDropped(err error) bool {
	return encoder.IsDropped(err)
}

// Forwarder sends records to a collector over one TCP connection.
type Forwarder struct {
	enc *encoder.Encoder
	res *resolve.Resolver
	out *tcp.Output
}

// Dial connects to the collector at host:port.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Forwarder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	out, err := tcp.Dial(ctx, host, port,
		tcp.WithDialTimeout(o.dialTimeout),
		tcp.WithWriteTimeout(o.writeTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("leaf: %w", err)
	}
	return &Forwarder{enc: o.encoder(), res: o.resolver(), out: out}, nil
}

// Forward renders fields and sends the line. A dropped record is reported
// with an error for which IsDropped is true; nothing is sent.
func (f *Forwarder) Forward(ctx context.Context, fields []Field) error {
	line, err := encode(f.enc, f.res, fields)
	if err != nil {
		return err
	}
	return f.out.Write(ctx, line)
}

// Close closes the collector connection.
func (f *Forwarder) Close() error {
	return f.out.Close()
}
