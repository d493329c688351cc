// Package encoder composes the delimited line forwarded for each record.
package encoder

import (
	goerrors "errors"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/model"
	"github.com/crimson-sun/leaf/internal/render"
)

const (
	// DefaultCeiling is the largest line, terminator included, the encoder
	// will ever produce.
	DefaultCeiling = 8192

	// reserve keeps room for a trailing delimiter and the newline after the
	// last pair that passed the budget check.
	reserve = 4

	// Delimiter separates name=value pairs.
	Delimiter = "||"
)

// ErrCodeOversize marks a record dropped because its line would not fit
// under the ceiling.
const ErrCodeOversize = "LEAF_RECORD_OVERSIZE"

// Lookup supplies attribute names and generic field resolution. An export
// session satisfies it.
type Lookup interface {
	AttrName(id int) string
	render.Resolver
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithCeiling sets the maximum line length in bytes. Default: 8192.
func WithCeiling(n int) Option {
	return func(e *Encoder) { e.ceiling = n }
}

// WithResolveNames routes every field through the generic resolver.
func WithResolveNames(on bool) Option {
	return func(e *Encoder) { e.renderer.ResolveNames = on }
}

// WithRenderer replaces the field renderer, including its byte order.
func WithRenderer(r render.Renderer) Option {
	return func(e *Encoder) { e.renderer = r }
}

// Encoder renders records into name=value||name=value\n lines. It holds no
// per-record state and is safe to reuse.
type Encoder struct {
	ceiling  int
	renderer render.Renderer
}

// New creates an Encoder.
func New(opts ...Option) *Encoder {
	e := &Encoder{
		ceiling:  DefaultCeiling,
		renderer: render.New(false),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ceiling returns the configured maximum line length.
func (e *Encoder) Ceiling() int { return e.ceiling }

// Encode renders rec. It either returns a complete line no longer than the
// ceiling or an error; a partial line is never returned. A record that would
// not fit, or that holds a field the resolver rejects, is dropped whole.
func (e *Encoder) Encode(rec model.Record, lookup Lookup) ([]byte, error) {
	buf := newBoundedBuffer(e.ceiling)
	last := len(rec.Fields) - 1

	for i, f := range rec.Fields {
		name := lookup.AttrName(f.AttrID)
		value, err := e.renderer.Render(f, lookup)
		if err != nil {
			return nil, err
		}

		if buf.Len()+len(name)+len(value)+1 > e.ceiling-reserve {
			return nil, errors.New(ErrCodeOversize, "message buffer oversize").
				WithContext("field", i).
				WithContext("attr", name).
				WithContext("ceiling", e.ceiling)
		}

		buf.appendString(name)
		buf.appendByte('=')
		buf.appendString(value)
		if i < last {
			buf.appendString(Delimiter)
		}
	}
	buf.appendByte('\n')

	if buf.Overflowed() {
		// Unreachable while the budget check above holds.
		return nil, errors.New(ErrCodeOversize, "line exceeded ceiling").
			WithContext("ceiling", e.ceiling)
	}
	return buf.Bytes(), nil
}

// IsDropped reports whether err means the record was dropped rather than a
// fault in the encoder's collaborators.
func IsDropped(err error) bool {
	var coder errors.ErrorCoder
	if !goerrors.As(err, &coder) {
		return false
	}
	code := string(coder.ErrorCode())
	return code == ErrCodeOversize || code == render.ErrCodeUnresolved
}
