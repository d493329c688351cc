// Package pipeline turns provider record callbacks into forwarded lines.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/crimson-sun/leaf/internal/encoder"
	"github.com/crimson-sun/leaf/internal/model"
	"github.com/crimson-sun/leaf/internal/output"
	"github.com/crimson-sun/leaf/internal/provider"
)

// Stats counts what happened to the records seen so far.
type Stats struct {
	Forwarded uint64
	Dropped   uint64 // oversize or unresolvable
	Failed    uint64 // send errors
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline is the client handler registered with the export provider. It
// renders each record with the encoder and writes the line to the output.
// A record that cannot be rendered or sent is logged and skipped; the
// session always continues.
type Pipeline struct {
	ctx    context.Context
	enc    *encoder.Encoder
	out    output.Output
	logger *slog.Logger

	forwarded atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Pipeline. ctx bounds every write to out.
func New(ctx context.Context, enc *encoder.Encoder, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		ctx:    ctx,
		enc:    enc,
		out:    out,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnRecord renders and forwards one record.
func (p *Pipeline) OnRecord(s provider.Session, rec model.Record, _ []int) provider.Status {
	line, err := p.enc.Encode(rec, s)
	if err != nil {
		p.dropped.Add(1)
		p.logger.Error("message dropped", "fields", len(rec.Fields), "error", err)
		return provider.StatusOK
	}

	if err := p.out.Write(p.ctx, line); err != nil {
		p.failed.Add(1)
		p.logger.Error("failed to send message to collector", "bytes", len(line), "error", err)
		return provider.StatusOK
	}
	p.forwarded.Add(1)
	return provider.StatusOK
}

func (p *Pipeline) OnDictionary(_ provider.Session, attrID int, vt model.ValueType) provider.Status {
	p.logger.Debug("dictionary entry", "attr_id", attrID, "type", vt.String())
	return provider.StatusOK
}

func (p *Pipeline) OnSessionStart(provider.Session) provider.Status {
	p.logger.Debug("session started")
	return provider.StatusOK
}

func (p *Pipeline) OnSessionEnd(provider.Session) provider.Status {
	p.logger.Debug("session ended")
	return provider.StatusOK
}

func (p *Pipeline) OnSessionEstablished(provider.Session) provider.Status {
	p.logger.Debug("session established")
	return provider.StatusOK
}

func (p *Pipeline) OnEOF(provider.Session) provider.Status {
	p.logger.Debug("end of log reached")
	return provider.StatusOK
}

func (p *Pipeline) OnSwitch(provider.Session) provider.Status {
	p.logger.Debug("log switched")
	return provider.StatusOK
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Forwarded: p.forwarded.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}

var _ provider.Handler = (*Pipeline)(nil)
