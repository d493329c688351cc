// Package logfile is an export provider that reads LEA records from a local
// file. Records are NDJSON (or a CBOR sequence for .cbor files), optionally
// zstd or lz4 compressed; in online mode the file is followed as it grows.
package logfile

import (
	"log/slog"
	"os"

	"github.com/agilira/go-errors"

	"github.com/crimson-sun/leaf/internal/provider"
)

// Name is the registry name of this provider.
const Name = "logfile"

const (
	ErrCodeConfig    = "LEAF_PROVIDER_CONFIG"
	ErrCodeOpen      = "LEAF_LOG_OPEN"
	ErrCodeRead      = "LEAF_LOG_READ"
	ErrCodeMalformed = "LEAF_LOG_MALFORMED"
	ErrCodeState     = "LEAF_SESSION_STATE"
)

func init() {
	provider.Register(Name, func() provider.Provider { return New() })
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// Provider creates log-file environments.
type Provider struct {
	logger *slog.Logger
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init reads the configuration file at path into a new environment.
func (p *Provider) Init(path string) (provider.Env, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeConfig, "cannot read provider configuration").
			WithContext("path", path)
	}
	values, err := parseConfig(path, data)
	if err != nil {
		return nil, err
	}
	return newEnv(values, p.logger)
}
