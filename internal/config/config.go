// Package config reads the agent's options from the provider environment
// and its ambient settings from process environment variables.
package config

import (
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/agilira/go-errors"
)

const (
	ErrCodeMissingOption = "LEAF_MISSING_OPTION"
	ErrCodeInvalidPort   = "LEAF_INVALID_PORT"
	ErrCodeInvalidOption = "LEAF_INVALID_OPTION"
)

// Option names as they appear in the provider configuration.
const (
	KeyLogFilename   = "log_filename"
	KeyOnlineMode    = "online_mode"
	KeyReadFromPos   = "read_from_pos"
	KeyResolveNames  = "resolve_names"
	KeyServerAddr    = "dst_server_addr"
	KeyServerPort    = "dst_server_port"
	KeyMirrorFile    = "mirror_file"
	KeyMirrorMaxSize = "mirror_max_size"
)

var required = []string{
	KeyLogFilename,
	KeyOnlineMode,
	KeyReadFromPos,
	KeyResolveNames,
	KeyServerAddr,
	KeyServerPort,
}

// Getter looks up a named option. A provider environment satisfies it.
type Getter interface {
	Get(name string) (string, bool)
}

// Config holds the options the agent needs from the provider configuration.
type Config struct {
	LogFilename  string
	Online       bool // online_mode == "true"
	FromEnd      bool // read_from_pos == "end"
	ResolveNames bool // resolve_names == "true"
	ServerAddr   string
	ServerPort   int
	Mirror       MirrorConfig
}

// MirrorConfig describes the optional local copy of forwarded lines.
type MirrorConfig struct {
	Path    string // empty disables mirroring
	MaxSize int64  // rotation size in bytes, 0 = no rotation
}

// Load reads and validates the options. Every required option must be
// present; a missing one is reported by name.
func Load(g Getter) (Config, error) {
	values := make(map[string]string, len(required))
	for _, key := range required {
		v, ok := g.Get(key)
		if !ok {
			return Config{}, errors.New(ErrCodeMissingOption, "required option is not set").
				WithContext("option", key)
		}
		values[key] = v
	}

	cfg := Config{
		LogFilename:  values[KeyLogFilename],
		Online:       values[KeyOnlineMode] == "true",
		FromEnd:      values[KeyReadFromPos] == "end",
		ResolveNames: values[KeyResolveNames] == "true",
		ServerAddr:   values[KeyServerAddr],
	}

	if addr, err := netip.ParseAddr(cfg.ServerAddr); err != nil || !addr.Is4() {
		return Config{}, errors.New(ErrCodeInvalidOption, "collector address must be a dotted IPv4 address").
			WithContext("option", KeyServerAddr).
			WithContext("value", cfg.ServerAddr)
	}

	port, err := ParsePort(values[KeyServerPort])
	if err != nil {
		return Config{}, err
	}
	cfg.ServerPort = port

	if v, ok := g.Get(KeyMirrorFile); ok {
		cfg.Mirror.Path = v
	}
	if v, ok := g.Get(KeyMirrorMaxSize); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return Config{}, errors.New(ErrCodeInvalidOption, "mirror size must be a non-negative byte count").
				WithContext("option", KeyMirrorMaxSize).
				WithContext("value", v)
		}
		cfg.Mirror.MaxSize = n
	}
	return cfg, nil
}

// ParsePort parses a decimal TCP port in [1, 65535].
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, errors.New(ErrCodeInvalidPort, "invalid port").
			WithContext("option", KeyServerPort).
			WithContext("value", s)
	}
	return port, nil
}

// Ambient holds process-level settings that do not belong to the provider
// configuration.
type Ambient struct {
	LogLevel     string
	LogFormat    string // "text" or "json"
	DialTimeout  time.Duration
	WriteTimeout time.Duration // 0 = no deadline
}

// LoadAmbient reads ambient settings from environment variables with
// sensible defaults.
func LoadAmbient() Ambient {
	return Ambient{
		LogLevel:     getenv("LEAF_LOG_LEVEL", "info"),
		LogFormat:    getenv("LEAF_LOG_FORMAT", "text"),
		DialTimeout:  getenvDuration("LEAF_DIAL_TIMEOUT", 10*time.Second),
		WriteTimeout: getenvDuration("LEAF_WRITE_TIMEOUT", 0),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
