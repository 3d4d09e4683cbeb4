package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/types"
)

// Config represents a framewrap.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Padding  PaddingConfig `yaml:"padding"`
	Trace    TraceConfig   `yaml:"trace"`
	Adapter  AdapterConfig `yaml:"adapter"`
	Serve    ServeConfig   `yaml:"serve"`
}

// PaddingConfig holds the initial padding sizes per media kind.
type PaddingConfig struct {
	Audio int `yaml:"audio"`
	Video int `yaml:"video"`
}

// TraceConfig holds frame trace defaults.
type TraceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Limit       int    `yaml:"limit"`
}

// AdapterConfig holds completion adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Stream  string            `yaml:"stream,omitempty"`
	MaxLen  int64             `yaml:"max_len,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// ServeConfig holds WebSocket server defaults.
type ServeConfig struct {
	Listen    string `yaml:"listen"`
	ReadLimit int64  `yaml:"read_limit"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Known backend and adapter names.
var (
	traceBackends = map[string]bool{"": true, "fs": true, "s3": true}
	adapterTypes  = map[string]bool{"": true, "webhook": true, "redis": true}
)

// Validate checks values that cannot be checked by YAML decoding alone.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.CodecConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.LogLevel != "" {
		switch c.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
		}
	}
	if !traceBackends[c.Trace.Backend] {
		errs = append(errs, fmt.Errorf("trace.backend: must be fs or s3, got %q", c.Trace.Backend))
	}
	if c.Trace.Limit < 0 {
		errs = append(errs, fmt.Errorf("trace.limit: must be >= 0, got %d", c.Trace.Limit))
	}
	if !adapterTypes[c.Adapter.Type] {
		errs = append(errs, fmt.Errorf("adapter.type: must be webhook or redis, got %q", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries: must be >= 0, got %d", *c.Adapter.Retries))
	}
	if c.Adapter.MaxLen < 0 {
		errs = append(errs, fmt.Errorf("adapter.max_len: must be >= 0, got %d", c.Adapter.MaxLen))
	}
	if c.Serve.ReadLimit < 0 {
		errs = append(errs, fmt.Errorf("serve.read_limit: must be >= 0, got %d", c.Serve.ReadLimit))
	}
	return errors.Join(errs...)
}

// CodecConfig builds a padding configuration from the padding section.
func (c *Config) CodecConfig() (*codec.Config, error) {
	cfg := codec.NewConfig()
	if err := cfg.SetPaddingSize(types.MediaKindAudio, int64(c.Padding.Audio)); err != nil {
		return nil, fmt.Errorf("padding.audio: %w", err)
	}
	if err := cfg.SetPaddingSize(types.MediaKindVideo, int64(c.Padding.Video)); err != nil {
		return nil, fmt.Errorf("padding.video: %w", err)
	}
	return cfg, nil
}
