package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewrap/adapter"
	"github.com/pithecene-io/framewrap/adapter/redis"
	"github.com/pithecene-io/framewrap/adapter/webhook"
	fwconfig "github.com/pithecene-io/framewrap/cli/config"
	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitConfigError = 1
	exitStreamError = 2
)

// loadConfig loads --config, or ./framewrap.yaml when present.
func loadConfig(c *cli.Context) (*fwconfig.Config, error) {
	cfg, err := fwconfig.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	return cfg, nil
}

// configVal reads a field from cfg, returning the zero value when cfg is nil.
func configVal[T any](cfg *fwconfig.Config, get func(*fwconfig.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

// resolveString applies precedence: explicit flag, then config, then the
// flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt applies the same precedence as resolveString. A zero config
// value means unset.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

// resolveBool returns true when either the flag or the config enables it,
// unless the flag was set explicitly.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

// resolveDuration applies the same precedence as resolveString.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// newLogger builds a stderr logger for the running command at the resolved
// level. Pipelines add their own context fields.
func newLogger(c *cli.Context, cfg *fwconfig.Config) (*log.Logger, error) {
	lvl, err := log.ParseLevel(resolveString(c, "log-level", configVal(cfg, func(c *fwconfig.Config) string { return c.LogLevel })))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	logger := log.NewComponentLogger(c.Command.Name)
	logger.SetLevel(lvl)
	return logger, nil
}

// buildCodecConfig seeds padding sizes from config, then flags.
func buildCodecConfig(c *cli.Context, cfg *fwconfig.Config) (*codec.Config, error) {
	audio := resolveInt(c, "audio-padding", configVal(cfg, func(c *fwconfig.Config) int { return c.Padding.Audio }))
	video := resolveInt(c, "video-padding", configVal(cfg, func(c *fwconfig.Config) int { return c.Padding.Video }))

	cc := codec.NewConfig()
	if err := cc.SetPaddingSize(types.MediaKindAudio, int64(audio)); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid --audio-padding: %v", err), exitConfigError)
	}
	if err := cc.SetPaddingSize(types.MediaKindVideo, int64(video)); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid --video-padding: %v", err), exitConfigError)
	}
	return cc, nil
}

// traceChoice holds resolved trace storage configuration.
type traceChoice struct {
	enabled     bool
	backend     string // "fs" or "s3"
	path        string // fs: directory, s3: bucket/prefix
	dataset     string
	limit       int
	s3Region    string
	s3Endpoint  string
	s3PathStyle bool
}

func parseTraceConfig(c *cli.Context, cfg *fwconfig.Config) (traceChoice, error) {
	tc := configVal(cfg, func(c *fwconfig.Config) fwconfig.TraceConfig { return c.Trace })
	choice := traceChoice{
		enabled:     resolveBool(c, "trace", tc.Enabled),
		backend:     resolveString(c, "trace-backend", tc.Backend),
		path:        resolveString(c, "trace-path", tc.Path),
		dataset:     resolveString(c, "trace-dataset", tc.Dataset),
		limit:       resolveInt(c, "trace-limit", tc.Limit),
		s3Region:    resolveString(c, "trace-s3-region", tc.Region),
		s3Endpoint:  resolveString(c, "trace-s3-endpoint", tc.Endpoint),
		s3PathStyle: resolveBool(c, "trace-s3-path-style", tc.S3PathStyle),
	}
	if !choice.enabled {
		return choice, nil
	}
	if err := validateTraceChoice(choice); err != nil {
		return choice, cli.Exit(err.Error(), exitConfigError)
	}
	return choice, nil
}

func validateTraceChoice(tc traceChoice) error {
	switch tc.backend {
	case "fs", "s3":
	default:
		return fmt.Errorf("unknown --trace-backend: %s (must be fs or s3)", tc.backend)
	}
	if tc.path == "" {
		return errors.New("--trace-path is required when tracing is enabled")
	}
	if tc.limit < 0 {
		return fmt.Errorf("--trace-limit must be >= 0, got %d", tc.limit)
	}
	return nil
}

// openTraceDataset opens the configured trace dataset.
func openTraceDataset(ctx context.Context, tc traceChoice) (lode.Dataset, error) {
	switch tc.backend {
	case "s3":
		bucket, prefix := trace.ParseS3Path(tc.path)
		return trace.NewS3Dataset(ctx, tc.dataset, trace.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       tc.s3Region,
			Endpoint:     tc.s3Endpoint,
			UsePathStyle: tc.s3PathStyle,
		})
	default:
		return trace.NewFSDataset(tc.dataset, tc.path)
	}
}

// tracePath describes where trace records for pipelineID land.
func tracePath(tc traceChoice, pipelineID string) string {
	dataset := tc.dataset
	if dataset == "" {
		dataset = trace.DefaultDataset
	}
	scheme := "file://"
	if tc.backend == "s3" {
		scheme = "s3://"
	}
	return fmt.Sprintf("%s%s/%s/pipeline_id=%s", scheme, strings.TrimSuffix(tc.path, "/"), dataset, pipelineID)
}

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	stream      string
	maxLen      int64
	headers     map[string]string
	secret      string
	timeout     time.Duration
	retries     int
}

// parseAdapterConfig resolves the adapter type, then the rest of its
// configuration. Returns nil when no adapter is configured.
func parseAdapterConfig(c *cli.Context, cfg *fwconfig.Config) (*adapterChoice, error) {
	adapterType := resolveString(c, "adapter", configVal(cfg, func(c *fwconfig.Config) string { return c.Adapter.Type }))
	if adapterType == "" {
		return nil, nil
	}
	ac, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	return ac, nil
}

func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *fwconfig.Config, adapterType string) (*adapterChoice, error) {
	acfg := configVal(cfg, func(c *fwconfig.Config) fwconfig.AdapterConfig { return c.Adapter })

	ac := &adapterChoice{
		adapterType: adapterType,
		url:         resolveString(c, "adapter-url", acfg.URL),
		channel:     resolveString(c, "adapter-channel", acfg.Channel),
		stream:      resolveString(c, "adapter-stream", acfg.Stream),
		maxLen:      acfg.MaxLen,
		secret:      resolveString(c, "adapter-secret", acfg.Secret),
		timeout:     resolveDuration(c, "adapter-timeout", acfg.Timeout.Duration),
		retries:     c.Int("adapter-retries"),
	}
	if !c.IsSet("adapter-retries") && acfg.Retries != nil {
		ac.retries = *acfg.Retries
	}

	switch adapterType {
	case "webhook", "redis":
	default:
		return nil, fmt.Errorf("unknown --adapter: %s (must be webhook or redis)", adapterType)
	}
	if ac.url == "" {
		return nil, fmt.Errorf("--adapter-url is required for the %s adapter", adapterType)
	}
	if ac.retries < 0 {
		return nil, fmt.Errorf("--adapter-retries must be >= 0, got %d", ac.retries)
	}
	if ac.maxLen < 0 {
		return nil, fmt.Errorf("adapter.max_len must be >= 0, got %d", ac.maxLen)
	}

	headers := make(map[string]string, len(acfg.Headers))
	for k, v := range acfg.Headers {
		headers[k] = v
	}
	for _, h := range c.StringSlice("adapter-header") {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (want Key=Value)", h)
		}
		headers[k] = v
	}
	if len(headers) > 0 {
		ac.headers = headers
	}
	return ac, nil
}

func buildAdapter(ac *adapterChoice) (adapter.Adapter, error) {
	switch ac.adapterType {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.url,
			Headers: ac.headers,
			Secret:  ac.secret,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.url,
			Channel: ac.channel,
			Stream:  ac.stream,
			MaxLen:  ac.maxLen,
			Timeout: ac.timeout,
			Retries: ac.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", ac.adapterType)
	}
}

// publishCompletion publishes ev best-effort. Failures are logged and never
// change the exit code.
func publishCompletion(ctx context.Context, a adapter.Adapter, ev *adapter.PipelineCompletedEvent, logger *log.Logger) {
	if a == nil {
		return
	}
	if err := a.Publish(ctx, ev); err != nil {
		logger.Warn("completion event not published", map[string]any{
			"pipeline_id": ev.PipelineID,
			"error":       err.Error(),
		})
		return
	}
	logger.Debug("completion event published", map[string]any{"pipeline_id": ev.PipelineID, "outcome": ev.Outcome})
}
