// Package redis announces pipeline completions on Redis.
//
// Every event is PUBLISHed as JSON on a pub/sub channel. When a stream key
// is configured the same event is also appended with XADD, so consumers that
// were not subscribed at completion time can still read it. The stream is
// trimmed approximately to MaxLen entries.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/framewrap/adapter"
)

// Defaults applied by New.
const (
	DefaultChannel = "framewrap:pipeline_completed"
	DefaultTimeout = 5 * time.Second
	DefaultMaxLen  = 10000
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the connection URL, redis://[:password@]host:port[/db].
	URL     string
	Channel string
	// Stream, when set, is the key events are also XADDed to.
	Stream  string
	MaxLen  int64
	Timeout time.Duration
	Retries int
}

// Adapter publishes completion events to Redis.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg, applies defaults and creates the client. No
// connection is made until the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.MaxLen < 0 {
		return nil, fmt.Errorf("max length must be >= 0, got %d", cfg.MaxLen)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Stream != "" && cfg.MaxLen == 0 {
		cfg.MaxLen = DefaultMaxLen
	}

	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends ev to the channel, and to the stream when configured, in one
// MULTI/EXEC round trip.
func (a *Adapter) Publish(ctx context.Context, ev *adapter.PipelineCompletedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.cfg.Retries, nil, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		_, err := a.client.TxPipelined(ctx, func(tx goredis.Pipeliner) error {
			tx.Publish(ctx, a.cfg.Channel, body)
			if a.cfg.Stream != "" {
				tx.XAdd(ctx, &goredis.XAddArgs{
					Stream: a.cfg.Stream,
					MaxLen: a.cfg.MaxLen,
					Approx: true,
					Values: streamFields(ev, body),
				})
			}
			return nil
		})
		return err
	})
}

// streamFields lifts the fields consumers filter on next to the full event.
func streamFields(ev *adapter.PipelineCompletedEvent, body []byte) map[string]any {
	return map[string]any{
		"pipeline_id": ev.PipelineID,
		"direction":   ev.Direction,
		"outcome":     ev.Outcome,
		"malformed":   strconv.FormatInt(ev.Malformed, 10),
		"event":       string(body),
	}
}

// Close releases the client's connections.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
