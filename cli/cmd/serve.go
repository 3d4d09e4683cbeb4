package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewrap/adapter"
	fwconfig "github.com/pithecene-io/framewrap/cli/config"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/wsock"
)

// transportWebSocket labels pipelines served over WebSocket connections.
const transportWebSocket = "websocket"

// defaultListen is the serve address when neither flag nor config sets one.
const defaultListen = "127.0.0.1:8420"

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	flags := []cli.Flag{
		configFlag(),
		logLevelFlag(),
		&cli.StringFlag{
			Name:  "listen",
			Usage: "Listen address",
			Value: defaultListen,
		},
		&cli.Int64Flag{
			Name:  "read-limit",
			Usage: "Maximum inbound message size in bytes (default: 16 MiB)",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print aggregate metrics to stderr on shutdown",
		},
	}
	flags = append(flags, paddingFlags()...)
	flags = append(flags, adapterFlags()...)

	return &cli.Command{
		Name:      "serve",
		Usage:     "Run encode and decode pipelines for WebSocket clients on /encode and /decode",
		ArgsUsage: " ",
		Flags:     flags,
		Action:    serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cc, err := buildCodecConfig(c, cfg)
	if err != nil {
		return err
	}
	ac, err := parseAdapterConfig(c, cfg)
	if err != nil {
		return err
	}

	scfg := configVal(cfg, func(c *fwconfig.Config) fwconfig.ServeConfig { return c.Serve })
	listen := resolveString(c, "listen", scfg.Listen)
	readLimit := c.Int64("read-limit")
	if !c.IsSet("read-limit") && scfg.ReadLimit > 0 {
		readLimit = scfg.ReadLimit
	}
	if readLimit < 0 {
		return cli.Exit("--read-limit must be >= 0", exitConfigError)
	}

	var notifier adapter.Adapter
	if ac != nil {
		notifier, err = buildAdapter(ac)
		if err != nil {
			return cli.Exit("failed to create adapter: "+err.Error(), exitConfigError)
		}
		defer func() { _ = notifier.Close() }()
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("", transportWebSocket, "")
	srv := wsock.NewServer(wsock.ServerOptions{
		Defaults:   cc,
		ReadLimit:  readLimit,
		Logger:     logger,
		Collector:  collector,
		OnComplete: completionPublisher(notifier, logger),
	})

	if err := srv.ListenAndServe(ctx, listen); err != nil {
		return cli.Exit(err.Error(), exitStreamError)
	}

	if c.Bool("stats") {
		printStats(collector)
	}
	return nil
}

// completionPublisher returns a wsock.CompletionFunc publishing one event
// per connection, or nil without an adapter.
func completionPublisher(a adapter.Adapter, logger *log.Logger) wsock.CompletionFunc {
	if a == nil {
		return nil
	}
	return func(ctx context.Context, c wsock.Completion) {
		ev := adapter.NewPipelineCompletedEvent(c.Meta, transportWebSocket, c.Stats, c.Err, c.Started, c.Finished)
		ctx, cancel := context.WithTimeout(ctx, finishTimeout)
		defer cancel()
		publishCompletion(ctx, a, ev, logger)
	}
}
