package cmd

import (
	"bufio"
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/iox"
	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/loopback"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
)

// transportWebRTC labels pipelines joined by a loopback DataChannel.
const transportWebRTC = "webrtc"

// LoopbackCommand returns the loopback command.
func LoopbackCommand() *cli.Command {
	flags := streamFlags()
	flags = append(flags, &cli.DurationFlag{
		Name:  "connect-timeout",
		Usage: "Time allowed for the peer connection to come up",
		Value: 15 * time.Second,
	})
	return &cli.Command{
		Name:      "loopback",
		Usage:     "Encode a record stream, send it over a local WebRTC DataChannel, and decode it back",
		ArgsUsage: " ",
		Flags:     flags,
		Action:    loopbackAction,
	}
}

// loopbackSpec configures runLoopback.
type loopbackSpec struct {
	pipelineID     string
	in             io.Reader
	out            io.Writer
	config         *codec.Config
	logger         *log.Logger
	encode         *metrics.Collector
	decode         *metrics.Collector
	recorder       *trace.Recorder
	connectTimeout time.Duration
}

func loopbackAction(c *cli.Context) error {
	sess, err := newSession(c)
	if err != nil {
		return err
	}
	defer sess.close()

	in, err := iox.OpenInput(c.String("in"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardClose(in)

	out, err := iox.CreateOutput(c.String("out"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardClose(out)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, stop)

	encode := metrics.NewCollector(string(types.DirectionEncode), transportWebRTC, sess.pipelineID)
	decode := metrics.NewCollector(string(types.DirectionDecode), transportWebRTC, sess.pipelineID)
	if err := sess.open(ctx, encode); err != nil {
		return err
	}

	enc, dec, err := runLoopback(ctx, loopbackSpec{
		pipelineID:     sess.pipelineID,
		in:             in,
		out:            out,
		config:         sess.codec,
		logger:         sess.logger,
		encode:         encode,
		decode:         decode,
		recorder:       sess.recorder,
		connectTimeout: c.Duration("connect-timeout"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitStreamError)
	}

	sess.finish(ctx, transportWebRTC, enc, dec)
	if c.Bool("stats") {
		printStats(encode, decode)
	}
	if err := exitForRun(enc.err); err != nil {
		return err
	}
	return exitForRun(dec.err)
}

// runLoopback runs an encode pipeline from spec.in into a loopback pair and
// a decode pipeline from the pair into spec.out. Both share spec.config, so
// in-band control records on the input apply to both directions.
// The returned error covers setup only.
func runLoopback(ctx context.Context, spec loopbackSpec) (enc, dec *streamResult, err error) {
	logger := spec.logger
	if logger == nil {
		logger = log.NewNop()
	}

	connectCtx := ctx
	if spec.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, spec.connectTimeout)
		defer cancel()
	}
	pair, err := loopback.New(connectCtx, loopback.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pair.Close() }()

	bw := bufio.NewWriter(spec.out)
	g, gctx := errgroup.WithContext(ctx)

	// Stream reads ignore ctx; closing the input unblocks the encode side
	// when either pipeline fails or ctx is done.
	if closer, ok := spec.in.(io.Closer); ok {
		stopClose := context.AfterFunc(gctx, func() { _ = closer.Close() })
		defer stopClose()
	}

	g.Go(func() error {
		var err error
		enc, err = runPipeline(gctx, streamSpec{
			direction:  types.DirectionEncode,
			pipelineID: spec.pipelineID,
			config:     spec.config,
			collector:  spec.encode,
			recorder:   spec.recorder,
		}, ipc.NewStreamReader(spec.in), pair.Writer(), logger)
		if err == nil && enc.err != nil {
			return enc.err
		}
		return err
	})

	g.Go(func() error {
		var err error
		dec, err = runPipeline(gctx, streamSpec{
			direction:  types.DirectionDecode,
			pipelineID: spec.pipelineID,
			config:     spec.config,
			collector:  spec.decode,
			recorder:   spec.recorder,
		}, pair.Reader(), ipc.NewStreamWriter(bw), logger)
		if err == nil && dec.err != nil {
			return dec.err
		}
		return err
	})

	if err := g.Wait(); err != nil && (enc == nil || dec == nil) {
		return nil, nil, err
	}
	return enc, dec, nil
}
