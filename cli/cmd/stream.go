package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/iox"
	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
)

// transportStdio labels pipelines reading and writing byte streams.
const transportStdio = "stdio"

// EncodeCommand returns the encode command.
func EncodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Wrap frames of a record stream in length-prefixed, padded envelopes",
		ArgsUsage: " ",
		Flags:     streamFlags(),
		Action:    streamAction(types.DirectionEncode),
	}
}

// DecodeCommand returns the decode command.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Unwrap envelopes of a record stream back into frames",
		ArgsUsage: " ",
		Flags:     streamFlags(),
		Action:    streamAction(types.DirectionDecode),
	}
}

// streamSpec is everything runStream needs, resolved from flags and config.
type streamSpec struct {
	direction  types.Direction
	pipelineID string
	in         io.Reader
	out        io.Writer
	config     *codec.Config
	logger     *log.Logger
	collector  *metrics.Collector
	recorder   *trace.Recorder
}

// streamResult is the outcome of one stream pipeline.
type streamResult struct {
	meta     types.PipelineMeta
	stats    pipeline.Stats
	started  time.Time
	finished time.Time
	err      error
}

func streamAction(dir types.Direction) cli.ActionFunc {
	return func(c *cli.Context) error {
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
		// A second signal terminates immediately.
		context.AfterFunc(ctx, stop)

		collector := metrics.NewCollector(string(dir), transportStdio, sess.pipelineID)
		if err := sess.open(ctx, collector); err != nil {
			return err
		}

		res, err := runStream(ctx, streamSpec{
			direction:  dir,
			pipelineID: sess.pipelineID,
			in:         in,
			out:        out,
			config:     sess.codec,
			logger:     sess.logger,
			collector:  collector,
			recorder:   sess.recorder,
		})
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}

		sess.finish(ctx, transportStdio, res)
		if c.Bool("stats") {
			printStats(collector)
		}
		return exitForRun(res.err)
	}
}

// runStream wires a pipeline between length-prefixed record streams.
// Control records on the input apply to the pipeline's config in stream
// order. The returned error covers setup only; the pipeline outcome is in
// streamResult.err.
func runStream(ctx context.Context, spec streamSpec) (*streamResult, error) {
	logger := spec.logger
	if logger == nil {
		logger = log.NewNop()
	}

	// Stream reads ignore ctx; closing the input unblocks them.
	if closer, ok := spec.in.(io.Closer); ok {
		stopClose := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stopClose()
	}

	bw := bufio.NewWriter(spec.out)
	return runPipeline(ctx, spec, ipc.NewStreamReader(spec.in), ipc.NewStreamWriter(bw), logger)
}

// runPipeline runs one pipeline from rr to rw and records its lifecycle on
// the collector. spec.in and spec.out are ignored.
func runPipeline(ctx context.Context, spec streamSpec, rr ipc.RecordReader, rw ipc.RecordWriter, logger *log.Logger) (*streamResult, error) {
	src := ipc.NewSource(rr, logger)
	sink := ipc.NewSink(rw, logger)

	observers := []pipeline.Observer{spec.collector}
	if spec.recorder != nil {
		observers = append(observers, spec.recorder)
	}

	p, err := pipeline.New(pipeline.Options{
		Direction:  spec.direction,
		Source:     src,
		Sink:       sink,
		Config:     spec.config,
		Logger:     logger,
		Observers:  observers,
		PipelineID: spec.pipelineID,
	})
	if err != nil {
		return nil, err
	}
	src.OnControl(p.Apply)

	spec.collector.IncPipelineStarted()
	res := &streamResult{meta: p.Meta(), started: time.Now()}
	res.err = p.Run(ctx)
	res.finished = time.Now()
	res.stats = p.Stats()

	spec.collector.AbsorbControlStats(res.stats.ConfigUpdates, res.stats.ConfigRejected, res.stats.CryptoKeys)
	if res.err != nil {
		spec.collector.IncPipelineFailed()
	} else {
		spec.collector.IncPipelineCompleted()
	}
	return res, nil
}

// exitForRun maps a pipeline error onto the process exit code.
func exitForRun(err error) error {
	if err == nil {
		return nil
	}
	if pipeline.IsCanceledError(err) {
		return cli.Exit("interrupted", exitStreamError)
	}
	return cli.Exit(fmt.Sprintf("stream failed: %v", err), exitStreamError)
}
