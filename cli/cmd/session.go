package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewrap/adapter"
	"github.com/pithecene-io/framewrap/cli/reader"
	"github.com/pithecene-io/framewrap/cli/render"
	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/iox"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/trace"
)

// finishTimeout bounds trace flushing and completion publishing after the
// pipelines end.
const finishTimeout = 30 * time.Second

// session is the configuration shared by the pipeline commands, resolved
// from flags over framewrap.yaml.
type session struct {
	pipelineID string
	logger     *log.Logger
	codec      *codec.Config
	trace      traceChoice
	adapter    *adapterChoice

	recorder *trace.Recorder
	notifier adapter.Adapter
}

// newSession resolves flags and config. Errors are cli exit errors.
func newSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	s := &session{pipelineID: c.String("pipeline-id")}
	if s.pipelineID == "" {
		s.pipelineID = uuid.NewString()
	}
	if s.logger, err = newLogger(c, cfg); err != nil {
		return nil, err
	}
	if s.codec, err = buildCodecConfig(c, cfg); err != nil {
		return nil, err
	}
	if s.trace, err = parseTraceConfig(c, cfg); err != nil {
		return nil, err
	}
	if s.adapter, err = parseAdapterConfig(c, cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// open creates the trace recorder and the completion adapter when
// configured. collector counts trace writes.
func (s *session) open(ctx context.Context, collector *metrics.Collector) error {
	if s.trace.enabled {
		ds, err := openTraceDataset(ctx, s.trace)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open trace dataset: %v", err), exitConfigError)
		}
		s.recorder, err = trace.NewRecorder(ds, trace.Config{
			PipelineID: s.pipelineID,
			Limit:      s.trace.limit,
			Collector:  collector,
			Logger:     s.logger,
		})
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
	}

	if s.adapter != nil {
		var err error
		if s.notifier, err = buildAdapter(s.adapter); err != nil {
			return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitConfigError)
		}
	}
	return nil
}

// finish flushes the trace and publishes one completion event per result.
// It runs on a fresh context so an interrupted run still reports what it
// processed.
func (s *session) finish(ctx context.Context, transport string, results ...*streamResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if s.recorder != nil {
		if err := s.recorder.Close(ctx); err != nil {
			s.logger.Warn("trace not written", map[string]any{"error": err.Error()})
		}
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		ev := adapter.NewPipelineCompletedEvent(res.meta, transport, res.stats, res.err, res.started, res.finished)
		if s.trace.enabled {
			ev.TracePath = tracePath(s.trace, s.pipelineID)
		}
		publishCompletion(ctx, s.notifier, ev, s.logger)
	}
}

// close releases the adapter and flushes the logger.
func (s *session) close() {
	if s.notifier != nil {
		iox.DiscardClose(s.notifier)
	}
	_ = s.logger.Sync()
}

// printStats renders collector snapshots to stderr as a table.
func printStats(collectors ...*metrics.Collector) {
	views := make([]reader.StatsView, 0, len(collectors))
	for _, c := range collectors {
		views = append(views, reader.NewStatsView(c.Snapshot()))
	}
	r := render.NewRendererWithWriter(render.FormatTable, true, os.Stderr)
	_ = r.Render(views)
}
