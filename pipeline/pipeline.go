// Package pipeline applies the frame envelope to an ordered stream.
//
// A Pipeline has a fixed direction. Encode pipelines wrap every frame with
// the padding size configured for its media kind; decode pipelines unwrap.
// Frames are processed strictly in order: the transform of frame N+1 starts
// only after frame N has been emitted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/types"
)

// inspectEvery is the decode-side interval of envelope debug logs.
const inspectEvery = 100

// Options configures a Pipeline.
type Options struct {
	// Direction is required.
	Direction types.Direction
	// Source is required.
	Source Source
	// Sink is required.
	Sink Sink
	// Config holds padding sizes. A fresh zero config is created when nil.
	// Encode and decode pipelines of one call may share a Config.
	Config *codec.Config
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Observers are notified of every processed frame.
	Observers []Observer
	// PipelineID defaults to a random UUID.
	PipelineID string
	// Peer is the remote address for network-attached pipelines.
	Peer *string
}

// Pipeline transforms frames from a Source into a Sink.
type Pipeline struct {
	dir       types.Direction
	source    Source
	sink      Sink
	config    *codec.Config
	logger    *log.Logger
	observers []Observer
	meta      types.PipelineMeta
	stats     *statsRecorder

	// closeCtx is canceled by Close to interrupt a blocked Next.
	closeCtx  context.Context
	closeFn   context.CancelFunc
	closeOnce sync.Once
	closed    atomic.Bool

	decoded int64
}

// New creates a pipeline. It does not start processing; call Run.
func New(opts Options) (*Pipeline, error) {
	if _, err := types.ParseDirection(string(opts.Direction)); err != nil {
		return nil, err
	}
	if opts.Source == nil {
		return nil, errors.New("pipeline source is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("pipeline sink is required")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = codec.NewConfig()
	}
	id := opts.PipelineID
	if id == "" {
		id = uuid.NewString()
	}
	meta := types.PipelineMeta{PipelineID: id, Direction: opts.Direction, Peer: opts.Peer}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	closeCtx, closeFn := context.WithCancel(context.Background())
	return &Pipeline{
		dir:       opts.Direction,
		source:    opts.Source,
		sink:      opts.Sink,
		config:    cfg,
		logger:    logger.WithPipeline(&meta),
		observers: opts.Observers,
		meta:      meta,
		stats:     newStatsRecorder(),
		closeCtx:  closeCtx,
		closeFn:   closeFn,
	}, nil
}

// Meta returns the identity of the pipeline.
func (p *Pipeline) Meta() types.PipelineMeta {
	return p.meta
}

// Config returns the padding configuration in use.
func (p *Pipeline) Config() *codec.Config {
	return p.config
}

// Run processes frames until end of stream, Close, or a fatal error.
// Returns:
//   - nil: source reached end of stream, or Close was called
//   - *Error with Kind=ErrorSource: source failure
//   - *Error with Kind=ErrorSink: emit or close failure
//   - *Error with Kind=ErrorCanceled: ctx canceled
//
// Malformed frames are reported to the sink and do not stop the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	p.logger.Debug("pipeline started", map[string]any{
		"padding": p.config.Snapshot(),
	})

	for {
		if p.closed.Load() {
			return p.finish()
		}
		if err := ctx.Err(); err != nil {
			return p.abort(&Error{Kind: ErrorCanceled, Err: err})
		}

		f, err := p.source.Next(readCtx)
		if err != nil {
			switch {
			case p.closed.Load():
				return p.finish()
			case errors.Is(err, io.EOF):
				p.logger.Debug("upstream closed", map[string]any{
					"kind": string(types.ErrorKindUpstreamClosed),
				})
				return p.finish()
			case ctx.Err() != nil:
				return p.abort(&Error{Kind: ErrorCanceled, Err: ctx.Err()})
			default:
				p.logger.Error("source error", map[string]any{"error": err.Error()})
				return p.abort(&Error{Kind: ErrorSource, Err: fmt.Errorf("read frame: %w", err)})
			}
		}

		// A frame handed over after Close is not started.
		if p.closed.Load() {
			return p.finish()
		}

		if err := p.process(ctx, f); err != nil {
			return p.abort(err)
		}
	}
}

// process transforms and emits a single frame. The emit uses the caller's
// ctx, so Close does not interrupt a frame already in flight.
func (p *Pipeline) process(ctx context.Context, in *types.Frame) error {
	p.stats.incFrameIn(len(in.Payload))

	out, err := p.transform(in)
	if err != nil {
		p.stats.incMalformed()
		for _, o := range p.observers {
			o.ObserveFrameError(p.dir, in, err)
		}
		p.logger.Warn("frame rejected", map[string]any{
			"error": err.Error(),
			"len":   len(in.Payload),
			"kind":  string(in.MediaKind()),
		})
		p.sink.ReportError(ctx, newFrameFailure(in, err))
		return nil
	}

	if err := p.sink.Emit(ctx, out); err != nil {
		p.logger.Error("sink emit failed", map[string]any{"error": err.Error()})
		return &Error{Kind: ErrorSink, Err: fmt.Errorf("emit frame: %w", err)}
	}

	passthrough := p.dir == types.DirectionDecode && len(in.Payload) == 0
	p.stats.incFrameOut(len(out.Payload), passthrough)
	for _, o := range p.observers {
		o.ObserveFrame(p.dir, in, out)
	}
	return nil
}

func (p *Pipeline) transform(f *types.Frame) (*types.Frame, error) {
	if p.dir == types.DirectionEncode {
		return codec.Wrap(f, p.config.PaddingSize(f.MediaKind())), nil
	}

	if len(f.Payload) > 0 {
		p.decoded++
		if p.decoded%inspectEvery == 0 {
			if info, err := codec.Inspect(f.Payload); err == nil {
				p.logger.Debug("decoding frame", map[string]any{
					"frames":          p.decoded,
					"declared_length": info.DeclaredLength,
					"padding_length":  info.PaddingLength,
				})
			}
		}
	}
	return codec.Unwrap(f)
}

// finish closes the sink after a graceful stop.
func (p *Pipeline) finish() error {
	if err := p.sink.Close(); err != nil {
		return &Error{Kind: ErrorSink, Err: fmt.Errorf("close sink: %w", err)}
	}
	s := p.stats.snapshot()
	p.logger.Info("pipeline finished", map[string]any{
		"frames_in":  s.FramesIn,
		"frames_out": s.FramesOut,
		"malformed":  s.Malformed,
	})
	return nil
}

// abort closes the sink best-effort and returns err.
func (p *Pipeline) abort(err error) error {
	if cerr := p.sink.Close(); cerr != nil {
		p.logger.Warn("sink close after failure", map[string]any{"error": cerr.Error()})
	}
	return err
}

// Close stops the pipeline. Frames not yet started are dropped; a frame
// being emitted completes first. Run then returns nil. Close is idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeFn()
	})
	return nil
}

// SetPayloadSize updates the padding size for kind. The new value applies
// to every frame read after this call returns.
// Returns *codec.ConfigError (matching codec.ErrConfigOutOfRange) when value
// is outside the accepted range; the previous value stays in effect.
func (p *Pipeline) SetPayloadSize(kind types.MediaKind, value int64) error {
	if err := p.config.SetPaddingSize(kind, value); err != nil {
		p.stats.incConfigRejected()
		return err
	}
	p.stats.incConfigUpdates()
	p.logger.Debug("padding size updated", map[string]any{
		"kind":  string(kind.OrAudio()),
		"value": value,
	})
	return nil
}

// Apply dispatches a control command.
func (p *Pipeline) Apply(cmd types.Command) error {
	switch c := cmd.(type) {
	case types.SetPayloadSize:
		return p.SetPayloadSize(c.MediaType, c.Value)
	case *types.SetPayloadSize:
		return p.SetPayloadSize(c.MediaType, c.Value)
	case types.SetCryptoKey:
		p.applyCryptoKey(c.KeyID)
		return nil
	case *types.SetCryptoKey:
		p.applyCryptoKey(c.KeyID)
		return nil
	case nil:
		p.stats.incConfigRejected()
		return fmt.Errorf("%w: nil command", ErrUnknownOperation)
	default:
		p.stats.incConfigRejected()
		return fmt.Errorf("%w: %q", ErrUnknownOperation, cmd.Operation())
	}
}

// applyCryptoKey accepts keying material. The envelope does not use it.
func (p *Pipeline) applyCryptoKey(keyID string) {
	p.stats.incCryptoKeys()
	p.logger.Debug("crypto key received", map[string]any{"key_id": keyID})
}

// ServeControl applies commands from cmds until the channel closes or ctx
// is done. Rejected commands are logged and counted; they never stop the
// loop.
func (p *Pipeline) ServeControl(ctx context.Context, cmds <-chan types.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			if err := p.Apply(cmd); err != nil {
				p.logger.Warn("control command rejected", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}
