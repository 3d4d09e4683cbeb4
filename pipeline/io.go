package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/pithecene-io/framewrap/types"
)

// Source yields frames in order.
// Next returns io.EOF once the upstream has closed; that is a graceful end
// of stream, not a failure. Next must return promptly when ctx is done.
type Source interface {
	Next(ctx context.Context) (*types.Frame, error)
}

// Sink receives transformed frames in the order they were read.
type Sink interface {
	// Emit forwards one frame downstream. An error terminates the pipeline.
	Emit(ctx context.Context, f *types.Frame) error
	// ReportError receives frames that could not be transformed.
	// The pipeline continues with the next frame.
	ReportError(ctx context.Context, failure *FrameFailure)
	// Close signals that no more frames will be emitted.
	Close() error
}

// Observer receives a callback for every frame the pipeline processes.
// Callbacks run on the frame loop goroutine and must not block.
type Observer interface {
	ObserveFrame(dir types.Direction, in, out *types.Frame)
	ObserveFrameError(dir types.Direction, in *types.Frame, err error)
}

// SliceSource yields a fixed list of frames, then io.EOF.
type SliceSource struct {
	mu     sync.Mutex
	frames []*types.Frame
	pos    int
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames ...*types.Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// ChanSource yields frames received on a channel.
// A closed channel is reported as io.EOF.
type ChanSource struct {
	ch <-chan *types.Frame
}

// NewChanSource creates a source reading from ch.
func NewChanSource(ch <-chan *types.Frame) *ChanSource {
	return &ChanSource{ch: ch}
}

// Next implements Source.
func (s *ChanSource) Next(ctx context.Context) (*types.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	}
}

// StubSink is an in-memory sink for tests and embedding.
// It records every emitted frame and reported failure.
type StubSink struct {
	// EmitErr, when set, is returned from every Emit call.
	EmitErr error
	// OnEmit, when set, is called after a frame is recorded and before
	// Emit returns.
	OnEmit func(f *types.Frame)

	mu       sync.Mutex
	frames   []*types.Frame
	failures []*FrameFailure
	closed   bool
}

// NewStubSink creates an empty StubSink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// Emit implements Sink.
func (s *StubSink) Emit(_ context.Context, f *types.Frame) error {
	if s.EmitErr != nil {
		return s.EmitErr
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	if s.OnEmit != nil {
		s.OnEmit(f)
	}
	return nil
}

// ReportError implements Sink.
func (s *StubSink) ReportError(_ context.Context, failure *FrameFailure) {
	s.mu.Lock()
	s.failures = append(s.failures, failure)
	s.mu.Unlock()
}

// Close implements Sink.
func (s *StubSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Frames returns a copy of the emitted frames.
func (s *StubSink) Frames() []*types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Failures returns a copy of the reported failures.
func (s *StubSink) Failures() []*FrameFailure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FrameFailure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Closed reports whether Close was called.
func (s *StubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
