package ipc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/types"
)

// RecordReader yields one undelimited record payload at a time.
// io.EOF signals a clean end of stream.
type RecordReader interface {
	ReadRecord(ctx context.Context) ([]byte, error)
}

// RecordWriter writes one undelimited record payload at a time.
type RecordWriter interface {
	WriteRecord(ctx context.Context, payload []byte) error
	Close() error
}

// ControlHandler applies an in-band control command.
type ControlHandler func(cmd types.Command) error

// StreamReader reads length-prefixed records from a byte stream.
// Reads block until data arrives; cancellation requires closing the
// underlying reader.
type StreamReader struct {
	decoder *FrameDecoder
}

// NewStreamReader creates a StreamReader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{decoder: NewFrameDecoder(r)}
}

// ReadRecord implements RecordReader.
func (s *StreamReader) ReadRecord(_ context.Context) ([]byte, error) {
	return s.decoder.ReadFrame()
}

// StreamWriter writes length-prefixed records to a byte stream.
type StreamWriter struct {
	w       io.Writer
	encoder *FrameEncoder
}

// NewStreamWriter creates a StreamWriter over w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w, encoder: NewFrameEncoder(w)}
}

// WriteRecord implements RecordWriter.
func (s *StreamWriter) WriteRecord(_ context.Context, payload []byte) error {
	return s.encoder.WriteFrame(payload)
}

// Close flushes buffered writers. The underlying stream is left open.
func (s *StreamWriter) Close() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Source adapts a RecordReader to pipeline.Source.
// Control records are handed to the control handler in stream order and
// never reach the pipeline as frames.
type Source struct {
	reader RecordReader
	logger *log.Logger

	mu        sync.Mutex
	onControl ControlHandler
}

// NewSource creates a Source. logger may be nil.
func NewSource(r RecordReader, logger *log.Logger) *Source {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Source{reader: r, logger: logger}
}

// OnControl sets the handler for in-band control records.
// Without a handler, control records are dropped with a warning.
func (s *Source) OnControl(h ControlHandler) {
	s.mu.Lock()
	s.onControl = h
	s.mu.Unlock()
}

// Next implements pipeline.Source.
func (s *Source) Next(ctx context.Context) (*types.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload, err := s.reader.ReadRecord(ctx)
		if err != nil {
			return nil, err
		}

		rec, err := DecodeRecord(payload)
		if err != nil {
			return nil, err
		}

		switch r := rec.(type) {
		case *FrameRecord:
			return r.ToFrame()
		case controlRecord:
			s.handleControl(r)
		case *FrameErrorRecord:
			s.logger.Warn("upstream frame error", map[string]any{
				"error_kind": r.ErrorKind,
				"message":    r.Message,
				"len":        r.Length,
			})
		}
	}
}

func (s *Source) handleControl(r controlRecord) {
	cmd, err := r.Command()
	if err != nil {
		s.logger.Warn("invalid control record", map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	h := s.onControl
	s.mu.Unlock()
	if h == nil {
		s.logger.Warn("control record without handler", map[string]any{
			"operation": string(cmd.Operation()),
		})
		return
	}
	if err := h(cmd); err != nil {
		s.logger.Warn("control command rejected", map[string]any{
			"operation": string(cmd.Operation()),
			"error":     err.Error(),
		})
	}
}

// Sink adapts a RecordWriter to pipeline.Sink.
type Sink struct {
	writer RecordWriter
	logger *log.Logger
}

// NewSink creates a Sink. logger may be nil.
func NewSink(w RecordWriter, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Sink{writer: w, logger: logger}
}

// Emit implements pipeline.Sink.
func (s *Sink) Emit(ctx context.Context, f *types.Frame) error {
	return s.write(ctx, NewFrameRecord(f))
}

// ReportError implements pipeline.Sink. Write failures are logged; the
// next Emit surfaces a broken writer.
func (s *Sink) ReportError(ctx context.Context, failure *pipeline.FrameFailure) {
	rec := NewFrameErrorRecord(failure.Kind, failure.Frame, failure.Err)
	if err := s.write(ctx, rec); err != nil {
		s.logger.Warn("failed to write frame error", map[string]any{"error": err.Error()})
	}
}

// SendCommand writes a control command record, for driving a remote
// pipeline.
func (s *Sink) SendCommand(ctx context.Context, cmd types.Command) error {
	rec, err := CommandRecord(cmd)
	if err != nil {
		return err
	}
	return s.write(ctx, rec)
}

// Close implements pipeline.Sink.
func (s *Sink) Close() error {
	return s.writer.Close()
}

func (s *Sink) write(ctx context.Context, rec any) error {
	payload, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.writer.WriteRecord(ctx, payload); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

var (
	_ pipeline.Source = (*Source)(nil)
	_ pipeline.Sink   = (*Sink)(nil)
)
