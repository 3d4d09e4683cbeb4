// Package trace records the first frames of a pipeline run to a lode
// dataset for later inspection.
//
// Records are partitioned as pipeline_id=<id>/direction=<dir> and stored as
// JSONL. Each record carries the head of the payload rather than the whole
// payload.
package trace

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/types"
)

// RecordKindFrame identifies frame trace records.
const RecordKindFrame = "frame_trace"

const (
	// DefaultLimit is the number of frames kept per direction.
	DefaultLimit = 30
	// HeadSize is the number of payload bytes kept per record.
	HeadSize = 16
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("trace recorder closed")

// Config configures a Recorder.
type Config struct {
	// PipelineID partitions the records (required).
	PipelineID string
	// Limit is the maximum number of frames kept per direction.
	// Zero means DefaultLimit.
	Limit int
	// Collector counts write outcomes. May be nil.
	Collector *metrics.Collector
	// Logger may be nil.
	Logger *log.Logger
	// Now stamps observed_at. Defaults to time.Now.
	Now func() time.Time
}

// Recorder is a pipeline.Observer that buffers frame records and writes
// them on Flush.
type Recorder struct {
	ds        lode.Dataset
	cfg       Config
	collector *metrics.Collector
	logger    *log.Logger

	mu      sync.Mutex
	seen    map[types.Direction]int
	pending []any
	closed  bool
}

// NewRecorder creates a Recorder writing to ds.
func NewRecorder(ds lode.Dataset, cfg Config) (*Recorder, error) {
	if ds == nil {
		return nil, errors.New("trace dataset is required")
	}
	if cfg.PipelineID == "" {
		return nil, errors.New("trace pipeline ID is required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Recorder{
		ds:        ds,
		cfg:       cfg,
		collector: cfg.Collector,
		logger:    logger,
		seen:      make(map[types.Direction]int),
	}, nil
}

// ObserveFrame records the output frame of a successful transform.
func (r *Recorder) ObserveFrame(dir types.Direction, _, out *types.Frame) {
	r.record(dir, out, nil)
}

// ObserveFrameError records the input frame of a failed transform.
func (r *Recorder) ObserveFrameError(dir types.Direction, in *types.Frame, err error) {
	r.record(dir, in, err)
}

func (r *Recorder) record(dir types.Direction, f *types.Frame, ferr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || f == nil {
		return
	}
	seq := r.seen[dir]
	if seq >= r.cfg.Limit {
		return
	}
	r.seen[dir] = seq + 1
	r.pending = append(r.pending, r.newRecord(dir, seq, f, ferr))
}

func (r *Recorder) newRecord(dir types.Direction, seq int, f *types.Frame, ferr error) map[string]any {
	head := f.Payload
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	rec := map[string]any{
		"record_kind":    RecordKindFrame,
		"record_version": types.RecordVersion,
		"pipeline_id":    r.cfg.PipelineID,
		"direction":      string(dir),
		"seq":            seq,
		"kind":           string(f.MediaKind()),
		"len":            len(f.Payload),
		"head":           hex.EncodeToString(head),
		"ts":             f.Timestamp,
		"ssrc":           f.SSRC,
		"pt":             f.PayloadType,
		"observed_at":    r.cfg.Now().UTC().Format(time.RFC3339Nano),
	}
	if ferr != nil {
		rec["error"] = ferr.Error()
	}
	return rec
}

// Pending returns the number of buffered records.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes buffered records as one snapshot. Records are dropped from
// the buffer only when the write succeeds.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if _, err := r.ds.Write(ctx, r.pending, lode.Metadata{}); err != nil {
		r.collector.IncTraceWriteFailure()
		werr := wrapStorageError("write", r.cfg.PipelineID, err)
		r.logger.Warn("trace write failed", map[string]any{
			"records": len(r.pending),
			"error":   werr.Error(),
		})
		return werr
	}
	r.collector.IncTraceWriteSuccess()
	r.logger.Debug("trace written", map[string]any{"records": len(r.pending)})
	r.pending = nil
	return nil
}

// Close flushes remaining records and stops recording.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	err := r.flushLocked(ctx)
	r.closed = true
	r.pending = nil
	return err
}

var _ pipeline.Observer = (*Recorder)(nil)
