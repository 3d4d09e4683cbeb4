// Package metrics provides per-pipeline metrics collection.
//
// The Collector observes every frame the pipeline transforms and accumulates
// counters by media kind. Control counters (config updates, rejections) are
// absorbed from pipeline.Stats at completion rather than recorded live, which
// avoids double-counting.
package metrics

import (
	"sync"

	"github.com/pithecene-io/framewrap/types"
)

// KindCounts holds per-media-kind frame counters.
type KindCounts struct {
	Frames      int64 `json:"frames"`
	BytesIn     int64 `json:"bytes_in"`
	BytesOut    int64 `json:"bytes_out"`
	Passthrough int64 `json:"passthrough"`
	Malformed   int64 `json:"malformed"`
}

// Snapshot is an immutable point-in-time view of all metrics.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Pipeline lifecycle
	PipelinesStarted   int64 `json:"pipelines_started"`
	PipelinesCompleted int64 `json:"pipelines_completed"`
	PipelinesFailed    int64 `json:"pipelines_failed"`

	// Frames (live)
	Audio KindCounts `json:"audio"`
	Video KindCounts `json:"video"`

	// Control (absorbed from pipeline.Stats at completion)
	ConfigUpdates  int64 `json:"config_updates"`
	ConfigRejected int64 `json:"config_rejected"`
	CryptoKeys     int64 `json:"crypto_keys"`

	// Trace storage
	TraceWriteSuccess int64 `json:"trace_write_success"`
	TraceWriteFailure int64 `json:"trace_write_failure"`

	// Dimensions (informational, set at construction)
	Direction  string `json:"direction"`
	Transport  string `json:"transport"`
	PipelineID string `json:"pipeline_id"`
}

// TotalFrames returns the number of frames observed across kinds.
func (s Snapshot) TotalFrames() int64 {
	return s.Audio.Frames + s.Video.Frames
}

// Collector accumulates metrics for one or more pipelines.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	pipelinesStarted   int64
	pipelinesCompleted int64
	pipelinesFailed    int64

	audio KindCounts
	video KindCounts

	configUpdates  int64
	configRejected int64
	cryptoKeys     int64

	traceWriteSuccess int64
	traceWriteFailure int64

	direction  string
	transport  string
	pipelineID string
}

// NewCollector creates a Collector with dimension labels.
// pipelineID is optional; a collector shared by several pipelines leaves it
// empty.
func NewCollector(direction, transport, pipelineID string) *Collector {
	return &Collector{
		direction:  direction,
		transport:  transport,
		pipelineID: pipelineID,
	}
}

// --- Pipeline lifecycle ---

// IncPipelineStarted records a pipeline start.
func (c *Collector) IncPipelineStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipelinesStarted++
	c.mu.Unlock()
}

// IncPipelineCompleted records a pipeline that reached end of stream or was
// closed by its owner.
func (c *Collector) IncPipelineCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipelinesCompleted++
	c.mu.Unlock()
}

// IncPipelineFailed records a pipeline stopped by a source or sink failure.
func (c *Collector) IncPipelineFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pipelinesFailed++
	c.mu.Unlock()
}

// --- Frames ---

// ObserveFrame records a successfully transformed frame.
// A decode-side frame returned unchanged because it was empty counts as
// passthrough.
func (c *Collector) ObserveFrame(dir types.Direction, in, out *types.Frame) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.kind(in.MediaKind())
	k.Frames++
	k.BytesIn += int64(len(in.Payload))
	k.BytesOut += int64(len(out.Payload))
	if dir == types.DirectionDecode && len(in.Payload) == 0 {
		k.Passthrough++
	}
}

// ObserveFrameError records a frame that failed to transform.
func (c *Collector) ObserveFrameError(_ types.Direction, in *types.Frame, _ error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.kind(in.MediaKind())
	k.Frames++
	k.BytesIn += int64(len(in.Payload))
	k.Malformed++
}

// kind returns the counters for kind. Caller must hold c.mu.
func (c *Collector) kind(kind types.MediaKind) *KindCounts {
	if kind == types.MediaKindVideo {
		return &c.video
	}
	return &c.audio
}

// --- Trace storage ---

// IncTraceWriteSuccess records a successful trace write (per call).
func (c *Collector) IncTraceWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.traceWriteSuccess++
	c.mu.Unlock()
}

// IncTraceWriteFailure records a failed trace write (per call).
func (c *Collector) IncTraceWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.traceWriteFailure++
	c.mu.Unlock()
}

// --- Control (absorbed) ---

// AbsorbControlStats adds control counters from a finished pipeline.
// Called once per pipeline with its final stats snapshot.
func (c *Collector) AbsorbControlStats(updates, rejected, cryptoKeys int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.configUpdates += updates
	c.configRejected += rejected
	c.cryptoKeys += cryptoKeys
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		PipelinesStarted:   c.pipelinesStarted,
		PipelinesCompleted: c.pipelinesCompleted,
		PipelinesFailed:    c.pipelinesFailed,

		Audio: c.audio,
		Video: c.video,

		ConfigUpdates:  c.configUpdates,
		ConfigRejected: c.configRejected,
		CryptoKeys:     c.cryptoKeys,

		TraceWriteSuccess: c.traceWriteSuccess,
		TraceWriteFailure: c.traceWriteFailure,

		Direction:  c.direction,
		Transport:  c.transport,
		PipelineID: c.pipelineID,
	}
}
