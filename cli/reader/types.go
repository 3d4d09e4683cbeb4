// Package reader provides the read-side data access layer for the framewrap
// CLI.
//
// Read-only commands (inspect, --stats) build their payloads here so table,
// json, yaml and TUI rendering all share the same data.
package reader

import "github.com/pithecene-io/framewrap/trace"

// Frame status values.
const (
	StatusOK        = "ok"
	StatusEmpty     = "empty"
	StatusMalformed = "malformed"
	StatusRejected  = "rejected"
)

// FrameInspection describes one frame record of a record stream.
type FrameInspection struct {
	Seq       int    `json:"seq"`
	Kind      string `json:"kind"`
	Timestamp uint32 `json:"ts"`
	SSRC      uint32 `json:"ssrc"`
	PT        uint8  `json:"pt"`
	Length    int    `json:"len"`
	Declared  int    `json:"declared"`
	Padding   int    `json:"padding"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// StreamSummary aggregates a record stream.
type StreamSummary struct {
	Records     int   `json:"records"`
	Frames      int   `json:"frames"`
	Controls    int   `json:"controls"`
	Failures    int   `json:"failures"`
	Empty       int   `json:"empty"`
	Malformed   int   `json:"malformed"`
	Bytes       int64 `json:"bytes"`
	PaddingSize int64 `json:"padding_bytes"`
	Truncated   bool  `json:"truncated"`
}

// InspectStreamResponse is the payload of inspect over a record stream.
type InspectStreamResponse struct {
	Summary StreamSummary     `json:"summary"`
	Frames  []FrameInspection `json:"frames"`
}

// TraceSummary aggregates trace records.
type TraceSummary struct {
	PipelineID string `json:"pipeline_id,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Frames     int    `json:"frames"`
	Audio      int    `json:"audio"`
	Video      int    `json:"video"`
	Malformed  int    `json:"malformed"`
	Bytes      int64  `json:"bytes"`
}

// InspectTraceResponse is the payload of inspect over a trace dataset.
type InspectTraceResponse struct {
	Summary TraceSummary  `json:"summary"`
	Frames  []trace.Frame `json:"frames"`
}

// StatsView is a flattened metrics snapshot for table rendering.
type StatsView struct {
	PipelineID     string `json:"pipeline_id"`
	Direction      string `json:"direction"`
	Transport      string `json:"transport"`
	Frames         int64  `json:"frames"`
	AudioFrames    int64  `json:"audio_frames"`
	VideoFrames    int64  `json:"video_frames"`
	BytesIn        int64  `json:"bytes_in"`
	BytesOut       int64  `json:"bytes_out"`
	Passthrough    int64  `json:"passthrough"`
	Malformed      int64  `json:"malformed"`
	ConfigUpdates  int64  `json:"config_updates"`
	ConfigRejected int64  `json:"config_rejected"`
	CryptoKeys     int64  `json:"crypto_keys"`
	TraceWrites    int64  `json:"trace_writes"`
	TraceFailures  int64  `json:"trace_failures"`
}
