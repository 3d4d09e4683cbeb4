// Package adapter defines the completion-notification boundary.
//
// Adapters publish a PipelineCompletedEvent to a downstream system when a
// pipeline finishes. The caller owns adapter lifecycle.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/types"
)

// EventTypePipelineCompleted is the event_type of every completion event.
const EventTypePipelineCompleted = "pipeline_completed"

// Outcome values.
const (
	OutcomeSuccess     = "success"
	OutcomeSourceError = "source_error"
	OutcomeSinkError   = "sink_error"
	OutcomeCanceled    = "canceled"
	OutcomeError       = "error"
)

// PipelineCompletedEvent is the payload published when a pipeline finishes.
type PipelineCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"`
	PipelineID      string `json:"pipeline_id"`
	Direction       string `json:"direction"`
	Transport       string `json:"transport"`
	Peer            string `json:"peer,omitempty"`
	Outcome         string `json:"outcome"`
	Message         string `json:"message,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
	FramesIn        int64  `json:"frames_in"`
	FramesOut       int64  `json:"frames_out"`
	BytesIn         int64  `json:"bytes_in"`
	BytesOut        int64  `json:"bytes_out"`
	Passthrough     int64  `json:"passthrough"`
	Malformed       int64  `json:"malformed"`
	ConfigUpdates   int64  `json:"config_updates"`
	TracePath       string `json:"trace_path,omitempty"`
}

// NewPipelineCompletedEvent builds the event for a finished pipeline.
// runErr is the error returned by Run, nil on success.
func NewPipelineCompletedEvent(meta types.PipelineMeta, transport string, stats pipeline.Stats, runErr error, started, finished time.Time) *PipelineCompletedEvent {
	ev := &PipelineCompletedEvent{
		ContractVersion: types.RecordVersion,
		EventType:       EventTypePipelineCompleted,
		PipelineID:      meta.PipelineID,
		Direction:       string(meta.Direction),
		Transport:       transport,
		Outcome:         Outcome(runErr),
		Timestamp:       finished.UTC().Format(time.RFC3339),
		DurationMs:      finished.Sub(started).Milliseconds(),
		FramesIn:        stats.FramesIn,
		FramesOut:       stats.FramesOut,
		BytesIn:         stats.BytesIn,
		BytesOut:        stats.BytesOut,
		Passthrough:     stats.Passthrough,
		Malformed:       stats.Malformed,
		ConfigUpdates:   stats.ConfigUpdates,
	}
	if meta.Peer != nil {
		ev.Peer = *meta.Peer
	}
	if runErr != nil {
		ev.Message = runErr.Error()
	}
	return ev
}

// Outcome maps a Run error onto an outcome value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case pipeline.IsCanceledError(err):
		return OutcomeCanceled
	case pipeline.IsSourceError(err):
		return OutcomeSourceError
	case pipeline.IsSinkError(err):
		return OutcomeSinkError
	default:
		return OutcomeError
	}
}

// Adapter publishes pipeline completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *PipelineCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt i (1-based):
// 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx is done or fn's error is permanent.
// name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
