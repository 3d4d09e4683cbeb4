package trace

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/justapithecus/lode/lode"
)

// ErrNoFramesFound is returned when no trace records match the query.
var ErrNoFramesFound = errors.New("no trace records found")

// Frame is a trace record read back from the dataset.
type Frame struct {
	PipelineID string `json:"pipeline_id"`
	Direction  string `json:"direction"`
	Seq        int    `json:"seq"`
	Kind       string `json:"kind"`
	Len        int    `json:"len"`
	Head       string `json:"head"`
	Timestamp  uint32 `json:"ts"`
	SSRC       uint32 `json:"ssrc"`
	PT         uint8  `json:"pt"`
	ObservedAt string `json:"observed_at"`
	Error      string `json:"error,omitempty"`
}

// Malformed reports whether the frame failed to transform.
func (f Frame) Malformed() bool {
	return f.Error != ""
}

// QueryFrames reads trace records, optionally filtered by pipeline ID and
// direction. Results are ordered by pipeline, direction, then seq.
// Returns ErrNoFramesFound when nothing matches.
func QueryFrames(ctx context.Context, ds lode.Dataset, pipelineID, direction string) ([]Frame, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrapStorageError("read", "snapshots", err)
	}

	var out []Frame
	for _, snap := range snapshots {
		// Manifest paths are a coarse filter; record fields decide.
		if !snapshotMatches(snap, "pipeline_id", pipelineID) ||
			!snapshotMatches(snap, "direction", direction) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapStorageError("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != RecordKindFrame {
				continue
			}
			f := frameFromRecord(rec)
			if pipelineID != "" && f.PipelineID != pipelineID {
				continue
			}
			if direction != "" && f.Direction != direction {
				continue
			}
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoFramesFound
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PipelineID != b.PipelineID {
			return a.PipelineID < b.PipelineID
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

func frameFromRecord(rec map[string]any) Frame {
	return Frame{
		PipelineID: toString(rec["pipeline_id"]),
		Direction:  toString(rec["direction"]),
		Seq:        int(toInt64(rec["seq"])),
		Kind:       toString(rec["kind"]),
		Len:        int(toInt64(rec["len"])),
		Head:       toString(rec["head"]),
		Timestamp:  uint32(toInt64(rec["ts"])),
		SSRC:       uint32(toInt64(rec["ssrc"])),
		PT:         uint8(toInt64(rec["pt"])),
		ObservedAt: toString(rec["observed_at"]),
		Error:      toString(rec["error"]),
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types a codec may decode into.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case uint32:
		return int64(n)
	case uint8:
		return int64(n)
	}
	return 0
}
