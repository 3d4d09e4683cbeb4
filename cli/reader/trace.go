package reader

import (
	"context"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
)

// ReadTrace reads trace records for the given pipeline and direction.
// Empty filters match everything. Returns trace.ErrNoFramesFound when
// nothing matches.
func ReadTrace(ctx context.Context, ds lode.Dataset, pipelineID, direction string) (*InspectTraceResponse, error) {
	frames, err := trace.QueryFrames(ctx, ds, pipelineID, direction)
	if err != nil {
		return nil, err
	}

	resp := &InspectTraceResponse{
		Summary: TraceSummary{PipelineID: pipelineID, Direction: direction},
		Frames:  frames,
	}
	for _, f := range frames {
		resp.Summary.Frames++
		resp.Summary.Bytes += int64(f.Len)
		switch types.MediaKind(f.Kind) {
		case types.MediaKindAudio:
			resp.Summary.Audio++
		case types.MediaKindVideo:
			resp.Summary.Video++
		}
		if f.Malformed() {
			resp.Summary.Malformed++
		}
	}
	return resp, nil
}
