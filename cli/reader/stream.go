package reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/ipc"
)

// ReadStream reads records until EOF and inspects every frame record as an
// envelope. limit caps the number of frames listed (0 lists all); the
// summary always covers the whole stream.
//
// Record decode errors end the read since the stream cannot be resynced.
func ReadStream(ctx context.Context, rr ipc.RecordReader, limit int) (*InspectStreamResponse, error) {
	resp := &InspectStreamResponse{Frames: []FrameInspection{}}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := rr.ReadRecord(ctx)
		if errors.Is(err, io.EOF) {
			return resp, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", resp.Summary.Records+1, err)
		}

		rec, err := ipc.DecodeRecord(payload)
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", resp.Summary.Records+1, err)
		}
		resp.Summary.Records++

		switch r := rec.(type) {
		case *ipc.FrameRecord:
			fi := InspectFrame(resp.Summary.Frames, r)
			resp.Summary.add(fi)
			if limit <= 0 || len(resp.Frames) < limit {
				resp.Frames = append(resp.Frames, fi)
			} else {
				resp.Summary.Truncated = true
			}
		case *ipc.FrameErrorRecord:
			resp.Summary.Failures++
		default:
			resp.Summary.Controls++
		}
	}
}

// InspectFrame describes a single frame record as envelope seq.
func InspectFrame(seq int, r *ipc.FrameRecord) FrameInspection {
	fi := FrameInspection{
		Seq:       seq,
		Kind:      r.Kind,
		Timestamp: r.Timestamp,
		SSRC:      r.SSRC,
		PT:        r.PayloadType,
		Length:    len(r.Payload),
	}

	if _, err := r.ToFrame(); err != nil {
		fi.Status = StatusRejected
		fi.Error = err.Error()
		return fi
	}
	if len(r.Payload) == 0 {
		fi.Status = StatusEmpty
		return fi
	}

	info, err := codec.Inspect(r.Payload)
	if err != nil {
		fi.Status = StatusMalformed
		fi.Error = err.Error()
		return fi
	}
	fi.Status = StatusOK
	fi.Declared = info.DeclaredLength
	fi.Padding = info.PaddingLength
	return fi
}

func (s *StreamSummary) add(fi FrameInspection) {
	s.Frames++
	s.Bytes += int64(fi.Length)
	switch fi.Status {
	case StatusEmpty:
		s.Empty++
	case StatusMalformed, StatusRejected:
		s.Malformed++
	case StatusOK:
		s.PaddingSize += int64(fi.Padding)
	}
}
