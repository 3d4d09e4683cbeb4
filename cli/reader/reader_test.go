package reader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
)

func writeRecords(t *testing.T, recs ...any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := ipc.NewStreamWriter(&buf)
	for _, rec := range recs {
		payload, err := ipc.EncodeRecord(rec)
		if err != nil {
			t.Fatalf("EncodeRecord() error = %v", err)
		}
		if err := w.WriteRecord(t.Context(), payload); err != nil {
			t.Fatalf("WriteRecord() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func frameRecord(kind types.MediaKind, payload []byte) *ipc.FrameRecord {
	return ipc.NewFrameRecord(&types.Frame{Kind: kind, Payload: payload, Timestamp: 90, SSRC: 7})
}

func TestReadStream(t *testing.T) {
	wrapped := codec.Wrap(&types.Frame{Kind: types.MediaKindVideo, Payload: []byte{0xAA, 0xBB}}, 2)

	buf := writeRecords(t,
		frameRecord(types.MediaKindVideo, wrapped.Payload),
		&ipc.SetPayloadSizeRecord{Type: ipc.RecordTypeSetPayloadSize, MediaType: "audio", Value: 4},
		frameRecord(types.MediaKindAudio, []byte{}),
		frameRecord(types.MediaKindAudio, []byte{0, 0, 0}),
		&ipc.FrameErrorRecord{Type: ipc.RecordTypeFrameError, Message: "bad"},
	)

	resp, err := ReadStream(t.Context(), ipc.NewStreamReader(buf), 0)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}

	want := StreamSummary{
		Records:     5,
		Frames:      3,
		Controls:    1,
		Failures:    1,
		Empty:       1,
		Malformed:   1,
		Bytes:       8 + 0 + 3,
		PaddingSize: 2,
	}
	if resp.Summary != want {
		t.Errorf("Summary = %+v, want %+v", resp.Summary, want)
	}

	if len(resp.Frames) != 3 {
		t.Fatalf("len(Frames) = %d, want 3", len(resp.Frames))
	}
	first := resp.Frames[0]
	if first.Status != StatusOK || first.Declared != 2 || first.Padding != 2 || first.Length != 8 {
		t.Errorf("Frames[0] = %+v, want ok with declared 2, padding 2, len 8", first)
	}
	if first.Kind != "video" || first.Timestamp != 90 || first.SSRC != 7 {
		t.Errorf("Frames[0] metadata = %+v", first)
	}
	if resp.Frames[1].Status != StatusEmpty {
		t.Errorf("Frames[1].Status = %q, want %q", resp.Frames[1].Status, StatusEmpty)
	}
	if resp.Frames[2].Status != StatusMalformed || resp.Frames[2].Error == "" {
		t.Errorf("Frames[2] = %+v, want malformed with error", resp.Frames[2])
	}
	for i, fi := range resp.Frames {
		if fi.Seq != i {
			t.Errorf("Frames[%d].Seq = %d, want %d", i, fi.Seq, i)
		}
	}
}

func TestReadStream_Limit(t *testing.T) {
	var recs []any
	for range 5 {
		recs = append(recs, frameRecord(types.MediaKindAudio, []byte{0, 0, 0, 1, 9}))
	}
	buf := writeRecords(t, recs...)

	resp, err := ReadStream(t.Context(), ipc.NewStreamReader(buf), 2)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	if len(resp.Frames) != 2 {
		t.Errorf("len(Frames) = %d, want 2", len(resp.Frames))
	}
	if resp.Summary.Frames != 5 {
		t.Errorf("Summary.Frames = %d, want 5", resp.Summary.Frames)
	}
	if !resp.Summary.Truncated {
		t.Error("Summary.Truncated = false, want true")
	}
}

func TestReadStream_Empty(t *testing.T) {
	resp, err := ReadStream(t.Context(), ipc.NewStreamReader(&bytes.Buffer{}), 0)
	if err != nil {
		t.Fatalf("ReadStream() error = %v", err)
	}
	if resp.Summary.Records != 0 || resp.Frames == nil {
		t.Errorf("ReadStream(empty) = %+v, want zero summary and empty frames", resp)
	}
}

func TestReadStream_DecodeError(t *testing.T) {
	var buf bytes.Buffer
	w := ipc.NewStreamWriter(&buf)
	if err := w.WriteRecord(t.Context(), []byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	if _, err := ReadStream(t.Context(), ipc.NewStreamReader(&buf), 0); err == nil {
		t.Error("ReadStream() expected error for undecodable record")
	}
}

func TestInspectFrame_UnknownKind(t *testing.T) {
	fi := InspectFrame(3, &ipc.FrameRecord{Type: ipc.RecordTypeFrame, Kind: "subtitle", Payload: []byte{1}})
	if fi.Status != StatusRejected {
		t.Errorf("Status = %q, want %q", fi.Status, StatusRejected)
	}
	if fi.Seq != 3 {
		t.Errorf("Seq = %d, want 3", fi.Seq)
	}
}

func TestReadTrace(t *testing.T) {
	store := lode.NewMemory()
	ds, err := trace.NewDataset("", func() (lode.Store, error) { return store, nil })
	if err != nil {
		t.Fatal(err)
	}

	r, err := trace.NewRecorder(ds, trace.Config{PipelineID: "p-1"})
	if err != nil {
		t.Fatal(err)
	}
	audio := &types.Frame{Kind: types.MediaKindAudio, Payload: []byte{1, 2, 3}}
	video := &types.Frame{Kind: types.MediaKindVideo, Payload: []byte{1}}
	r.ObserveFrame(types.DirectionDecode, audio, audio)
	r.ObserveFrame(types.DirectionDecode, video, video)
	r.ObserveFrameError(types.DirectionDecode, video, errors.New("malformed"))
	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	resp, err := ReadTrace(t.Context(), ds, "p-1", "decode")
	if err != nil {
		t.Fatalf("ReadTrace() error = %v", err)
	}
	want := TraceSummary{PipelineID: "p-1", Direction: "decode", Frames: 3, Audio: 1, Video: 2, Malformed: 1, Bytes: 5}
	if resp.Summary != want {
		t.Errorf("Summary = %+v, want %+v", resp.Summary, want)
	}

	if _, err := ReadTrace(t.Context(), ds, "p-2", ""); !errors.Is(err, trace.ErrNoFramesFound) {
		t.Errorf("ReadTrace(unknown) error = %v, want ErrNoFramesFound", err)
	}
}

func TestNewStatsView(t *testing.T) {
	c := metrics.NewCollector("encode", "stdio", "p")
	c.ObserveFrame(types.DirectionEncode,
		&types.Frame{Kind: types.MediaKindAudio, Payload: []byte{1}},
		&types.Frame{Kind: types.MediaKindAudio, Payload: []byte{0, 0, 0, 1, 1}})
	c.ObserveFrame(types.DirectionDecode,
		&types.Frame{Kind: types.MediaKindVideo, Payload: []byte{}},
		&types.Frame{Kind: types.MediaKindVideo, Payload: []byte{}})
	c.AbsorbControlStats(2, 1, 0)

	v := NewStatsView(c.Snapshot())
	if v.Frames != 2 || v.AudioFrames != 1 || v.VideoFrames != 1 {
		t.Errorf("frames = %d/%d/%d, want 2/1/1", v.Frames, v.AudioFrames, v.VideoFrames)
	}
	if v.BytesIn != 1 || v.BytesOut != 5 {
		t.Errorf("bytes = %d/%d, want 1/5", v.BytesIn, v.BytesOut)
	}
	if v.Passthrough != 1 {
		t.Errorf("Passthrough = %d, want 1", v.Passthrough)
	}
	if v.ConfigUpdates != 2 || v.ConfigRejected != 1 {
		t.Errorf("config = %d/%d, want 2/1", v.ConfigUpdates, v.ConfigRejected)
	}
	if v.PipelineID != "p" || v.Transport != "stdio" || v.Direction != "encode" {
		t.Errorf("dimensions = %+v", v)
	}
}
