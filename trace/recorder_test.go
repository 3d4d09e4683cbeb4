package trace

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/types"
)

// sharedFactory returns a factory that always returns the same store,
// so writes and reads share state.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// FailingStore is a lode.Store that returns configurable errors.
type FailingStore struct {
	PutErr error

	PutCalls int
}

func (s *FailingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	s.PutCalls++
	return s.PutErr
}

func (s *FailingStore) Get(_ context.Context, _ string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) Exists(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (s *FailingStore) List(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (s *FailingStore) ReadRange(_ context.Context, _ string, _, _ int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *FailingStore) ReaderAt(_ context.Context, _ string) (io.ReaderAt, error) {
	return nil, errors.New("not implemented")
}

var _ lode.Store = (*FailingStore)(nil)

var fixedNow = func() time.Time { return time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC) }

func newMemoryDataset(t *testing.T) lode.Dataset {
	t.Helper()
	ds, err := NewDataset("", sharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("NewDataset() error = %v", err)
	}
	return ds
}

func TestNewRecorder_Validation(t *testing.T) {
	ds := newMemoryDataset(t)
	if _, err := NewRecorder(nil, Config{PipelineID: "p"}); err == nil {
		t.Error("expected error for nil dataset")
	}
	if _, err := NewRecorder(ds, Config{}); err == nil {
		t.Error("expected error for empty pipeline ID")
	}
	r, err := NewRecorder(ds, Config{PipelineID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if r.cfg.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", r.cfg.Limit, DefaultLimit)
	}
}

func TestRecorder_LimitPerDirection(t *testing.T) {
	r, err := NewRecorder(newMemoryDataset(t), Config{PipelineID: "p", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	f := &types.Frame{Payload: []byte{1}}
	for range 5 {
		r.ObserveFrame(types.DirectionEncode, f, f)
	}
	r.ObserveFrame(types.DirectionDecode, f, f)

	if got := r.Pending(); got != 4 {
		t.Errorf("Pending() = %d, want 4", got)
	}
}

func TestRecorder_FlushAndQuery(t *testing.T) {
	ds := newMemoryDataset(t)
	collector := metrics.NewCollector("encode", "stdio", "p-1")
	r, err := NewRecorder(ds, Config{PipelineID: "p-1", Collector: collector, Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	in := &types.Frame{Kind: types.MediaKindVideo, Payload: payload, Timestamp: 3000, SSRC: 7, PayloadType: 96}
	out := codec.Wrap(in, 0)
	r.ObserveFrame(types.DirectionEncode, in, out)
	r.ObserveFrameError(types.DirectionDecode, &types.Frame{Payload: []byte{0, 0}}, errors.New("short"))

	if err := r.Flush(t.Context()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if got := r.Pending(); got != 0 {
		t.Errorf("Pending() after Flush = %d, want 0", got)
	}

	frames, err := QueryFrames(t.Context(), ds, "p-1", "encode")
	if err != nil {
		t.Fatalf("QueryFrames() error = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got := frames[0]
	if got.Len != 44 {
		t.Errorf("Len = %d, want 44", got.Len)
	}
	if got.Head != "00000028000102030405060708090a0b" {
		t.Errorf("Head = %q", got.Head)
	}
	if got.Kind != "video" || got.Timestamp != 3000 || got.SSRC != 7 || got.PT != 96 {
		t.Errorf("frame metadata = %+v", got)
	}
	if got.ObservedAt != "2026-02-03T10:00:00Z" {
		t.Errorf("ObservedAt = %q", got.ObservedAt)
	}

	dec, err := QueryFrames(t.Context(), ds, "p-1", "decode")
	if err != nil {
		t.Fatal(err)
	}
	if len(dec) != 1 || !dec[0].Malformed() || dec[0].Error != "short" {
		t.Errorf("decode frames = %+v", dec)
	}

	if s := collector.Snapshot(); s.TraceWriteSuccess != 1 || s.TraceWriteFailure != 0 {
		t.Errorf("trace counters = %d/%d, want 1/0", s.TraceWriteSuccess, s.TraceWriteFailure)
	}
}

func TestRecorder_FlushEmptyIsNoop(t *testing.T) {
	store := &FailingStore{PutErr: errors.New("should not be called")}
	ds, err := NewDataset("", sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRecorder(ds, Config{PipelineID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(t.Context()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if store.PutCalls != 0 {
		t.Errorf("PutCalls = %d, want 0", store.PutCalls)
	}
}

func TestRecorder_WriteFailure_DiskFull(t *testing.T) {
	store := &FailingStore{PutErr: errors.New("write /data: no space left on device")}
	ds, err := NewDataset("", sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	collector := metrics.NewCollector("encode", "stdio", "p")
	r, err := NewRecorder(ds, Config{PipelineID: "p", Collector: collector})
	if err != nil {
		t.Fatal(err)
	}
	f := &types.Frame{Payload: []byte{1, 2}}
	r.ObserveFrame(types.DirectionEncode, f, f)

	err = r.Flush(t.Context())
	if err == nil {
		t.Fatal("expected write error")
	}
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *StorageError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("expected ErrDiskFull, got kind: %v", storageErr.Kind)
	}
	if storageErr.Op != "write" {
		t.Errorf("Op = %q, want write", storageErr.Op)
	}
	// Records stay buffered for a retry.
	if got := r.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
	if s := collector.Snapshot(); s.TraceWriteFailure != 1 {
		t.Errorf("TraceWriteFailure = %d, want 1", s.TraceWriteFailure)
	}
}

func TestRecorder_Close(t *testing.T) {
	ds := newMemoryDataset(t)
	r, err := NewRecorder(ds, Config{PipelineID: "p"})
	if err != nil {
		t.Fatal(err)
	}
	f := &types.Frame{Payload: []byte{9}}
	r.ObserveFrame(types.DirectionDecode, f, f)

	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(t.Context()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := r.Flush(t.Context()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush() after Close = %v, want ErrClosed", err)
	}

	// Observations after Close are ignored.
	r.ObserveFrame(types.DirectionDecode, f, f)
	if got := r.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}

	frames, err := QueryFrames(t.Context(), ds, "p", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 {
		t.Errorf("got %d frames, want 1", len(frames))
	}
}

func TestRecorder_AsPipelineObserver(t *testing.T) {
	ds := newMemoryDataset(t)
	r, err := NewRecorder(ds, Config{PipelineID: "run-1", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}

	frames := []*types.Frame{
		{Payload: []byte{1}},
		{Payload: []byte{2}},
		{Payload: []byte{3}},
	}
	p, err := pipeline.New(pipeline.Options{
		Direction:  types.DirectionEncode,
		Source:     pipeline.NewSliceSource(frames...),
		Sink:       pipeline.NewStubSink(),
		PipelineID: "run-1",
		Observers:  []pipeline.Observer{r},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Run(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(t.Context()); err != nil {
		t.Fatal(err)
	}

	got, err := QueryFrames(t.Context(), ds, "run-1", "encode")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	for i, f := range got {
		if f.Seq != i || f.Len != 5 {
			t.Errorf("frame %d = %+v", i, f)
		}
	}
}

func TestFSDataset_RoundTrip(t *testing.T) {
	root := t.TempDir()
	ds, err := NewFSDataset("trace", root)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRecorder(ds, Config{PipelineID: "fs-1"})
	if err != nil {
		t.Fatal(err)
	}
	f := &types.Frame{Payload: []byte{0xAB}}
	r.ObserveFrame(types.DirectionEncode, f, f)
	if err := r.Close(t.Context()); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFSDataset("trace", root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := QueryFrames(t.Context(), reopened, "fs-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Head != "ab" {
		t.Errorf("frames = %+v", got)
	}

	matches, _ := filepath.Glob(filepath.Join(root, "*"))
	if len(matches) == 0 {
		t.Error("expected files under the FS root")
	}
}

func TestQueryFrames_NoRecords(t *testing.T) {
	_, err := QueryFrames(t.Context(), newMemoryDataset(t), "", "")
	if !errors.Is(err, ErrNoFramesFound) {
		t.Errorf("QueryFrames() = %v, want ErrNoFramesFound", err)
	}
}

// A pipeline ID that prefixes another must not match it.
func TestQueryFrames_NoPrefixCollision(t *testing.T) {
	ds := newMemoryDataset(t)
	for _, id := range []string{"run-1", "run-10"} {
		r, err := NewRecorder(ds, Config{PipelineID: id})
		if err != nil {
			t.Fatal(err)
		}
		f := &types.Frame{Payload: []byte{1}}
		r.ObserveFrame(types.DirectionEncode, f, f)
		if err := r.Close(t.Context()); err != nil {
			t.Fatal(err)
		}
	}

	got, err := QueryFrames(t.Context(), ds, "run-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PipelineID != "run-1" {
		t.Errorf("frames = %+v", got)
	}

	all, err := QueryFrames(t.Context(), ds, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("got %d frames, want 2", len(all))
	}
}
