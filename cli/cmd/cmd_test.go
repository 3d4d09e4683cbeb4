package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewrap/adapter"
	"github.com/pithecene-io/framewrap/cli/reader"
	"github.com/pithecene-io/framewrap/codec"
	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/log"
	"github.com/pithecene-io/framewrap/metrics"
	"github.com/pithecene-io/framewrap/pipeline"
	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
	"github.com/pithecene-io/framewrap/wsock"
)

// runApp runs a single command in-process. Exit errors are returned
// instead of terminating the test binary.
func runApp(t *testing.T, command *cli.Command, args ...string) error {
	t.Helper()
	app := &cli.App{
		Name:           "framewrap",
		Commands:       []*cli.Command{command},
		ExitErrHandler: func(*cli.Context, error) {},
		Writer:         io.Discard,
		ErrWriter:      io.Discard,
	}
	return app.RunContext(t.Context(), append([]string{"framewrap", command.Name}, args...))
}

// withContext invokes fn with a cli.Context parsed from args against flags.
func withContext(t *testing.T, flags []cli.Flag, args []string, fn func(c *cli.Context)) {
	t.Helper()
	called := false
	command := &cli.Command{
		Name:  "probe",
		Flags: flags,
		Action: func(c *cli.Context) error {
			called = true
			fn(c)
			return nil
		},
	}
	if err := runApp(t, command, args...); err != nil {
		t.Fatalf("run probe: %v", err)
	}
	if !called {
		t.Fatal("probe action not called")
	}
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func encodeRecords(t *testing.T, recs ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := ipc.NewStreamWriter(&buf)
	for _, rec := range recs {
		payload, err := ipc.EncodeRecord(rec)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.WriteRecord(t.Context(), payload); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func decodeRecords(t *testing.T, data []byte) []any {
	t.Helper()
	r := ipc.NewStreamReader(bytes.NewReader(data))
	var out []any
	for {
		payload, err := r.ReadRecord(t.Context())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		rec, err := ipc.DecodeRecord(payload)
		if err != nil {
			t.Fatalf("DecodeRecord() error = %v", err)
		}
		out = append(out, rec)
	}
}

func frameRecord(kind types.MediaKind, payload ...byte) *ipc.FrameRecord {
	return ipc.NewFrameRecord(&types.Frame{Kind: kind, Payload: payload})
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// captureStdout returns what fn writes to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old }()

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&out, r)
		close(done)
	}()

	fn()
	_ = w.Close()
	<-done
	return out.String()
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	for _, flags := range [][]cli.Flag{ReadOnlyFlags(), TUIReadOnlyFlags()} {
		hasTUI := false
		for _, f := range flags {
			if f.Names()[0] == "tui" {
				hasTUI = true
			}
		}
		if !hasTUI {
			t.Error("read-only flags should include --tui for explicit error handling")
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())

	in := writeFile(t, "in.rec", encodeRecords(t,
		frameRecord(types.MediaKindAudio, 0x01, 0x02),
		&ipc.SetPayloadSizeRecord{Type: ipc.RecordTypeSetPayloadSize, MediaType: "audio", Value: 0},
		frameRecord(types.MediaKindAudio, 0x03),
		frameRecord(types.MediaKindVideo, 0xAA, 0xBB),
		frameRecord(types.MediaKindVideo),
	))
	mid := filepath.Join(t.TempDir(), "mid.rec")
	out := filepath.Join(t.TempDir(), "out.rec")

	if err := runApp(t, EncodeCommand(), "--in", in, "--out", mid, "--audio-padding", "3", "--video-padding", "2", "--log-level", "error"); err != nil {
		t.Fatalf("encode error = %v", err)
	}

	wrapped := decodeRecords(t, readFile(t, mid))
	wantLens := []int{4 + 2 + 3, 4 + 1, 4 + 2 + 2, 4 + 0 + 2}
	if len(wrapped) != len(wantLens) {
		t.Fatalf("encode wrote %d records, want %d", len(wrapped), len(wantLens))
	}
	for i, rec := range wrapped {
		fr, ok := rec.(*ipc.FrameRecord)
		if !ok {
			t.Fatalf("record %d = %T, want *ipc.FrameRecord", i, rec)
		}
		if len(fr.Payload) != wantLens[i] {
			t.Errorf("record %d len = %d, want %d", i, len(fr.Payload), wantLens[i])
		}
	}
	video := wrapped[2].(*ipc.FrameRecord).Payload
	if want := []byte{0, 0, 0, 2, 0xAA, 0xBB, 0, 0}; !bytes.Equal(video, want) {
		t.Errorf("video envelope = %x, want %x", video, want)
	}

	if err := runApp(t, DecodeCommand(), "--in", mid, "--out", out, "--log-level", "error"); err != nil {
		t.Fatalf("decode error = %v", err)
	}

	want := [][]byte{{0x01, 0x02}, {0x03}, {0xAA, 0xBB}, {}}
	got := decodeRecords(t, readFile(t, out))
	if len(got) != len(want) {
		t.Fatalf("decode wrote %d records, want %d", len(got), len(want))
	}
	for i, rec := range got {
		fr := rec.(*ipc.FrameRecord)
		if !bytes.Equal(fr.Payload, want[i]) {
			t.Errorf("frame %d = %x, want %x", i, fr.Payload, want[i])
		}
	}
}

func TestDecode_MalformedIsReportedInBand(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader(encodeRecords(t,
		frameRecord(types.MediaKindAudio, 0, 0, 0, 1, 0x7F),
		frameRecord(types.MediaKindAudio, 0, 0, 0),
		frameRecord(types.MediaKindAudio, 0, 0, 0, 9, 0x01),
		frameRecord(types.MediaKindAudio, 0, 0, 0, 0),
	))
	collector := metrics.NewCollector("decode", transportStdio, "p")

	res, err := runStream(t.Context(), streamSpec{
		direction:  types.DirectionDecode,
		pipelineID: "p",
		in:         in,
		out:        &out,
		config:     codec.NewConfig(),
		collector:  collector,
	})
	if err != nil {
		t.Fatalf("runStream() error = %v", err)
	}
	if res.err != nil {
		t.Fatalf("pipeline error = %v", res.err)
	}
	if res.stats.Malformed != 2 || res.stats.FramesOut != 2 {
		t.Errorf("stats = %+v, want 2 malformed, 2 out", res.stats)
	}
	if res.meta.PipelineID != "p" {
		t.Errorf("PipelineID = %q, want p", res.meta.PipelineID)
	}

	var frames, failures int
	for _, rec := range decodeRecords(t, out.Bytes()) {
		switch rec.(type) {
		case *ipc.FrameRecord:
			frames++
		case *ipc.FrameErrorRecord:
			failures++
		}
	}
	if frames != 2 || failures != 2 {
		t.Errorf("output has %d frames, %d failures, want 2 and 2", frames, failures)
	}

	snap := collector.Snapshot()
	if snap.PipelinesCompleted != 1 || snap.Audio.Malformed != 2 {
		t.Errorf("collector = %+v", snap)
	}
}

func TestRunStream_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	res, err := runStream(ctx, streamSpec{
		direction: types.DirectionEncode,
		in:        pr,
		out:       io.Discard,
		config:    codec.NewConfig(),
	})
	if err != nil {
		t.Fatalf("runStream() error = %v", err)
	}
	if res.err == nil {
		t.Fatal("pipeline error = nil, want cancellation")
	}
	if code := exitCode(exitForRun(res.err)); code != exitStreamError {
		t.Errorf("exit code = %d, want %d", code, exitStreamError)
	}
}

func TestEncode_ConfigErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	in := writeFile(t, "in.rec", nil)

	tests := []struct {
		name string
		args []string
	}{
		{"padding out of range", []string{"--audio-padding", "-1"}},
		{"trace without path", []string{"--trace"}},
		{"unknown trace backend", []string{"--trace", "--trace-backend", "gcs", "--trace-path", "x"}},
		{"adapter without url", []string{"--adapter", "webhook"}},
		{"unknown adapter", []string{"--adapter", "kafka", "--adapter-url", "x"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"missing input", []string{"--in", filepath.Join(t.TempDir(), "nope.rec")}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--in", in, "--out", filepath.Join(t.TempDir(), "out")}, tt.args...)
			err := runApp(t, EncodeCommand(), args...)
			if code := exitCode(err); code != exitConfigError {
				t.Errorf("exit code = %d (err %v), want %d", code, err, exitConfigError)
			}
		})
	}
}

func TestEncode_TraceAndWebhook(t *testing.T) {
	t.Chdir(t.TempDir())

	var (
		mu     sync.Mutex
		events []adapter.PipelineCompletedEvent
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev adapter.PipelineCompletedEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		if got := r.Header.Get("X-Team"); got != "media" {
			t.Errorf("X-Team = %q, want media", got)
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	traceDir := t.TempDir()
	in := writeFile(t, "in.rec", encodeRecords(t,
		frameRecord(types.MediaKindAudio, 1, 2, 3),
		frameRecord(types.MediaKindVideo, 4),
	))

	err := runApp(t, EncodeCommand(),
		"--in", in, "--out", filepath.Join(t.TempDir(), "out.rec"),
		"--pipeline-id", "p-trace",
		"--log-level", "error",
		"--trace", "--trace-path", traceDir,
		"--adapter", "webhook", "--adapter-url", ts.URL, "--adapter-header", "X-Team=media",
	)
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("received %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.PipelineID != "p-trace" || ev.Direction != "encode" || ev.Transport != transportStdio {
		t.Errorf("event = %+v", ev)
	}
	if ev.Outcome != adapter.OutcomeSuccess || ev.FramesIn != 2 || ev.FramesOut != 2 {
		t.Errorf("event outcome = %s, frames %d/%d", ev.Outcome, ev.FramesIn, ev.FramesOut)
	}
	if !strings.Contains(ev.TracePath, "pipeline_id=p-trace") {
		t.Errorf("TracePath = %q", ev.TracePath)
	}

	ds, err := trace.NewFSDataset("", traceDir)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := reader.ReadTrace(t.Context(), ds, "p-trace", "encode")
	if err != nil {
		t.Fatalf("ReadTrace() error = %v", err)
	}
	if resp.Summary.Frames != 2 || resp.Summary.Audio != 1 || resp.Summary.Video != 1 {
		t.Errorf("trace summary = %+v", resp.Summary)
	}
	if resp.Frames[0].Len != 4+3 {
		t.Errorf("traced len = %d, want 7", resp.Frames[0].Len)
	}
}

func TestInspectStream_JSON(t *testing.T) {
	t.Chdir(t.TempDir())
	in := writeFile(t, "in.rec", encodeRecords(t,
		frameRecord(types.MediaKindAudio, 0, 0, 0, 1, 0x7F, 0, 0),
		frameRecord(types.MediaKindVideo, 0, 0, 0, 8),
	))

	var runErr error
	out := captureStdout(t, func() {
		runErr = runApp(t, InspectCommand(), "stream", "--in", in, "--format", "json")
	})
	if runErr != nil {
		t.Fatalf("inspect error = %v", runErr)
	}

	var resp reader.InspectStreamResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if resp.Summary.Frames != 2 || resp.Summary.Malformed != 1 || resp.Summary.PaddingSize != 2 {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if resp.Frames[1].Status != reader.StatusMalformed {
		t.Errorf("Frames[1].Status = %q, want malformed", resp.Frames[1].Status)
	}
}

func TestInspectTrace_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"no path", []string{"trace"}},
		{"bad direction", []string{"trace", "--trace-path", t.TempDir(), "--direction", "sideways"}},
		{"empty dataset", []string{"trace", "--trace-path", t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runApp(t, InspectCommand(), tt.args...)
			if code := exitCode(err); code != exitConfigError {
				t.Errorf("exit code = %d (err %v), want %d", code, err, exitConfigError)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	var runErr error
	out := captureStdout(t, func() {
		runErr = runApp(t, VersionCommand("abc123"), "--format", "json")
	})
	if runErr != nil {
		t.Fatalf("version error = %v", runErr)
	}
	var resp VersionResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if resp.Version != types.Version || resp.Commit != "abc123" {
		t.Errorf("version = %+v", resp)
	}

	if code := exitCode(runApp(t, VersionCommand(""), "--tui")); code != exitConfigError {
		t.Errorf("--tui exit code = %d, want %d", code, exitConfigError)
	}
}

func TestExitForRun(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"success", nil, 0, ""},
		{"canceled", &pipeline.Error{Kind: pipeline.ErrorCanceled, Err: context.Canceled}, exitStreamError, "interrupted"},
		{"sink", &pipeline.Error{Kind: pipeline.ErrorSink, Err: io.ErrClosedPipe}, exitStreamError, "stream failed"},
		{"source", &pipeline.Error{Kind: pipeline.ErrorSource, Err: io.ErrUnexpectedEOF}, exitStreamError, "stream failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitForRun(tt.err)
			if tt.err == nil {
				if err != nil {
					t.Errorf("exitForRun(nil) = %v, want nil", err)
				}
				return
			}
			if code := exitCode(err); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.PipelineCompletedEvent
}

func (a *recordingAdapter) Publish(_ context.Context, ev *adapter.PipelineCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return nil
}

func (a *recordingAdapter) Close() error { return nil }

func TestCompletionPublisher(t *testing.T) {
	if completionPublisher(nil, log.NewNop()) != nil {
		t.Error("completionPublisher(nil) should be nil")
	}

	rec := &recordingAdapter{}
	fn := completionPublisher(rec, log.NewNop())
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	peer := "10.0.0.1:5000"
	fn(t.Context(), wsock.Completion{
		Meta:     types.PipelineMeta{PipelineID: "ws-1", Direction: types.DirectionDecode, Peer: &peer},
		Stats:    pipeline.Stats{FramesIn: 4, FramesOut: 4},
		Started:  started,
		Finished: started.Add(1500 * time.Millisecond),
	})

	if len(rec.events) != 1 {
		t.Fatalf("published %d events, want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Transport != transportWebSocket || ev.Peer != peer || ev.DurationMs != 1500 {
		t.Errorf("event = %+v", ev)
	}
}
