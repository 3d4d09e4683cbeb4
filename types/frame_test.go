package types //nolint:revive // types is a valid package name

import (
	"bytes"
	"testing"
)

func TestParseMediaKind(t *testing.T) {
	tests := []struct {
		input   string
		want    MediaKind
		wantErr bool
	}{
		{"", MediaKindAudio, false},
		{"audio", MediaKindAudio, false},
		{"AUDIO", MediaKindAudio, false},
		{"video", MediaKindVideo, false},
		{"data", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMediaKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMediaKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMediaKind(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("encode"); err != nil || d != DirectionEncode {
		t.Errorf("ParseDirection(encode) = %q, %v", d, err)
	}
	if d, err := ParseDirection("Decode"); err != nil || d != DirectionDecode {
		t.Errorf("ParseDirection(Decode) = %q, %v", d, err)
	}
	if _, err := ParseDirection("both"); err == nil {
		t.Error("expected error for invalid direction")
	}
}

func TestFrame_MediaKindDefaultsToAudio(t *testing.T) {
	f := &Frame{}
	if f.MediaKind() != MediaKindAudio {
		t.Errorf("MediaKind() = %q, want audio", f.MediaKind())
	}
	f.Kind = MediaKindVideo
	if f.MediaKind() != MediaKindVideo {
		t.Errorf("MediaKind() = %q, want video", f.MediaKind())
	}
}

func TestFrame_WithPayloadDoesNotMutate(t *testing.T) {
	orig := &Frame{
		Kind:        MediaKindVideo,
		Payload:     []byte{1, 2, 3},
		Timestamp:   9000,
		SSRC:        42,
		PayloadType: 96,
	}

	next := orig.WithPayload([]byte{9})

	if !bytes.Equal(orig.Payload, []byte{1, 2, 3}) {
		t.Errorf("original payload mutated: %v", orig.Payload)
	}
	if next == orig {
		t.Fatal("WithPayload returned the same pointer")
	}
	if next.Kind != orig.Kind || next.Timestamp != orig.Timestamp ||
		next.SSRC != orig.SSRC || next.PayloadType != orig.PayloadType {
		t.Errorf("metadata not preserved: %+v", next)
	}
}

func TestCommand_Operations(t *testing.T) {
	var cmds = []Command{SetPayloadSize{}, SetCryptoKey{}}
	want := []Operation{OperationSetPayloadSize, OperationSetCryptoKey}
	for i, c := range cmds {
		if c.Operation() != want[i] {
			t.Errorf("command %d: Operation() = %q, want %q", i, c.Operation(), want[i])
		}
	}
}
