// Package types defines core domain types for framewrap.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// MediaKind selects which padding size applies to a frame.
type MediaKind string

// Media kinds.
const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// ParseMediaKind parses a media kind string.
// An empty string defaults to audio, matching frames that carry no type.
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(s) {
	case "", "audio":
		return MediaKindAudio, nil
	case "video":
		return MediaKindVideo, nil
	default:
		return "", fmt.Errorf("invalid media kind: %q (must be audio or video)", s)
	}
}

// OrAudio returns k, or audio when k is unset.
func (k MediaKind) OrAudio() MediaKind {
	if k == MediaKindVideo {
		return MediaKindVideo
	}
	return MediaKindAudio
}

// Direction is the fixed operation of a pipeline instance.
type Direction string

// Pipeline directions.
const (
	// DirectionEncode wraps frames on the sender side.
	DirectionEncode Direction = "encode"
	// DirectionDecode unwraps frames on the receiver side.
	DirectionDecode Direction = "decode"
)

// ParseDirection parses a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case DirectionEncode:
		return DirectionEncode, nil
	case DirectionDecode:
		return DirectionDecode, nil
	default:
		return "", fmt.Errorf("invalid direction: %q (must be encode or decode)", s)
	}
}

// Frame is one discrete unit of encoded media data.
//
// Frames are treated as immutable once handed to a pipeline. Transforms
// produce a new Frame via WithPayload; the payload buffer of an input frame
// may be shared with other subsystems and is never written.
type Frame struct {
	// Kind selects the padding size. Empty means audio.
	Kind MediaKind
	// Payload is the encoded media data.
	Payload []byte
	// Timestamp is the RTP timestamp of the frame.
	Timestamp uint32
	// SSRC is the synchronization source of the frame.
	SSRC uint32
	// PayloadType is the RTP payload type, 0 when unknown.
	PayloadType uint8
}

// WithPayload returns a copy of f carrying payload.
// All metadata is preserved.
func (f *Frame) WithPayload(payload []byte) *Frame {
	c := *f
	c.Payload = payload
	return &c
}

// MediaKind returns the effective media kind of the frame.
func (f *Frame) MediaKind() MediaKind {
	return f.Kind.OrAudio()
}

// ErrorKind classifies frame-level and configuration errors.
type ErrorKind string

// Error kinds.
const (
	// ErrorKindMalformedFrame indicates a truncated or corrupt envelope.
	ErrorKindMalformedFrame ErrorKind = "malformed_frame"
	// ErrorKindConfigOutOfRange indicates a rejected padding size.
	ErrorKindConfigOutOfRange ErrorKind = "config_out_of_range"
	// ErrorKindUpstreamClosed indicates the source reached end of stream.
	// It is not a failure.
	ErrorKindUpstreamClosed ErrorKind = "upstream_closed"
)
