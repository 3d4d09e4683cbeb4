// Package codec implements the reversible frame envelope.
//
// Envelope layout:
//
//	[4 bytes: big-endian uint32 original payload length L]
//	[L bytes: original payload]
//	[N bytes: padding, N = padding size of the frame's media kind]
//
// The padding size is not carried on the wire. Sender and receiver must be
// configured with the same sizes out of band; Unwrap only relies on the
// length prefix and never reads the padding region.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pithecene-io/framewrap/types"
)

// LengthPrefixSize is the size of the length prefix in bytes.
const LengthPrefixSize = 4

// FrameErrorKind classifies envelope decoding errors.
type FrameErrorKind int

const (
	// FrameErrorMalformed indicates a truncated or corrupt envelope.
	FrameErrorMalformed FrameErrorKind = iota
)

// FrameError represents an envelope decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// ErrorKind maps the error to the pipeline error taxonomy.
func (e *FrameError) ErrorKind() types.ErrorKind {
	return types.ErrorKindMalformedFrame
}

// IsMalformed returns true if err is a malformed envelope error.
func IsMalformed(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorMalformed
	}
	return false
}

// Wrap returns a new frame whose payload is the envelope of f.
//
// The padding region is zero-filled. A negative paddingSize is treated as 0.
// The payload length must fit in 32 bits.
func Wrap(f *types.Frame, paddingSize int) *types.Frame {
	if paddingSize < 0 {
		paddingSize = 0
	}

	n := len(f.Payload)
	out := make([]byte, LengthPrefixSize+n+paddingSize)
	binary.BigEndian.PutUint32(out[:LengthPrefixSize], uint32(n))
	copy(out[LengthPrefixSize:], f.Payload)

	return f.WithPayload(out)
}

// Unwrap recovers the original frame from an envelope.
//
// An empty payload is passed through unchanged: such frames carry no media
// and were never wrapped. Otherwise the recovered payload is copied out of
// the envelope so the result does not alias the input buffer.
//
// Errors:
//   - *FrameError with Kind=FrameErrorMalformed: payload shorter than the
//     length prefix, or declared length exceeding the available bytes
func Unwrap(f *types.Frame) (*types.Frame, error) {
	if len(f.Payload) == 0 {
		return f, nil
	}

	info, err := Inspect(f.Payload)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, info.DeclaredLength)
	copy(payload, f.Payload[LengthPrefixSize:LengthPrefixSize+info.DeclaredLength])

	return f.WithPayload(payload), nil
}

// EnvelopeInfo describes the layout of a wrapped payload.
type EnvelopeInfo struct {
	// DeclaredLength is the value of the length prefix.
	DeclaredLength int `json:"declared_length"`
	// PaddingLength is the number of bytes after the original payload.
	PaddingLength int `json:"padding_length"`
	// TotalLength is the full envelope size.
	TotalLength int `json:"total_length"`
}

// Inspect validates the envelope layout of payload without copying it.
// An empty payload is reported as malformed; callers that pass empty frames
// through must check for that first.
func Inspect(payload []byte) (EnvelopeInfo, error) {
	if len(payload) < LengthPrefixSize {
		return EnvelopeInfo{}, &FrameError{
			Kind: FrameErrorMalformed,
			Msg:  fmt.Sprintf("envelope of %d bytes is shorter than the %d-byte length prefix", len(payload), LengthPrefixSize),
		}
	}

	declared := uint64(binary.BigEndian.Uint32(payload[:LengthPrefixSize]))
	available := uint64(len(payload) - LengthPrefixSize)
	if declared > available {
		return EnvelopeInfo{}, &FrameError{
			Kind: FrameErrorMalformed,
			Msg:  fmt.Sprintf("declared length %d exceeds available %d bytes", declared, available),
		}
	}

	return EnvelopeInfo{
		DeclaredLength: int(declared),
		PaddingLength:  int(available - declared),
		TotalLength:    len(payload),
	}, nil
}
