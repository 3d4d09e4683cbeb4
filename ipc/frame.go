// Package ipc implements the framewrap record transport.
//
// Records are msgpack maps discriminated by a "type" field. On byte streams
// (stdin/stdout, files) each record is preceded by a 4-byte big-endian
// length prefix; message transports (WebSocket, DataChannel) carry one
// record per message without a prefix.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Record size limits. A record on a byte stream occupies its length prefix
// plus at most MaxPayloadSize bytes.
const (
	LengthPrefixSize = 4
	MaxFrameSize     = 16 << 20
	MaxPayloadSize   = MaxFrameSize - LengthPrefixSize
)

// FrameErrorKind classifies record transport failures.
type FrameErrorKind int

const (
	// FrameErrorPartial: the stream ended inside a record.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge: the record exceeds MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode: the record bytes are not a valid msgpack record.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError is returned by the record transport.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether the byte stream has lost record alignment.
// Decode errors leave the stream aligned on the next prefix.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError reports whether err wraps a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.IsFatal()
}

// TooLargeError reports a record of n bytes as FrameErrorTooLarge.
func TooLargeError(n uint64) *FrameError {
	return &FrameError{
		Kind: FrameErrorTooLarge,
		Msg:  fmt.Sprintf("record of %d bytes exceeds maximum %d", n, MaxPayloadSize),
	}
}

// FrameDecoder splits a byte stream into length-prefixed records.
type FrameDecoder struct {
	r      io.Reader
	prefix [LengthPrefixSize]byte
}

// NewFrameDecoder returns a decoder reading from r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r}
}

// ReadFrame returns the next record's msgpack bytes. It returns io.EOF
// only when the stream ends exactly on a record boundary; a stream ending
// anywhere else yields a FrameErrorPartial. Oversized records are rejected
// before their body is read.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "truncated length prefix", Err: err}
	}

	n := binary.BigEndian.Uint32(d.prefix[:])
	if n > MaxPayloadSize {
		return nil, TooLargeError(uint64(n))
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("truncated record body (want %d bytes)", n),
			Err:  err,
		}
	}
	return body, nil
}

// FrameEncoder writes length-prefixed records. It is safe for concurrent
// use; every record reaches the writer in one Write call.
type FrameEncoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameEncoder returns an encoder writing to w.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{w: w}
}

// WriteFrame writes body behind its length prefix. Oversized bodies fail
// with FrameErrorTooLarge and nothing is written.
func (e *FrameEncoder) WriteFrame(body []byte) error {
	if len(body) > MaxPayloadSize {
		return TooLargeError(uint64(len(body)))
	}

	buf := binary.BigEndian.AppendUint32(make([]byte, 0, LengthPrefixSize+len(body)), uint32(len(body)))
	buf = append(buf, body...)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
