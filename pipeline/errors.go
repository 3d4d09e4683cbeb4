package pipeline

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/framewrap/types"
)

// ErrorKind classifies fatal pipeline errors for outcome determination.
type ErrorKind int

const (
	// ErrorSource indicates the source failed with something other than
	// end of stream.
	ErrorSource ErrorKind = iota
	// ErrorSink indicates the sink rejected a frame or failed to close.
	ErrorSink
	// ErrorCanceled indicates the caller's context was canceled.
	ErrorCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorSource:
		return "source"
	case ErrorSink:
		return "sink"
	case ErrorCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a fatal pipeline error. Frame-level failures are never fatal
// and are reported through Sink.ReportError instead.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsSinkError returns true if err is a sink failure.
func IsSinkError(err error) bool {
	return hasKind(err, ErrorSink)
}

// IsSourceError returns true if err is a source failure.
func IsSourceError(err error) bool {
	return hasKind(err, ErrorSource)
}

// IsCanceledError returns true if err is due to context cancellation.
func IsCanceledError(err error) bool {
	return hasKind(err, ErrorCanceled)
}

func hasKind(err error, kind ErrorKind) bool {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Kind == kind
	}
	return false
}

// ErrUnknownOperation is returned by Apply for unsupported commands.
var ErrUnknownOperation = errors.New("unknown control operation")

// FrameFailure describes a single frame that could not be transformed.
type FrameFailure struct {
	// Kind is the taxonomy entry of the failure.
	Kind types.ErrorKind
	// Frame is the input frame, unmodified.
	Frame *types.Frame
	// Err is the underlying error.
	Err error
}

func (f *FrameFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *FrameFailure) Unwrap() error {
	return f.Err
}

// kinded is implemented by codec errors that map onto the error taxonomy.
type kinded interface {
	ErrorKind() types.ErrorKind
}

func newFrameFailure(f *types.Frame, err error) *FrameFailure {
	kind := types.ErrorKindMalformedFrame
	var k kinded
	if errors.As(err, &k) {
		kind = k.ErrorKind()
	}
	return &FrameFailure{Kind: kind, Frame: f, Err: err}
}
