// Package iox provides I/O helpers for stream endpoints and resource cleanup.
package iox

import (
	"fmt"
	"io"
	"os"
)

// StdioPath selects stdin or stdout in OpenInput and CreateOutput.
const StdioPath = "-"

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(conn))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// OpenInput opens path for reading. StdioPath and "" return stdin, whose
// Close is a no-op.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == "" || path == StdioPath {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// CreateOutput creates or truncates path for writing. StdioPath and ""
// return stdout, whose Close is a no-op.
func CreateOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == StdioPath {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
