package tui

import (
	"fmt"
	"slices"
	"strings"
)

// TUI view types.
const (
	ViewInspectStream = "inspect_stream"
	ViewInspectTrace  = "inspect_trace"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	return RunInspectTUI(viewType, data)
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only inspect views do.
func IsTUISupported(viewType string) bool {
	return strings.HasPrefix(viewType, "inspect_") && slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		ViewInspectStream,
		ViewInspectTrace,
	}
}
