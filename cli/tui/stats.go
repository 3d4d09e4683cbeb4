package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/framewrap/cli/reader"
)

type stat struct {
	label string
	value int64
	color lipgloss.Color
}

// summaryStats returns the stat boxes shown above an inspect table.
func summaryStats(data any) []stat {
	switch d := data.(type) {
	case *reader.InspectStreamResponse:
		s := d.Summary
		return []stat{
			{"Frames", int64(s.Frames), highlightColor},
			{"Controls", int64(s.Controls), primaryColor},
			{"Empty", int64(s.Empty), warningColor},
			{"Malformed", int64(s.Malformed + s.Failures), errorColor},
			{"Padding B", s.PaddingSize, successColor},
		}
	case *reader.InspectTraceResponse:
		s := d.Summary
		return []stat{
			{"Frames", int64(s.Frames), highlightColor},
			{"Audio", int64(s.Audio), successColor},
			{"Video", int64(s.Video), primaryColor},
			{"Malformed", int64(s.Malformed), errorColor},
			{"Bytes", s.Bytes, warningColor},
		}
	default:
		return nil
	}
}

func renderStatBox(s stat) string {
	boxStyle := StatBoxStyle.BorderForeground(s.color)

	valueStr := StatValueStyle.Foreground(s.color).Render(fmt.Sprintf("%d", s.value))
	labelStr := StatLabelStyle.Render(s.label)

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

func renderStats(stats []stat) string {
	boxes := make([]string, 0, len(stats))
	for _, s := range stats {
		boxes = append(boxes, renderStatBox(s))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}
