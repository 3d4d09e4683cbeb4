// Package cmd provides CLI commands for the framewrap binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// configFlag points at a framewrap.yaml file.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "config",
		Usage: "Path to framewrap.yaml (default: ./framewrap.yaml when present)",
	}
}

// logLevelFlag overrides log_level.
func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "info",
	}
}

// paddingFlags set the initial padding sizes.
func paddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "audio-padding",
			Usage: "Initial audio padding size in bytes",
		},
		&cli.IntFlag{
			Name:  "video-padding",
			Usage: "Initial video padding size in bytes",
		},
	}
}

// streamFlags are shared by encode and decode.
func streamFlags() []cli.Flag {
	flags := []cli.Flag{
		configFlag(),
		logLevelFlag(),
		&cli.StringFlag{
			Name:  "in",
			Usage: "Input record stream (default: stdin)",
			Value: "-",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Output record stream (default: stdout)",
			Value: "-",
		},
		&cli.StringFlag{
			Name:  "pipeline-id",
			Usage: "Pipeline ID (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print pipeline metrics to stderr on completion",
		},
	}
	flags = append(flags, paddingFlags()...)
	flags = append(flags, traceFlags()...)
	flags = append(flags, adapterFlags()...)
	return flags
}

// traceFlags configure frame tracing.
func traceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "Record the first frames of each direction to a trace dataset",
		},
		&cli.StringFlag{
			Name:  "trace-backend",
			Usage: "Trace storage backend: fs or s3",
			Value: "fs",
		},
		&cli.StringFlag{
			Name:  "trace-path",
			Usage: "Trace storage path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "trace-dataset",
			Usage: "Trace dataset ID",
		},
		&cli.IntFlag{
			Name:  "trace-limit",
			Usage: "Frames recorded per direction",
		},
		&cli.StringFlag{
			Name:  "trace-s3-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "trace-s3-endpoint",
			Usage: "Custom S3 endpoint URL (e.g. MinIO)",
		},
		&cli.BoolFlag{
			Name:  "trace-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
	}
}

// adapterFlags configure completion notifications.
func adapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Adapter endpoint URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.StringFlag{
			Name:  "adapter-stream",
			Usage: "Redis stream key events are also appended to",
		},
		&cli.StringFlag{
			Name:    "adapter-secret",
			Usage:   "Webhook HMAC-SHA256 signing secret",
			EnvVars: []string{"FRAMEWRAP_ADAPTER_SECRET"},
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt publish timeout",
			Value: 10 * time.Second,
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
			Value: 3,
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
	}
}
