package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/framewrap/cli/reader"
	"github.com/pithecene-io/framewrap/cli/render"
	"github.com/pithecene-io/framewrap/cli/tui"
	"github.com/pithecene-io/framewrap/iox"
	"github.com/pithecene-io/framewrap/ipc"
	"github.com/pithecene-io/framewrap/trace"
	"github.com/pithecene-io/framewrap/types"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect is read-only: it never transforms or writes frames.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect envelopes in a record stream or frames in a trace dataset",
		Subcommands: []*cli.Command{
			inspectStreamCommand(),
			inspectTraceCommand(),
		},
	}
}

func inspectStreamCommand() *cli.Command {
	flags := append(TUIReadOnlyFlags(),
		&cli.StringFlag{
			Name:  "in",
			Usage: "Record stream to inspect (default: stdin)",
			Value: iox.StdioPath,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum frames listed (0 lists all; the summary always covers the stream)",
		},
	)
	return &cli.Command{
		Name:      "stream",
		Usage:     "Validate the envelope layout of every frame record in a stream",
		ArgsUsage: " ",
		Flags:     flags,
		Action:    inspectStreamAction,
	}
}

func inspectStreamAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must be >= 0", exitConfigError)
	}

	in, err := iox.OpenInput(c.String("in"))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardClose(in)

	resp, err := reader.ReadStream(c.Context, ipc.NewStreamReader(in), c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect failed: %v", err), exitStreamError)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectStream, resp)
	}
	return r.RenderReport(render.Report{Summary: resp.Summary, Rows: resp.Frames}, resp)
}

func inspectTraceCommand() *cli.Command {
	flags := append(TUIReadOnlyFlags(), configFlag(),
		&cli.StringFlag{
			Name:  "pipeline-id",
			Usage: "Only frames of this pipeline",
		},
		&cli.StringFlag{
			Name:  "direction",
			Usage: "Only frames of this direction: encode or decode",
		},
	)
	for _, f := range traceFlags() {
		// Tracing is always on for reads.
		if f.Names()[0] == "trace" || f.Names()[0] == "trace-limit" {
			continue
		}
		flags = append(flags, f)
	}
	return &cli.Command{
		Name:      "trace",
		Usage:     "List frames recorded by --trace",
		ArgsUsage: " ",
		Flags:     flags,
		Action:    inspectTraceAction,
	}
}

func inspectTraceAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	direction := c.String("direction")
	if direction != "" {
		if _, err := types.ParseDirection(direction); err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	tc, err := parseTraceConfig(c, cfg)
	if err != nil {
		return err
	}
	tc.enabled = true
	if err := validateTraceChoice(tc); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ds, err := openTraceDataset(c.Context, tc)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open trace dataset: %v", err), exitConfigError)
	}

	resp, err := reader.ReadTrace(c.Context, ds, c.String("pipeline-id"), direction)
	if errors.Is(err, trace.ErrNoFramesFound) {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("inspect failed: %v", err), exitStreamError)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectTrace, resp)
	}
	return r.RenderReport(render.Report{Summary: resp.Summary, Rows: resp.Frames}, resp)
}
