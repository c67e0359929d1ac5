// Command xbeacon-log inspects XBeacon protocol log files.
//
// Log files (.xlog) are produced by xbeacon-gw when a protocol log path
// is configured. This tool renders them for humans, exports them for
// other tooling and summarizes what a capture contains.
//
// Usage:
//
//	xbeacon-log <command> [flags] <file.xlog>
//
// Commands:
//
//	view     Render events in human-readable form
//	export   Convert the log to JSONL or CSV
//	stats    Summarize the capture
//
// Examples:
//
//	# Everything, human-readable
//	xbeacon-log view gateway.xlog
//
//	# Only rejected or accepted frames after decode
//	xbeacon-log view -layer frame gateway.xlog
//
//	# Outbound commands only
//	xbeacon-log view -direction out -category command gateway.xlog
//
//	# Feed another tool
//	xbeacon-log export -format csv -o events.csv gateway.xlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xbeacon-protocol/xbeacon-go/cmd/xbeacon-log/commands"
)

const usage = `xbeacon-log - XBeacon protocol log inspector

Usage:
  xbeacon-log <command> [flags] <file.xlog>

Commands:
  view     Render events in human-readable form
  export   Convert the log to JSONL or CSV
  stats    Summarize the capture

Use "xbeacon-log <command> -help" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch cmd := os.Args[1]; cmd {
	case "view":
		err = runView(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "help", "-h", "-help", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s", cmd, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// logPath parses the flag set and returns the positional log file path.
func logPath(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return "", fmt.Errorf("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	layer := fs.String("layer", "", "Only this layer (radio, frame, engine)")
	direction := fs.String("direction", "", "Only this direction (in, out)")
	category := fs.String("category", "", "Only this category (advertisement, attribute, state, command, error)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xbeacon-log view [flags] <file.xlog>")
		fs.PrintDefaults()
	}

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}

	var filter commands.ViewFilter
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			return err
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			return err
		}
		filter.Category = &c
	}

	return commands.RunView(path, filter, os.Stdout)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xbeacon-log export [flags] <file.xlog>")
		fs.PrintDefaults()
	}

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunExport(path, *format, *output)
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: xbeacon-log stats <file.xlog>")
	}

	path, err := logPath(fs, args)
	if err != nil {
		return err
	}
	return commands.RunStats(path, os.Stdout)
}
