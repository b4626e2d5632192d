package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/fileops/dupefind/internal/cliutil"
	"github.com/fileops/dupefind/internal/correlate"
	"github.com/mitchellh/colorstring"
	"github.com/spf13/cobra"
)

type correlateOptions struct {
	matches               bool
	removes               bool
	adds                  bool
	color                 string
	summary               bool
	minSizeStr            string
	maxBufferStr          string
	maxMemoryStr          string
	verbose               bool
	noProgress            bool
	workers               int
	trustDeviceBoundaries bool
}

func newCorrelateCmd() *cobra.Command {
	opts := &correlateOptions{
		matches:      true,
		removes:      true,
		adds:         true,
		color:        "auto",
		summary:      true,
		minSizeStr:   "1",
		maxBufferStr: "1MiB",
		maxMemoryStr: "256MiB",
		workers:      runtime.NumCPU(),
	}

	cmd := &cobra.Command{
		Use:   "correlate <left> <right>",
		Short: "Compare two directory trees by content",
		Long:  "Classifies every content class under two roots as a match (present in both), a remove (only under left), or an add (only under right).",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCorrelate(args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.matches, "matches", opts.matches, "Show classes present under both roots")
	cmd.Flags().BoolVar(&opts.removes, "removes", opts.removes, "Show classes present only under the left root")
	cmd.Flags().BoolVar(&opts.adds, "adds", opts.adds, "Show classes present only under the right root")
	cmd.Flags().StringVar(&opts.color, "color", opts.color, "Colorize output: auto, on, or off")
	cmd.Flags().BoolVar(&opts.summary, "summary", opts.summary, "Print a per-status count/byte summary")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size")
	cmd.Flags().StringVar(&opts.maxBufferStr, "max-buffer", opts.maxBufferStr, "Per-file comparison buffer cap")
	cmd.Flags().StringVar(&opts.maxMemoryStr, "max-memory", opts.maxMemoryStr, "Total comparison memory budget per group")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log per-candidate scan and comparison errors")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	cmd.Flags().BoolVar(&opts.trustDeviceBoundaries, "trust-device-boundaries", false,
		"Assume devices have independent inode spaces. WARNING: Unsafe if the same filesystem is mounted at multiple paths (e.g., NFS)")

	return cmd
}

func runCorrelate(left, right string, opts *correlateOptions) error {
	minSize, err := cliutil.ParseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}
	maxBuffer, err := cliutil.ParseSize(opts.maxBufferStr)
	if err != nil {
		return fmt.Errorf("invalid --max-buffer: %w", err)
	}
	maxMemory, err := cliutil.ParseSize(opts.maxMemoryStr)
	if err != nil {
		return fmt.Errorf("invalid --max-memory: %w", err)
	}

	switch opts.color {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("invalid --color: %q (want auto, on, or off)", opts.color)
	}

	errs := make(chan error, 100)
	go drainErrors(errs)
	defer close(errs)

	result := correlate.Run(context.Background(), correlate.Options{
		Left:                  left,
		Right:                 right,
		MinSize:               minSize,
		MaxMemory:             maxMemory,
		MaxBuffer:             maxBuffer,
		Workers:               opts.workers,
		TrustDeviceBoundaries: opts.trustDeviceBoundaries,
		ShowProgress:          !opts.noProgress,
		ErrCh:                 errs,
	})

	printCorrelateResult(&result, opts)
	return nil
}

func correlateColorize(opts *correlateOptions) *colorstring.Colorize {
	disable := opts.color == "off"
	if opts.color == "auto" {
		fi, err := os.Stdout.Stat()
		disable = err != nil || (fi.Mode()&os.ModeCharDevice) == 0
	}
	return &colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: disable,
		Reset:   true,
	}
}

func printCorrelateResult(result *correlate.Result, opts *correlateOptions) {
	c := correlateColorize(opts)

	print := func(status correlate.Status, label, color string) {
		for _, class := range result.Filter(status) {
			for _, cand := range class.Candidates {
				line := fmt.Sprintf("%s %s", label, cand.Path)
				if color != "" {
					line = c.Color(fmt.Sprintf("[%s]%s[reset]", color, line))
				}
				fmt.Println(line)
			}
		}
	}

	if opts.removes {
		print(correlate.Remove, "-", "red")
	}
	if opts.adds {
		print(correlate.Add, "+", "green")
	}
	if opts.matches {
		print(correlate.Match, "=", "")
	}

	if opts.summary {
		fmt.Printf("\n%d matches (%s), %d removes (%s), %d adds (%s)\n",
			result.Count(correlate.Match), humanize.IBytes(uint64(result.ByteCount(correlate.Match))),
			result.Count(correlate.Remove), humanize.IBytes(uint64(result.ByteCount(correlate.Remove))),
			result.Count(correlate.Add), humanize.IBytes(uint64(result.ByteCount(correlate.Add))))
	}
}
