package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/fileops/dupefind/internal/alias"
	"github.com/fileops/dupefind/internal/bucketer"
	"github.com/fileops/dupefind/internal/cliutil"
	"github.com/fileops/dupefind/internal/criteria"
	"github.com/fileops/dupefind/internal/emitter"
	"github.com/fileops/dupefind/internal/partitioner"
	"github.com/fileops/dupefind/internal/report"
	"github.com/fileops/dupefind/internal/scanner"
	"github.com/spf13/cobra"
)

const preferHelp = `--prefer accepts a comma-separated list of phrases, evaluated left to
right against each duplicate group until one candidate remains:

  <property> <operator> <argument> [ignoring case]
  <adjective> <property> [ignoring case]

properties:   path, name, directory, directory name, extension,
              mtime / modification time, index
operators:    is, is not, contains, not contains, starts with,
              not starts with, ends with, not ends with,
              matches re / matches regex / matches regexp (and negations)
adjectives:   shorter, longer, shallower, deeper, earlier, lower, later, higher

Examples:
  --prefer "shorter path"
  --prefer "directory is \"/archive/\", earlier mtime"
`

type findOptions struct {
	symlinks              bool
	zeroLength            bool
	aliasDetection        bool
	recursive             bool
	onlyMixedRoots        bool
	minSizeStr            string
	maxBufferStr          string
	maxMemoryStr          string
	excludes              []string
	prefer                string
	preferHelp            bool
	verbose               bool
	noProgress            bool
	workers               int
	trustDeviceBoundaries bool
	output                string
}

func newFindCmd() *cobra.Command {
	opts := &findOptions{
		aliasDetection: true,
		recursive:      true,
		minSizeStr:     "1",
		maxBufferStr:   "1MiB",
		maxMemoryStr:   "256MiB",
		workers:        runtime.NumCPU(),
	}

	cmd := &cobra.Command{
		Use:   "find [paths...]",
		Short: "Find duplicate files and write a report",
		Long:  "Scans one or more paths for byte-identical files and writes a report describing each duplicate group.",
		RunE: func(_ *cobra.Command, args []string) error {
			if opts.preferHelp {
				fmt.Print(preferHelp)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("find requires at least one path")
			}
			return runFind(args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.symlinks, "symlinks", false, "Include symlinks as candidates")
	cmd.Flags().BoolVar(&opts.zeroLength, "zero-length", false, "Include zero-length files (equivalent to --min-size 0)")
	cmd.Flags().BoolVar(&opts.aliasDetection, "alias-detection", opts.aliasDetection, "Fold hardlinks (and followed symlinks) into one logical candidate")
	cmd.Flags().BoolVar(&opts.recursive, "recursive", opts.recursive, "Expand directory arguments; when false, only literally-named files are candidates")
	cmd.Flags().BoolVar(&opts.onlyMixedRoots, "only-mixed-roots", false, "Discard groups where every candidate came from the same root argument")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	cmd.Flags().StringVar(&opts.maxBufferStr, "max-buffer", opts.maxBufferStr, "Per-file comparison buffer cap")
	cmd.Flags().StringVar(&opts.maxMemoryStr, "max-memory", opts.maxMemoryStr, "Total comparison memory budget per group")
	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Glob patterns to exclude by basename")
	cmd.Flags().StringVar(&opts.prefer, "prefer", "", "Preference criteria used to mark the preferred path in each group")
	cmd.Flags().BoolVar(&opts.preferHelp, "prefer-help", false, "Print the --prefer criteria language reference and exit")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log per-candidate scan and comparison errors")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	cmd.Flags().BoolVar(&opts.trustDeviceBoundaries, "trust-device-boundaries", false,
		"Assume devices have independent inode spaces. WARNING: Unsafe if the same filesystem is mounted at multiple paths (e.g., NFS)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Report output path (default stdout)")

	return cmd
}

func runFind(paths []string, opts *findOptions) error {
	minSize, err := cliutil.ParseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}
	if opts.zeroLength {
		minSize = 0
	}

	maxBuffer, err := cliutil.ParseSize(opts.maxBufferStr)
	if err != nil {
		return fmt.Errorf("invalid --max-buffer: %w", err)
	}
	maxMemory, err := cliutil.ParseSize(opts.maxMemoryStr)
	if err != nil {
		return fmt.Errorf("invalid --max-memory: %w", err)
	}

	if err := cliutil.ValidateGlobPatterns(opts.excludes); err != nil {
		return fmt.Errorf("invalid --exclude: %w", err)
	}

	var program criteria.Program
	if opts.prefer != "" {
		program, err = criteria.Parse(opts.prefer)
		if err != nil {
			return fmt.Errorf("invalid --prefer: %w", err)
		}
	}

	showProgress := !opts.noProgress
	errs := make(chan error, 100)
	go drainErrors(errs)
	defer close(errs)

	ctx := context.Background()

	followSymlinks := opts.symlinks && opts.aliasDetection
	s := scanner.New(paths, minSize, opts.excludes, opts.workers, opts.symlinks, followSymlinks, showProgress, errs)
	s.SetRecursive(opts.recursive)
	candidates := s.Run(ctx)
	if len(candidates) == 0 {
		return nil
	}

	if opts.aliasDetection {
		candidates = alias.Fold(candidates, opts.trustDeviceBoundaries)
	}

	buckets := bucketer.Group(candidates, minSize, false)
	p := partitioner.New(maxMemory, maxBuffer, opts.workers, showProgress, errs)
	groups := p.Run(ctx, buckets, false)

	rep := emitter.Build(groups, program, opts.onlyMixedRoots)

	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("open --output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	return report.Write(out, rep)
}
