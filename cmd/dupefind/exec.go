package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fileops/dupefind/internal/executor"
	"github.com/fileops/dupefind/internal/report"
	"github.com/spf13/cobra"
)

type execOptions struct {
	delete     bool
	coalesce   bool
	dryRun     bool
	verbose    bool
	noProgress bool
}

func newExecCmd() *cobra.Command {
	opts := &execOptions{}

	cmd := &cobra.Command{
		Use:   "exec <report-file>",
		Short: "Act on a report produced by find",
		Long:  "Reads a report file and either deletes non-preferred duplicates or coalesces them into hardlinks of the preferred path.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runExec(args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.delete, "delete", false, "Remove every non-preferred path in each group")
	cmd.Flags().BoolVar(&opts.coalesce, "coalesce", false, "Hardlink every other path in each group to the preferred one")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report what would happen without modifying the filesystem")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every action taken")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")

	return cmd
}

func runExec(reportPath string, opts *execOptions) error {
	if opts.delete == opts.coalesce {
		return fmt.Errorf("exactly one of --delete or --coalesce is required")
	}

	f, err := os.Open(reportPath)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer func() { _ = f.Close() }()

	rep, err := report.Parse(f)
	if err != nil {
		return fmt.Errorf("parse report: %w", err)
	}

	mode := executor.Delete
	if opts.coalesce {
		mode = executor.Coalesce
	}

	errs := make(chan error, 100)
	go drainErrors(errs)
	defer close(errs)

	saved := executor.Run(rep, executor.Options{
		Mode:         mode,
		DryRun:       opts.dryRun,
		Verbose:      opts.verbose,
		ShowProgress: !opts.noProgress,
		ErrCh:        errs,
	})

	verb := "reclaimed"
	if opts.dryRun {
		verb = "would reclaim"
	}
	fmt.Printf("%s %s\n", verb, humanize.IBytes(uint64(saved)))
	return nil
}
