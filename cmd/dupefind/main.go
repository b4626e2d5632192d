package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "dupefind",
		Short:   "Find, correlate, and act on duplicate files",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newFindCmd())
	root.AddCommand(newCorrelateCmd())
	root.AddCommand(newExecCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears the progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}
