// Package executor carries out the destructive half of a report: deleting
// every non-preferred path in a group, or coalescing every other path into
// a hardlink of the preferred one. Replaces the teacher's unconditional
// deduper (which only ever hardlinked) with a mode switch driven by the
// report's own marks.
package executor

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fileops/dupefind/internal/progress"
	"github.com/fileops/dupefind/internal/report"
)

// Mode selects the destructive action exec performs per group.
type Mode int

const (
	Delete Mode = iota
	Coalesce
)

// Options configures a Run.
type Options struct {
	Mode         Mode
	DryRun       bool
	Verbose      bool
	ShowProgress bool
	ErrCh        chan error
}

// ActionResult describes the outcome of acting on a single path.
type ActionResult struct {
	Path       string
	Skipped    bool
	DryRun     bool
	Reason     string
	BytesSaved int64
}

func (r ActionResult) String() string {
	switch {
	case r.Skipped:
		return fmt.Sprintf("skipped %s: %s", r.Path, r.Reason)
	case r.DryRun:
		return fmt.Sprintf("would reclaim %s by replacing %s (dry run)", humanize.IBytes(uint64(r.BytesSaved)), r.Path)
	default:
		return fmt.Sprintf("removed %s (%s reclaimed)", r.Path, humanize.IBytes(uint64(r.BytesSaved)))
	}
}

// stats tracks execution progress for the progress bar.
type stats struct {
	totalGroups     int
	processedGroups int
	skippedGroups   int
	savedBytes      int64
	startTime       time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Processed %d/%d groups (%d skipped as ambiguous), reclaimed %s in %.1fs",
		s.processedGroups, s.totalGroups, s.skippedGroups,
		humanize.IBytes(uint64(s.savedBytes)), time.Since(s.startTime).Seconds())
}

// Run executes r's groups according to opts.Mode and returns the bytes
// reclaimed (under dry-run, the bytes that would be reclaimed). Every
// destructive failure is reported on
// opts.ErrCh and the group continues with its remaining paths.
func Run(r report.Report, opts Options) int64 {
	bar := progress.New(opts.ShowProgress, -1)
	st := &stats{totalGroups: len(r.Groups), startTime: time.Now()}
	bar.Describe(st)

	for _, g := range r.Groups {
		var results []ActionResult
		switch opts.Mode {
		case Delete:
			results = runDelete(g, opts, st)
		case Coalesce:
			results = runCoalesce(g, opts, st)
		}

		if opts.Verbose {
			for _, res := range results {
				fmt.Fprintf(os.Stderr, "\r\033[K")
				fmt.Fprintln(os.Stdout, res)
			}
		}

		st.processedGroups++
		bar.Describe(st)
	}

	bar.Finish(st)
	return st.savedBytes
}

// runDelete removes every non-preferred path in g. A group with zero or
// more than one preferred entry is left untouched and reported, since a
// destructive delete is never applied to an ambiguous group.
func runDelete(g report.Group, opts Options, st *stats) []ActionResult {
	preferred := countMark(g, report.Preferred)
	if preferred != 1 {
		st.skippedGroups++
		return []ActionResult{{Skipped: true, Reason: fmt.Sprintf("group has %d preferred paths, want exactly 1", preferred)}}
	}

	var results []ActionResult
	for _, e := range g.Entries {
		if e.Mark == report.Preferred {
			continue
		}
		if opts.DryRun {
			results = append(results, ActionResult{Path: e.Path, DryRun: true, BytesSaved: g.Size})
			st.savedBytes += g.Size
			continue
		}
		if err := os.Remove(e.Path); err != nil {
			sendError(opts.ErrCh, fmt.Errorf("delete %s: %w", e.Path, err))
			results = append(results, ActionResult{Path: e.Path, Skipped: true, Reason: err.Error()})
			continue
		}
		results = append(results, ActionResult{Path: e.Path, BytesSaved: g.Size})
		st.savedBytes += g.Size
	}
	return results
}

// runCoalesce keeps a single source path and replaces every other path in
// g with a hardlink to it.
func runCoalesce(g report.Group, opts Options, st *stats) []ActionResult {
	source := selectSource(g)

	var results []ActionResult
	for _, e := range g.Entries {
		if e.Path == source {
			continue
		}
		if opts.DryRun {
			results = append(results, ActionResult{Path: e.Path, DryRun: true, BytesSaved: g.Size})
			st.savedBytes += g.Size
			continue
		}
		if err := createHardlink(source, e.Path); err != nil {
			sendError(opts.ErrCh, fmt.Errorf("coalesce %s into %s: %w", e.Path, source, err))
			results = append(results, ActionResult{Path: e.Path, Skipped: true, Reason: err.Error()})
			continue
		}
		results = append(results, ActionResult{Path: e.Path, BytesSaved: g.Size})
		st.savedBytes += g.Size
	}
	return results
}

// selectSource picks the preferred path if there's exactly one, otherwise
// the lexicographically-first path, mirroring the teacher's
// selectSource tie-break.
func selectSource(g report.Group) string {
	if countMark(g, report.Preferred) == 1 {
		for _, e := range g.Entries {
			if e.Mark == report.Preferred {
				return e.Path
			}
		}
	}
	paths := make([]string, len(g.Entries))
	for i, e := range g.Entries {
		paths[i] = e.Path
	}
	sort.Strings(paths)
	return paths[0]
}

func countMark(g report.Group, m report.Mark) int {
	n := 0
	for _, e := range g.Entries {
		if e.Mark == m {
			n++
		}
	}
	return n
}

func sendError(ch chan error, err error) {
	if ch != nil {
		ch <- err
	}
}
