// Package scanner provides parallel filesystem scanning for duplicate detection.
//
// # Architecture Overview
//
// The scanner uses a concurrent fan-out/fan-in architecture to efficiently
// traverse directory trees while respecting system resource limits.
//
// # Concurrency Model
//
// The scanner employs three concurrent components:
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by semaphore (walkerSem)
//     - Each walker: acquires semaphore → lists directory → releases semaphore → spawns child walkers
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains resultCh into a slice
//     - Provides the aggregation point for all walker outputs
//     - Runs until resultCh is closed
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Initializes channels and spawns initial walkers
//     - Waits for all walkers (walkerWg.Wait)
//     - Closes resultCh to signal collector
//     - Waits for collector (collectorWg.Wait)
//
// # Synchronization Primitives
//
//	┌─────────────────┬────────────────────────────────────────────────┐
//	│ Primitive       │ Purpose                                        │
//	├─────────────────┼────────────────────────────────────────────────┤
//	│ walkerSem       │ Limits concurrent directory reads (backpressure)│
//	│ walkerWg        │ Tracks active walker goroutines                │
//	│ collectorWg     │ Signals collector goroutine completion         │
//	│ resultCh        │ Buffered channel for matched files (fan-in)    │
//	│ atomic counters │ Lock-free stats updates from any goroutine     │
//	└─────────────────┴────────────────────────────────────────────────┘
//
// # Data Flow
//
//	Run() starts
//	    │
//	    ├──► spawn collector goroutine (reads resultCh)
//	    │
//	    ├──► for each root path:
//	    │        ├──► root is a regular file → stamp candidate directly
//	    │        └──► root is a directory → walkDirectory(path, rootIndex)
//	    │                 │
//	    │                 ├──► acquire semaphore (blocks if at limit)
//	    │                 ├──► listDirectory() → files, subdirs
//	    │                 ├──► release semaphore
//	    │                 ├──► filter files → send matches to resultCh
//	    │                 └──► for each subdir: walkDirectory(subdir, rootIndex)  [recursive fan-out]
//	    │
//	    ├──► walkerWg.Wait() [all directories processed]
//	    ├──► close(resultCh) [signal collector to finish]
//	    ├──► collectorWg.Wait() [collector drained channel]
//	    │
//	    └──► return results
//
// # Why This Design?
//
//   - Semaphore controls concurrent directory reads
//   - Atomic counters eliminate lock contention for stats updates
//   - Buffered channel (1000) smooths producer/consumer rate differences
//   - Single collector avoids slice synchronization complexity
//   - Recursive spawning naturally handles arbitrary directory depth
package scanner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fileops/dupefind/internal/candidate"
	"github.com/fileops/dupefind/internal/progress"
)

// Scanner discovers files matching filter criteria using parallel directory traversal.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	paths           []string   // Root paths to scan, in argument order
	minSize         int64      // Minimum file size filter (bytes)
	excludes        []string   // Glob patterns for filename exclusion
	workers         int        // Max concurrent directory reads
	includeSymlinks bool       // Whether symlinks are scanned at all
	followSymlinks  bool       // Whether a scanned symlink's identity resolves to its target
	noRecurse       bool       // When set, a directory root argument contributes no candidates
	showProgress    bool       // Whether to display progress bar
	errCh           chan error // Non-fatal errors (permission denied, etc.)

	// Runtime (initialized in Run)
	walkerWg  sync.WaitGroup            // Tracks in-flight walker goroutines
	walkerSem candidate.Semaphore       // Limits concurrent directory reads
	resultCh  chan *candidate.Candidate // Fan-in channel: walkers → collector
	stats     *stats                    // Atomic counters for progress tracking
	bar       *progress.Bar             // Progress display (thread-safe)
	cancelled atomic.Bool               // Set once ctx is done, checked at walker entry
}

// New creates a Scanner for discovering files.
func New(paths []string, minSize int64, excludes []string, workers int,
	includeSymlinks, followSymlinks, showProgress bool, errCh chan error,
) *Scanner {
	return &Scanner{
		paths:           paths,
		minSize:         minSize,
		excludes:        excludes,
		workers:         workers,
		includeSymlinks: includeSymlinks,
		followSymlinks:  followSymlinks,
		showProgress:    showProgress,
		errCh:           errCh,
	}
}

// SetRecursive controls whether a directory root argument is expanded.
// Recursive expansion is the default; calling SetRecursive(false) makes
// directory roots contribute no candidates at all, leaving only the root
// arguments that name files directly.
func (s *Scanner) SetRecursive(recursive bool) {
	s.noRecurse = !recursive
}

// stats tracks scanning progress using atomic counters for lock-free updates.
//
// Atomic counters allow multiple walker goroutines to update stats concurrently
// without mutex contention. Each walker calls Add() which is guaranteed atomic.
// The collector (String method) calls Load() to read consistent snapshots.
//
// Trade-off: Individual reads may not see a perfectly consistent view across
// all four counters (scannedFiles might be newer than matchedFiles), but this
// is acceptable for progress display where exactness isn't required.
type stats struct {
	scannedFiles atomic.Int64 // Total files discovered (all walkers)
	matchedFiles atomic.Int64 // Files passing size/exclude filters
	scannedBytes atomic.Int64 // Total bytes across all scanned files
	matchedBytes atomic.Int64 // Bytes of matched files only
	startTime    time.Time    // For elapsed time calculation
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d (%s), matched %d files (%s) in %.1fs",
		s.scannedFiles.Load(), humanize.IBytes(uint64(s.scannedBytes.Load())),
		s.matchedFiles.Load(), humanize.IBytes(uint64(s.matchedBytes.Load())),
		time.Since(s.startTime).Seconds())
}

// Run executes the scan and returns matching candidates.
//
// Coordination sequence:
//  1. Start collector goroutine (drains resultCh → results slice)
//  2. Spawn walker for each root path (fan-out begins)
//  3. Wait for all walkers to complete (walkerWg.Wait)
//  4. Close resultCh to signal collector to finish
//  5. Wait for collector to drain remaining items (collectorWg.Wait)
//  6. Return aggregated results
//
// The buffered channel (1000) prevents walkers from blocking on slow collection,
// while the WaitGroup ensures we don't close the channel prematurely. ctx is
// checked at each walker's entry point; once cancelled, in-flight walkers finish
// without spawning further children.
func (s *Scanner) Run(ctx context.Context) []*candidate.Candidate {
	// Initialize runtime fields
	s.walkerSem = candidate.NewSemaphore(s.workers)
	s.bar = progress.New(s.showProgress, -1)
	s.stats = &stats{startTime: time.Now()}
	s.bar.Describe(s.stats) // Render progress bar immediately
	s.resultCh = make(chan *candidate.Candidate, 1000) // Buffer smooths producer/consumer rates

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.cancelled.Store(true)
		case <-done:
		}
	}()

	// Collector goroutine: single consumer aggregates all walker outputs.
	// Runs until resultCh is closed, then signals completion via collectorWg.
	var results []*candidate.Candidate
	collectorWg := sync.WaitGroup{}

	collectorWg.Add(1)
	go func() {
		for r := range s.resultCh {
			results = append(results, r)
		}
		collectorWg.Done()
	}()

	// Spawn initial walkers for each root path (fan-out entry point).
	// RootIndex is the 1-based position of the argument, whether it names
	// a file or a directory.
	for i, p := range s.paths {
		rootIndex := i + 1
		absPath, err := filepath.Abs(p)
		if err != nil {
			s.sendError(err)
			continue
		}

		info, err := os.Lstat(absPath)
		if err != nil {
			s.sendError(err)
			continue
		}

		if !info.IsDir() {
			s.processRootFile(absPath, info, rootIndex)
			continue
		}

		if s.noRecurse {
			continue
		}

		s.walkDirectory(absPath, rootIndex)
	}

	// Shutdown sequence: wait for producers, then signal consumer, then wait for consumer
	s.walkerWg.Wait()  // All walkers done
	close(s.resultCh)  // Signal collector: no more items coming
	collectorWg.Wait() // Collector drained channel

	s.bar.Finish(s.stats)
	return results
}

// processRootFile handles a root argument that names a file (or symlink to
// one) directly, rather than a directory. It is stamped with the root
// argument's own index, never the index of an enclosing walk.
func (s *Scanner) processRootFile(path string, lstatInfo os.FileInfo, rootIndex int) {
	if lstatInfo.Mode()&os.ModeSymlink != 0 {
		if !s.includeSymlinks {
			return
		}
		target, err := os.Stat(path)
		if err != nil {
			s.sendError(err)
			return
		}
		if !target.Mode().IsRegular() {
			return
		}
		ident := lstatInfo
		if s.followSymlinks {
			ident = target
		}
		s.emit(newCandidate(path, target, ident, rootIndex))
		return
	}

	if !lstatInfo.Mode().IsRegular() {
		return
	}
	s.emit(newCandidate(path, lstatInfo, lstatInfo, rootIndex))
}

// emit applies the size/exclude filters and, on match, updates stats and
// sends the candidate to resultCh.
func (s *Scanner) emit(c *candidate.Candidate) {
	s.stats.scannedFiles.Add(1)
	s.stats.scannedBytes.Add(c.Size)
	if c.Size >= s.minSize && !s.shouldExclude(c.Path) {
		s.resultCh <- c
		s.stats.matchedFiles.Add(1)
		s.stats.matchedBytes.Add(c.Size)
	}
}

// walkDirectory spawns a goroutine to process one directory and recursively spawn children.
//
// Semaphore pattern:
//   - walkerWg.Add(1) BEFORE goroutine spawn (prevents race with Wait)
//   - acquire semaphore at goroutine start (blocks if at concurrency limit)
//   - release semaphore AFTER listing but BEFORE spawning children
//     (allows children to acquire while parent processes files)
//
// This creates a "breadth-controlled depth-first" traversal where the semaphore
// limits how many directories are being read simultaneously, but doesn't limit
// the total number of pending goroutines (which is bounded by directory count).
// rootIndex is carried down to every descendant so each candidate is stamped
// with the root argument that originally introduced its tree.
func (s *Scanner) walkDirectory(dir string, rootIndex int) {
	s.walkerWg.Add(1) // Increment BEFORE spawn to prevent race with Wait()
	go func() {
		defer s.walkerWg.Done()

		if s.cancelled.Load() {
			return
		}

		// Semaphore limits concurrent directory reads
		s.walkerSem.Acquire()
		files, subdirs, err := s.listDirectory(dir, rootIndex)
		s.walkerSem.Release()
		if err != nil {
			s.sendError(err)
			return
		}

		for _, f := range files {
			s.emit(f)
		}
		s.bar.Describe(s.stats)

		if s.cancelled.Load() {
			return
		}

		// Recursive fan-out: spawn walker for each subdirectory
		for _, sub := range subdirs {
			s.walkDirectory(sub, rootIndex)
		}
	}()
}

// listDirectory reads a single directory, returning files and subdirectories.
//
// Uses batched ReadDir (1000 entries per batch) to handle large directories efficiently.
// This is the ONLY place where directory I/O occurs - protected by walkerSem.
//
// Filtering:
//   - Directories → subdirs (for recursive walking)
//   - Regular files → files (with metadata via Info())
//   - Symlinks → files, if s.includeSymlinks; identity resolved per s.followSymlinks
//   - Devices, sockets, etc. → skipped
func (s *Scanner) listDirectory(dirPath string, rootIndex int) (files []*candidate.Candidate, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	// Batch reading: ReadDir(n) returns up to n entries at a time.
	// This bounds memory usage when listing directories with millions of files.
	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub := s.processEntry(dirPath, entry, rootIndex)
			if f != nil {
				files = append(files, f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry processes a single directory entry, returning a candidate or subdirectory path.
// Returns (nil, "") for entries that should be skipped (devices, excluded items,
// unfollowable symlinks when symlinks aren't included).
func (s *Scanner) processEntry(dirPath string, entry os.DirEntry, rootIndex int) (file *candidate.Candidate, subdir string) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		if s.shouldExclude(fullPath) {
			return nil, ""
		}
		return nil, fullPath
	}

	if entry.Type()&os.ModeSymlink != 0 {
		if !s.includeSymlinks {
			return nil, ""
		}
		lstatInfo, err := entry.Info()
		if err != nil {
			return nil, ""
		}
		target, err := os.Stat(fullPath)
		if err != nil {
			return nil, "" // broken symlink, race condition, or permission error
		}
		if !target.Mode().IsRegular() {
			return nil, ""
		}
		ident := lstatInfo
		if s.followSymlinks {
			ident = target
		}
		return newCandidate(fullPath, target, ident, rootIndex), ""
	}

	// Skip non-regular files (devices, sockets, etc.)
	if !entry.Type().IsRegular() {
		return nil, ""
	}

	// Info() may trigger additional stat call (platform-dependent)
	info, err := entry.Info()
	if err != nil {
		return nil, "" // Skip files we can't stat (race condition, permissions)
	}

	return newCandidate(fullPath, info, info, rootIndex), ""
}

// sendError sends an error to the errors channel if it's not nil.
func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}

// shouldExclude checks if a path matches any glob exclude pattern.
func (s *Scanner) shouldExclude(path string) bool {
	if len(s.excludes) == 0 {
		return false
	}
	base := filepath.Base(path)
	for _, pattern := range s.excludes {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
