// Package partitioner implements the memory-bounded, multi-way
// byte-equality partitioner: given a same-size bucket of candidates, it
// produces the exact equivalence classes under byte-for-byte equality,
// reading each candidate's bytes at most once and never materializing more
// than a configured memory budget.
//
// REDESIGN from the teacher's verifier package: the teacher proves
// duplicates via progressive SHA-256 hashing over head/tail/chunk probes,
// backed by a persistent hash cache. This package keeps the teacher's
// shape — worker pool, semaphore-bounded concurrent I/O, progress
// reporting, continue-on-error semantics — but the comparison primitive is
// direct byte-buffer equality, never a hash.
package partitioner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fileops/dupefind/internal/bucketer"
	"github.com/fileops/dupefind/internal/candidate"
	"github.com/fileops/dupefind/internal/progress"
)

// minBuffer is the smallest per-file read buffer the partitioner will ever
// use; below this, I/O overhead dominates and the wave fallback no longer
// has anywhere left to shrink to.
const minBuffer = 4096

// OpenError reports that a candidate could not be opened for comparison.
// The candidate is dropped from its group; the rest continue.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Path, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// ReadError reports a read failure (including a short read that contradicts
// the candidate's recorded size) during comparison. The candidate is
// ejected from its sub-group; comparison of the remaining members continues.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Path, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// FatalError reports that the configured buffer budget can't even supply
// the minimum 4096-byte buffer. Only the current bucket is abandoned; the
// caller proceeds to the next.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("partitioner: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Partitioner partitions same-size candidate buckets into byte-equality
// groups under a memory budget.
type Partitioner struct {
	maxMemory    int64      // M: total buffer budget per bucket, in bytes
	maxBuffer    int64      // B: per-file buffer cap, in bytes
	workers      int        // max concurrent reads during a round/wave
	showProgress bool
	errCh        chan error

	stats *stats
	bar   *progress.Bar
}

// New creates a Partitioner bounded by maxMemory (M) and maxBuffer (B),
// reading at most workers files concurrently within any one sub-group.
func New(maxMemory, maxBuffer int64, workers int, showProgress bool, errCh chan error) *Partitioner {
	if workers < 1 {
		workers = 1
	}
	return &Partitioner{
		maxMemory:    maxMemory,
		maxBuffer:    maxBuffer,
		workers:      workers,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

type stats struct {
	bucketsDone atomic.Int64
	groupsFound atomic.Int64
	bytesRead   atomic.Int64
	candidates  atomic.Int64
	startTime   time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Compared %d candidates (%s read), found %d groups in %.1fs",
		s.candidates.Load(), humanize.IBytes(uint64(s.bytesRead.Load())),
		s.groupsFound.Load(), time.Since(s.startTime).Seconds())
}

// Run partitions every bucket (already size-bucketed and sorted
// largest-first by bucketer.Group) and returns every emitted group across
// all buckets, preserving the buckets' descending-size order.
func (p *Partitioner) Run(ctx context.Context, buckets []bucketer.Bucket, allowSingletons bool) candidate.DuplicateGroups {
	p.stats = &stats{startTime: time.Now()}
	p.bar = progress.New(p.showProgress, -1)
	p.bar.Describe(p.stats)

	var groups []candidate.DuplicateGroup
	for _, b := range buckets {
		if ctx.Err() != nil {
			break
		}
		p.stats.candidates.Add(int64(len(b.Candidates)))
		found := p.Partition(ctx, b.Size, b.Candidates, allowSingletons)
		groups = append(groups, found...)
		p.stats.groupsFound.Add(int64(len(found)))
		p.stats.bucketsDone.Add(1)
		p.bar.Describe(p.stats)
	}
	p.bar.Finish(p.stats)

	// Descending by size is already bucketer's order; within a bucket,
	// sort groups by primary path for deterministic output. The collection
	// sorts by its key on construction, so the key encodes both.
	return candidate.NewOrdered(groups, func(dg candidate.DuplicateGroup) string {
		first := dg.First().First()
		return fmt.Sprintf("%019d\x00%s", math.MaxInt64-first.Size, first.Path)
	})
}

// Partition partitions one same-size bucket of candidates into byte-equality
// groups. allowSingletons keeps size-1 classes (used by correlate mode,
// where a content-class present in only one tree is still reportable).
func (p *Partitioner) Partition(ctx context.Context, size int64, candidates []*candidate.Candidate, allowSingletons bool) []candidate.DuplicateGroup {
	if len(candidates) == 0 {
		return nil
	}
	if p.maxBuffer < minBuffer {
		p.sendError(&FatalError{Err: fmt.Errorf("max-buffer %d below minimum %d", p.maxBuffer, minBuffer)})
		return nil
	}
	if len(candidates) == 1 {
		if allowSingletons {
			return []candidate.DuplicateGroup{singletonGroup(candidates[0])}
		}
		return nil
	}

	if int64(len(candidates)) > p.maxMemory/minBuffer {
		return p.partitionWave(ctx, size, candidates, allowSingletons)
	}
	return p.partitionRounds(ctx, size, candidates, allowSingletons)
}

// bufferSize computes b = min(B, max(4096, M/n)), the per-file buffer for a
// round comparing n files concurrently.
func bufferSize(maxMemory, maxBuffer int64, n int) int64 {
	if n < 1 {
		n = 1
	}
	b := maxMemory / int64(n)
	if b < minBuffer {
		b = minBuffer
	}
	if b > maxBuffer {
		b = maxBuffer
	}
	return b
}

type activeFile struct {
	c    *candidate.Candidate
	file *os.File
}

func (p *Partitioner) openAll(candidates []*candidate.Candidate) []*activeFile {
	actives := make([]*activeFile, 0, len(candidates))
	for _, c := range candidates {
		f, err := os.Open(c.Path)
		if err != nil {
			p.sendError(&OpenError{Path: c.Path, Err: err})
			continue
		}
		actives = append(actives, &activeFile{c: c, file: f})
	}
	return actives
}

func closeAll(actives []*activeFile) {
	for _, af := range actives {
		_ = af.file.Close()
	}
}

// partitionRounds implements the synchronized-round algorithm (spec.md
// §4.3 step 3): every still-undecided sub-group advances one buffer at a
// time, splitting on the bytes just read, until every surviving sub-group
// has consumed the common size.
func (p *Partitioner) partitionRounds(ctx context.Context, size int64, candidates []*candidate.Candidate, allowSingletons bool) []candidate.DuplicateGroup {
	actives := p.openAll(candidates)
	defer closeAll(actives)
	if len(actives) < 2 {
		if len(actives) == 1 && allowSingletons {
			return []candidate.DuplicateGroup{singletonGroup(actives[0].c)}
		}
		return nil
	}

	var finalized []candidate.DuplicateGroup
	if size == 0 {
		// Nothing to read: zero-byte files of equal size are vacuously
		// equal, so the whole bucket is already one finalized group.
		return []candidate.DuplicateGroup{groupOf(actives)}
	}

	b := bufferSize(p.maxMemory, p.maxBuffer, len(actives))
	subgroups := [][]*activeFile{actives}
	offset := int64(0)

	for len(subgroups) > 0 && offset < size {
		if ctx.Err() != nil {
			return finalized
		}

		readLen := b
		if size-offset < readLen {
			readLen = size - offset
		}

		var next [][]*activeFile
		for _, sg := range subgroups {
			for _, part := range p.compareRound(sg, readLen) {
				p.emitOrContinue(&finalized, &next, part, offset+readLen >= size, allowSingletons)
			}
		}
		offset += readLen
		subgroups = next
		p.stats.bytesRead.Add(readLen * int64(len(actives)))
	}

	return finalized
}

// emitOrContinue finalizes part if it is done (has consumed the full
// common size) or if it has shrunk to a singleton mid-round (already
// distinguished from its former siblings, so there is nothing further to
// compare it against); otherwise it carries over to the next round.
func (p *Partitioner) emitOrContinue(finalized *[]candidate.DuplicateGroup, next *[][]*activeFile, part []*activeFile, done, allowSingletons bool) {
	if len(part) < 2 {
		if len(part) == 1 && allowSingletons {
			*finalized = append(*finalized, singletonGroup(part[0].c))
		}
		return
	}
	if done {
		*finalized = append(*finalized, groupOf(part))
		return
	}
	*next = append(*next, part)
}

// compareRound reads readLen bytes from every member of sg concurrently
// (bounded by p.workers), ejecting any member whose read fails, and
// partitions the survivors by the bytes just read. Partition order is
// first-seen, for determinism independent of goroutine scheduling.
func (p *Partitioner) compareRound(sg []*activeFile, readLen int64) [][]*activeFile {
	type outcome struct {
		af  *activeFile
		buf []byte
	}
	results := make([]*outcome, len(sg))

	var wg sync.WaitGroup
	sem := candidate.NewSemaphore(p.workers)
	for i, af := range sg {
		wg.Add(1)
		go func(i int, af *activeFile) {
			defer wg.Done()
			sem.Acquire()
			defer sem.Release()

			buf := make([]byte, readLen)
			if _, err := io.ReadFull(af.file, buf); err != nil {
				p.sendError(&ReadError{Path: af.c.Path, Err: err})
				return
			}
			results[i] = &outcome{af: af, buf: buf}
		}(i, af)
	}
	wg.Wait()

	order := make([]string, 0, len(sg))
	buckets := make(map[string][]*activeFile, len(sg))
	for _, r := range results {
		if r == nil {
			continue // ejected on read error
		}
		key := string(r.buf)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], r.af)
	}

	parts := make([][]*activeFile, 0, len(order))
	for _, k := range order {
		parts = append(parts, buckets[k])
	}
	return parts
}

// partitionWave implements the wave strategy (spec.md §4.3 step 5) for
// buckets too large for every member to hold a buffer simultaneously: a
// reference candidate is streamed once, compared against the rest in
// lockstep chunks, and the bucket splits into "equal to reference" (emitted
// directly, since byte equality is transitive) and "not equal" (recursed).
func (p *Partitioner) partitionWave(ctx context.Context, size int64, candidates []*candidate.Candidate, allowSingletons bool) []candidate.DuplicateGroup {
	ref := candidates[0]
	rest := candidates[1:]

	refFile, err := os.Open(ref.Path)
	if err != nil {
		p.sendError(&OpenError{Path: ref.Path, Err: err})
		return p.Partition(ctx, size, rest, allowSingletons)
	}
	defer func() { _ = refFile.Close() }()

	type member struct {
		c     *candidate.Candidate
		file  *os.File
		equal bool
	}
	members := make([]*member, 0, len(rest))
	for _, c := range rest {
		f, err := os.Open(c.Path)
		if err != nil {
			p.sendError(&OpenError{Path: c.Path, Err: err})
			continue
		}
		members = append(members, &member{c: c, file: f, equal: true})
	}
	defer func() {
		for _, m := range members {
			_ = m.file.Close()
		}
	}()

	b := bufferSize(p.maxMemory, p.maxBuffer, p.workers+1)

	offset := int64(0)
	for offset < size {
		if ctx.Err() != nil {
			break
		}
		readLen := b
		if size-offset < readLen {
			readLen = size - offset
		}

		refBuf := make([]byte, readLen)
		if _, err := io.ReadFull(refFile, refBuf); err != nil {
			p.sendError(&ReadError{Path: ref.Path, Err: err})
			// Reference itself is unreadable: it can't anchor this wave any
			// further. Split on what this wave already established instead
			// of recursing on the untouched original candidates, which
			// would re-read bytes every still-equal member already matched.
			// The reference itself is dropped; its identity can't be
			// confirmed past this point.
			var equal, notEqual []*candidate.Candidate
			for _, m := range members {
				if m.equal {
					equal = append(equal, m.c)
				} else {
					notEqual = append(notEqual, m.c)
				}
			}
			var finalized []candidate.DuplicateGroup
			if len(equal) > 0 {
				finalized = append(finalized, p.Partition(ctx, size, equal, allowSingletons)...)
			}
			if len(notEqual) > 0 {
				finalized = append(finalized, p.Partition(ctx, size, notEqual, allowSingletons)...)
			}
			return finalized
		}

		var wg sync.WaitGroup
		sem := candidate.NewSemaphore(p.workers)
		for _, m := range members {
			if !m.equal {
				continue
			}
			wg.Add(1)
			go func(m *member) {
				defer wg.Done()
				sem.Acquire()
				defer sem.Release()

				buf := make([]byte, readLen)
				if _, err := io.ReadFull(m.file, buf); err != nil {
					p.sendError(&ReadError{Path: m.c.Path, Err: err})
					m.equal = false
					return
				}
				if !bytes.Equal(buf, refBuf) {
					m.equal = false
				}
			}(m)
		}
		wg.Wait()
		offset += readLen
		p.stats.bytesRead.Add(readLen * int64(len(members)+1))
	}

	var finalized []candidate.DuplicateGroup
	equal := []*candidate.Candidate{ref}
	var notEqual []*candidate.Candidate
	for _, m := range members {
		if m.equal {
			equal = append(equal, m.c)
		} else {
			notEqual = append(notEqual, m.c)
		}
	}

	if len(equal) >= 2 || (len(equal) == 1 && allowSingletons) {
		finalized = append(finalized, groupOfCandidates(equal))
	}
	if len(notEqual) > 0 {
		finalized = append(finalized, p.Partition(ctx, size, notEqual, allowSingletons)...)
	}
	return finalized
}

func groupOf(part []*activeFile) candidate.DuplicateGroup {
	cands := make([]*candidate.Candidate, len(part))
	for i, af := range part {
		cands[i] = af.c
	}
	return groupOfCandidates(cands)
}

func groupOfCandidates(cands []*candidate.Candidate) candidate.DuplicateGroup {
	siblings := make([]candidate.SiblingGroup, len(cands))
	for i, c := range cands {
		siblings[i] = candidate.NewSiblingGroup([]*candidate.Candidate{c})
	}
	return candidate.NewDuplicateGroup(siblings)
}

func singletonGroup(c *candidate.Candidate) candidate.DuplicateGroup {
	return groupOfCandidates([]*candidate.Candidate{c})
}

func (p *Partitioner) sendError(err error) {
	if p.errCh != nil {
		p.errCh <- err
	}
}
