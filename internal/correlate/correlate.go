// Package correlate implements two-tree comparison: given a left and right
// root, it reports which content classes are present in both (matches),
// only on the left (removes, present in left/absent in right), or only on
// the right (adds).
//
// Structurally grounded on egibs/reconcile's pkg/diff.Result: a flat entry
// slice plus per-status atomic counts, addressed through Filter-style
// accessors rather than three separately typed slices.
package correlate

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/fileops/dupefind/internal/alias"
	"github.com/fileops/dupefind/internal/bucketer"
	"github.com/fileops/dupefind/internal/candidate"
	"github.com/fileops/dupefind/internal/partitioner"
	"github.com/fileops/dupefind/internal/scanner"
)

// Status classifies a content class by which root(s) it was found under.
type Status uint8

const (
	Match Status = iota
	Remove
	Add
)

// Class is one content-equivalence class (possibly a singleton — unlike
// find mode, correlate never discards size-1 classes, since a file unique
// to one tree is exactly the information correlate exists to report).
type Class struct {
	Status     Status
	Size       int64
	Candidates []*candidate.Candidate
}

// Result holds every classified content class plus per-status file/byte
// counts.
type Result struct {
	Classes []Class
	Counts  [3]atomic.Uint32
	Bytes   [3]atomic.Int64
}

// Count returns the number of files classified under s.
func (r *Result) Count(s Status) uint32 { return r.Counts[s].Load() }

// ByteCount returns the total size of files classified under s.
func (r *Result) ByteCount(s Status) int64 { return r.Bytes[s].Load() }

// Filter returns every class with the given status.
func (r *Result) Filter(s Status) []Class {
	var out []Class
	for _, c := range r.Classes {
		if c.Status == s {
			out = append(out, c)
		}
	}
	return out
}

// Options configures a correlate run. Left and Right are root paths;
// scanner.New assigns them RootIndex 1 and 2 respectively.
type Options struct {
	Left, Right           string
	MinSize               int64
	MaxMemory, MaxBuffer  int64
	Workers               int
	TrustDeviceBoundaries bool
	ShowProgress          bool
	ErrCh                 chan error
}

// Run scans both trees, folds aliases, buckets by size (keeping
// singletons), partitions each bucket by byte equality, and classifies
// every resulting class by which root(s) contributed to it.
func Run(ctx context.Context, opts Options) Result {
	s := scanner.New([]string{opts.Left, opts.Right}, opts.MinSize, nil, opts.Workers, false, false, opts.ShowProgress, opts.ErrCh)
	raw := s.Run(ctx)

	folded := alias.Fold(raw, opts.TrustDeviceBoundaries)
	buckets := bucketer.Group(folded, opts.MinSize, true)

	p := partitioner.New(opts.MaxMemory, opts.MaxBuffer, opts.Workers, opts.ShowProgress, opts.ErrCh)
	groups := p.Run(ctx, buckets, true)

	var result Result
	for _, dg := range groups.Items() {
		var cands []*candidate.Candidate
		for _, sg := range dg.Items() {
			cands = append(cands, sg.Items()...)
		}
		class := classify(cands)
		result.Classes = append(result.Classes, class)
		result.Counts[class.Status].Add(uint32(len(cands)))
		result.Bytes[class.Status].Add(class.Size * int64(len(cands)))
	}

	sort.SliceStable(result.Classes, func(i, j int) bool {
		return result.Classes[i].Candidates[0].Path < result.Classes[j].Candidates[0].Path
	})
	return result
}

func classify(cands []*candidate.Candidate) Class {
	var leftSeen, rightSeen bool
	for _, c := range cands {
		switch c.RootIndex {
		case 1:
			leftSeen = true
		case 2:
			rightSeen = true
		}
	}

	status := Match
	switch {
	case leftSeen && !rightSeen:
		status = Remove
	case rightSeen && !leftSeen:
		status = Add
	}

	return Class{Status: status, Size: cands[0].Size, Candidates: cands}
}
