// Package candidate provides the shared file-candidate model used across
// the dupefind codebase: a scanned file's metadata plus the generic
// ordered-collection helpers built on top of it.
package candidate

import (
	"cmp"
	"slices"
	"time"
)

// Candidate holds metadata for a single scanned file.
//
// RootIndex is the 1-based position of the command-line argument (file or
// directory) that introduced this candidate into the scan. AliasPaths holds
// every path that resolved to the same underlying content (via hardlink, or
// followed symlink when enabled); Path always equals AliasPaths[0] once
// alias folding has run, since the primary path is defined as the
// lexicographically-first alias.
type Candidate struct {
	Path       string
	Size       int64
	ModTime    time.Time
	Dev        uint64
	Ino        uint64
	Nlink      uint32
	RootIndex  int
	AliasPaths []string
}

// Ordered is a collection that maintains sort order by a key function.
// T is the element type, K is the comparable key type.
// Once constructed, items are guaranteed to be sorted by key.
type Ordered[T any, K cmp.Ordered] struct {
	items   []T
	keyFunc func(T) K
}

// NewOrdered creates a sorted collection from items using keyFunc for ordering.
// Items are copied and sorted at construction time.
func NewOrdered[T any, K cmp.Ordered](items []T, keyFunc func(T) K) Ordered[T, K] {
	sorted := make([]T, len(items))
	copy(sorted, items)
	slices.SortFunc(sorted, func(a, b T) int {
		return cmp.Compare(keyFunc(a), keyFunc(b))
	})
	return Ordered[T, K]{items: sorted, keyFunc: keyFunc}
}

// Items returns the sorted items.
func (s Ordered[T, K]) Items() []T { return s.items }

// First returns the first item (smallest key), or zero value if empty.
func (s Ordered[T, K]) First() T {
	if len(s.items) == 0 {
		var zero T
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Ordered[T, K]) Len() int { return len(s.items) }

// SiblingGroup contains candidates sharing the same filesystem identity
// (hardlinks, or a followed symlink and its target).
// Always sorted by Path for deterministic iteration.
type SiblingGroup = Ordered[*Candidate, string]

// NewSiblingGroup creates a SiblingGroup sorted by candidate path.
func NewSiblingGroup(candidates []*Candidate) SiblingGroup {
	return NewOrdered(candidates, func(c *Candidate) string { return c.Path })
}

// SizeGroup contains sibling groups of common size (duplicate candidates).
// Sorted by the first sibling group's path.
type SizeGroup = Ordered[SiblingGroup, string]

// NewSizeGroup creates a SizeGroup sorted by first sibling group's path.
func NewSizeGroup(siblings []SiblingGroup) SizeGroup {
	return NewOrdered(siblings, func(sg SiblingGroup) string { return sg.First().Path })
}

// SizeGroups is a sorted collection of size groups.
type SizeGroups = Ordered[SizeGroup, string]

// NewSizeGroups creates SizeGroups sorted by each group's first path,
// whatever the order of the input slice.
func NewSizeGroups(groups []SizeGroup) SizeGroups {
	return NewOrdered(groups, func(sg SizeGroup) string {
		return sg.First().First().Path
	})
}

// DuplicateGroup contains sibling groups proven byte-for-byte identical.
// Sorted by the first sibling group's path.
type DuplicateGroup = Ordered[SiblingGroup, string]

// NewDuplicateGroup creates a DuplicateGroup sorted by first sibling group's path.
func NewDuplicateGroup(siblings []SiblingGroup) DuplicateGroup {
	return NewOrdered(siblings, func(sg SiblingGroup) string { return sg.First().Path })
}

// DuplicateGroups is a sorted collection of duplicate groups.
type DuplicateGroups = Ordered[DuplicateGroup, string]

// NewDuplicateGroups creates sorted DuplicateGroups.
func NewDuplicateGroups(groups []DuplicateGroup) DuplicateGroups {
	return NewOrdered(groups, func(dg DuplicateGroup) string {
		return dg.First().First().Path
	})
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
