// Package bucketer groups alias-folded candidates by exact size, discarding
// buckets too small to ever contain a duplicate, and hands the survivors to
// the partitioner in largest-first order.
package bucketer

import (
	"sort"

	"github.com/fileops/dupefind/internal/candidate"
)

// Bucket holds every candidate of one common size.
type Bucket struct {
	Size       int64
	Candidates []*candidate.Candidate
}

// Group buckets candidates by Size, drops buckets smaller than minSize or
// with fewer than 2 members, and returns the survivors sorted largest-first
// so a cancelled run has already reported its highest-value groups.
//
// allowSingletons keeps size-1 buckets (used by correlate mode, where a
// size-class present in only one tree is still a reportable add/remove).
func Group(candidates []*candidate.Candidate, minSize int64, allowSingletons bool) []Bucket {
	bySizeOrder := make([]int64, 0)
	bySize := make(map[int64][]*candidate.Candidate)

	for _, c := range candidates {
		if c.Size < minSize {
			continue
		}
		if _, ok := bySize[c.Size]; !ok {
			bySizeOrder = append(bySizeOrder, c.Size)
		}
		bySize[c.Size] = append(bySize[c.Size], c)
	}

	buckets := make([]Bucket, 0, len(bySizeOrder))
	for _, size := range bySizeOrder {
		members := bySize[size]
		if len(members) < 2 && !allowSingletons {
			continue
		}
		buckets = append(buckets, Bucket{Size: size, Candidates: members})
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Size > buckets[j].Size })
	return buckets
}
