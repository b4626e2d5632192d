// Package alias folds candidates that share filesystem identity (hardlinks,
// or a followed symlink and its target) into a single logical candidate.
package alias

import (
	"sort"

	"github.com/fileops/dupefind/internal/candidate"
)

// identity is the key two candidates must share to be the same file on disk.
type identity struct {
	dev uint64
	ino uint64
}

// Fold groups raw scanner candidates by (Dev, Ino) and returns one
// representative Candidate per unique identity. The representative's Path is
// the lexicographically-first of the group's paths (the primary path);
// AliasPaths holds every path in the group, sorted, including the primary.
//
// trustDeviceBoundaries selects the identity key: when true, candidates
// share identity only if both Dev and Ino match; when false (the teacher's
// NFS-safe default, where device numbers can differ for the same export
// across mounts), Ino alone is the key.
//
// Nlink on the representative is the on-disk link count reported by the
// filesystem, which may exceed len(AliasPaths) when hardlinks exist outside
// the scanned trees.
func Fold(candidates []*candidate.Candidate, trustDeviceBoundaries bool) []*candidate.Candidate {
	groups := make(map[identity][]*candidate.Candidate, len(candidates))
	order := make([]identity, 0, len(candidates))

	for _, c := range candidates {
		id := identity{ino: c.Ino}
		if trustDeviceBoundaries {
			id.dev = c.Dev
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], c)
	}

	folded := make([]*candidate.Candidate, 0, len(order))
	for _, id := range order {
		folded = append(folded, representative(groups[id]))
	}
	return folded
}

// representative builds the single Candidate standing in for a group of
// aliased paths.
func representative(group []*candidate.Candidate) *candidate.Candidate {
	paths := make([]string, len(group))
	for i, c := range group {
		paths[i] = c.Path
	}
	sort.Strings(paths)

	primary := group[0]
	for _, c := range group {
		if c.Path == paths[0] {
			primary = c
			break
		}
	}

	return &candidate.Candidate{
		Path:       paths[0],
		Size:       primary.Size,
		ModTime:    primary.ModTime,
		Dev:        primary.Dev,
		Ino:        primary.Ino,
		Nlink:      primary.Nlink,
		RootIndex:  primary.RootIndex,
		AliasPaths: paths,
	}
}
