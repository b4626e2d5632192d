package scanner

import (
	"os"
	"syscall"

	"github.com/fileops/dupefind/internal/candidate"
)

// newCandidate builds a Candidate from a path, its size/time stat, and the
// identity stat used for Dev/Ino/Nlink. For a regular file or a followed
// symlink, identInfo is the target's stat (os.Stat); for a symlink that is
// included but not followed, identInfo is the link's own stat (os.Lstat),
// so it never collides with its target's identity.
func newCandidate(path string, sizeInfo os.FileInfo, identInfo os.FileInfo, rootIndex int) *candidate.Candidate {
	stat := identInfo.Sys().(*syscall.Stat_t)
	return &candidate.Candidate{
		Path:      path,
		Size:      sizeInfo.Size(),
		ModTime:   sizeInfo.ModTime(),
		Dev:       uint64(stat.Dev), //nolint:unconvert // platform-dependent type
		Ino:       stat.Ino,
		Nlink:     uint32(stat.Nlink),
		RootIndex: rootIndex,
	}
}
