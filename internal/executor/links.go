//go:build unix

package executor

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// orphanedTmpMaxAge is the minimum age for a .dupefind.tmp file to be
// considered orphaned. Files younger than this are assumed to belong to an
// active, still-running exec invocation.
const orphanedTmpMaxAge = 1 * time.Minute

// createHardlink creates a hardlink atomically by linking to a temp file
// then renaming over target. If the temp file already exists and is
// orphaned, it is cleaned up and the link retried.
func createHardlink(source, target string) error {
	tmp := target + ".dupefind.tmp"

	err := os.Link(source, tmp)
	if errors.Is(err, syscall.EEXIST) {
		if cleanupErr := tryCleanupOrphanedTmp(tmp, orphanedTmpMaxAge); cleanupErr != nil {
			return fmt.Errorf("tmp file exists and cannot be cleaned: %w", cleanupErr)
		}
		err = os.Link(source, tmp)
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// tryCleanupOrphanedTmp removes path only if it is old enough and safe to
// discard without risking the only copy of its data.
func tryCleanupOrphanedTmp(path string, maxAge time.Duration) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	if info.ModTime().After(cutoff) {
		return fmt.Errorf("file too recent (mtime %v, cutoff %v)", info.ModTime(), cutoff)
	}

	mode := info.Mode()
	if !mode.IsRegular() {
		return fmt.Errorf("not a regular file (mode %v)", mode)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("cannot get syscall.Stat_t")
	}
	if stat.Nlink <= 1 {
		return fmt.Errorf("nlink=%d, may be only copy of data", stat.Nlink)
	}

	return os.Remove(path)
}
