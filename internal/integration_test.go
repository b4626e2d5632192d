//go:build unix && !e2e

package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/fileops/dupefind/internal/alias"
	"github.com/fileops/dupefind/internal/bucketer"
	"github.com/fileops/dupefind/internal/criteria"
	"github.com/fileops/dupefind/internal/emitter"
	"github.com/fileops/dupefind/internal/executor"
	"github.com/fileops/dupefind/internal/partitioner"
	"github.com/fileops/dupefind/internal/report"
	"github.com/fileops/dupefind/internal/scanner"
	"github.com/fileops/dupefind/internal/testfs"
)

// =============================================================================
// Section 8.1: Full Pipeline Integration Tests
// =============================================================================

// TestFullPipelineBasicDuplicates tests basic duplicate detection and coalescing.
func TestFullPipelineBasicDuplicates(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'D', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 0, false)

	expectedSpec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "b.txt"}},
				},
			},
		},
	}
	h.Assert(expectedSpec)
}

// TestFullPipelineExistingHardlinks tests that existing hardlinks are preserved
// and folded with any further duplicates.
func TestFullPipelineExistingHardlinks(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "a_link.txt"}, Chunks: []testfs.Chunk{{Pattern: 'O', Size: "1KiB"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'O', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 0, false)

	expectedSpec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt", "a_link.txt", "b.txt"}},
				},
			},
		},
	}
	h.Assert(expectedSpec)
}

// TestFullPipelineMixedDuplicatesAndUnique tests mixed duplicates and unique files.
func TestFullPipelineMixedDuplicatesAndUnique(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"dup1_a.txt"}, Chunks: []testfs.Chunk{{Pattern: '1', Size: "1KiB"}}},
					{Path: []string{"dup1_b.txt"}, Chunks: []testfs.Chunk{{Pattern: '1', Size: "1KiB"}}},
					{Path: []string{"dup2_a.txt"}, Chunks: []testfs.Chunk{{Pattern: '2', Size: "2KiB"}}},
					{Path: []string{"dup2_b.txt"}, Chunks: []testfs.Chunk{{Pattern: '2', Size: "2KiB"}}},
					{Path: []string{"unique.txt"}, Chunks: []testfs.Chunk{{Pattern: 'U', Size: "3KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 0, false)

	expectedSpec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"dup1_a.txt", "dup1_b.txt"}},
					{Path: []string{"dup2_a.txt", "dup2_b.txt"}},
					{Path: []string{"unique.txt"}},
				},
			},
		},
	}
	h.Assert(expectedSpec)
}

// TestFullPipelineMinSizeFilter tests --min-size filtering.
func TestFullPipelineMinSizeFilter(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"small_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "100"}}},
					{Path: []string{"small_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'S', Size: "100"}}},
					{Path: []string{"large_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'L', Size: "1KiB"}}},
					{Path: []string{"large_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'L', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 500, false)

	smallA := filepath.Join(h.Root(), "data", "small_a.txt")
	smallB := filepath.Join(h.Root(), "data", "small_b.txt")
	largeA := filepath.Join(h.Root(), "data", "large_a.txt")
	largeB := filepath.Join(h.Root(), "data", "large_b.txt")

	if sameInode(t, smallA, smallB) {
		t.Error("small files should NOT be coalesced (filtered by min-size)")
	}
	if !sameInode(t, largeA, largeB) {
		t.Error("large files should be coalesced")
	}
}

// TestFullPipelineExcludePatterns tests --exclude patterns.
func TestFullPipelineExcludePatterns(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"keep_a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
					{Path: []string{"keep_b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
					{Path: []string{"exclude_a.bak"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
					{Path: []string{"exclude_b.bak"}, Chunks: []testfs.Chunk{{Pattern: 'K', Size: "1KiB"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	s := scanner.New([]string{filepath.Join(h.Root(), "data")}, 0, []string{"*.bak"}, 2, false, false, false, nil)
	files := s.Run(context.Background())

	if len(files) != 2 {
		t.Errorf("expected 2 files (excluding .bak), got %d", len(files))
	}
}

// =============================================================================
// Section 8.2: Empty/No-Results Scenarios (table-driven)
// =============================================================================

func TestFullPipelineEmptyScenarios(t *testing.T) {
	tests := []struct {
		name string
		spec testfs.FileTree
	}{
		{
			name: "empty directory",
			spec: testfs.FileTree{
				Volumes: []testfs.Volume{
					{MountPoint: "/data", Files: []testfs.File{}},
				},
			},
		},
		{
			name: "single file",
			spec: testfs.FileTree{
				Volumes: []testfs.Volume{
					{
						MountPoint: "/data",
						Files: []testfs.File{
							{Path: []string{"only.txt"}, Chunks: []testfs.Chunk{{Pattern: 'O', Size: "1KiB"}}},
						},
					},
				},
			},
		},
		{
			name: "all unique sizes",
			spec: testfs.FileTree{
				Volumes: []testfs.Volume{
					{
						MountPoint: "/data",
						Files: []testfs.File{
							{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
							{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'B', Size: "2KiB"}}},
							{Path: []string{"c.txt"}, Chunks: []testfs.Chunk{{Pattern: 'C', Size: "3KiB"}}},
						},
					},
				},
			},
		},
		{
			name: "same size different content",
			spec: testfs.FileTree{
				Volumes: []testfs.Volume{
					{
						MountPoint: "/data",
						Files: []testfs.File{
							{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'A', Size: "1KiB"}}},
							{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'B', Size: "1KiB"}}},
						},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testfs.New(t, tt.spec)

			s := scanner.New([]string{filepath.Join(h.Root(), "data")}, 0, nil, 2, false, false, false, nil)
			files := s.Run(context.Background())
			folded := alias.Fold(files, false)
			buckets := bucketer.Group(folded, 0, false)

			p := partitioner.New(256<<20, 1<<20, 2, false, nil)
			groups := p.Run(context.Background(), buckets, false)

			if tt.name == "same size different content" && len(groups.Items()) > 0 {
				t.Errorf("expected no duplicate groups (different content), got %d", len(groups.Items()))
			}
		})
	}
}

// =============================================================================
// Section 8.4: Data Integrity Tests
// =============================================================================

// TestDataIntegrityHardlinksShareData tests that hardlinks actually share data.
func TestDataIntegrityHardlinksShareData(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"a.txt"}, Chunks: []testfs.Chunk{{Pattern: 'C', Size: "100"}}},
					{Path: []string{"b.txt"}, Chunks: []testfs.Chunk{{Pattern: 'C', Size: "100"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 0, false)

	pathA := filepath.Join(h.Root(), "data", "a.txt")
	pathB := filepath.Join(h.Root(), "data", "b.txt")

	contentA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(pathA, []byte("modified"), 0o644); err != nil {
		t.Fatal(err)
	}

	contentB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatal(err)
	}

	if string(contentB) != "modified" {
		t.Errorf("hardlinks should share data: wrote 'modified' to a.txt, read %q from b.txt", contentB)
	}

	if err := os.WriteFile(pathA, contentA, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestDataIntegrityOriginalDataPreserved tests that original data is never lost.
func TestDataIntegrityOriginalDataPreserved(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"original.txt"}, Chunks: []testfs.Chunk{{Pattern: 'U', Size: "100"}}},
					{Path: []string{"duplicate.txt"}, Chunks: []testfs.Chunk{{Pattern: 'U', Size: "100"}}},
				},
			},
		},
	}

	h := testfs.New(t, spec)

	pathOrig := filepath.Join(h.Root(), "data", "original.txt")
	contentBefore, err := os.ReadFile(pathOrig)
	if err != nil {
		t.Fatal(err)
	}

	runPipeline(t, h.Root(), nil, 0, false)

	contentAfter, err := os.ReadFile(pathOrig)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(contentBefore, contentAfter) {
		t.Error("original data should be preserved after deduplication")
	}
}

// =============================================================================
// Section 8.5: Byte-equality partitioning boundary tests
// =============================================================================

// TestPartitionSameHeadDifferentTail tests that files with identical leading
// bytes but diverging trailing bytes are correctly identified as non-duplicates.
func TestPartitionSameHeadDifferentTail(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"uniform.txt"}, Chunks: []testfs.Chunk{
						{Pattern: 'A', Size: "2MiB"},
					}},
					{Path: []string{"mixed.txt"}, Chunks: []testfs.Chunk{
						{Pattern: 'A', Size: "1MiB"},
						{Pattern: 'B', Size: "1MiB"},
					}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 0, false)

	uniformPath := filepath.Join(h.Root(), "data", "uniform.txt")
	mixedPath := filepath.Join(h.Root(), "data", "mixed.txt")

	if sameInode(t, uniformPath, mixedPath) {
		t.Error("files with same HEAD but different TAIL should NOT be coalesced")
	}
}

// TestPartitionMultiChunk tests files with multiple chunks demonstrating
// precise content control at comparison boundaries.
func TestPartitionMultiChunk(t *testing.T) {
	spec := testfs.FileTree{
		Volumes: []testfs.Volume{
			{
				MountPoint: "/data",
				Files: []testfs.File{
					{Path: []string{"all_x.txt"}, Chunks: []testfs.Chunk{
						{Pattern: 'X', Size: "1MiB"},
						{Pattern: 'X', Size: "1MiB"},
					}},
					{Path: []string{"x_then_y.txt"}, Chunks: []testfs.Chunk{
						{Pattern: 'X', Size: "1MiB"},
						{Pattern: 'Y', Size: "1MiB"},
					}},
					{Path: []string{"all_x_copy.txt"}, Chunks: []testfs.Chunk{
						{Pattern: 'X', Size: "1MiB"},
						{Pattern: 'X', Size: "1MiB"},
					}},
				},
			},
		},
	}

	h := testfs.New(t, spec)
	runPipeline(t, h.Root(), nil, 0, false)

	allXPath := filepath.Join(h.Root(), "data", "all_x.txt")
	allXCopyPath := filepath.Join(h.Root(), "data", "all_x_copy.txt")
	xThenYPath := filepath.Join(h.Root(), "data", "x_then_y.txt")

	if !sameInode(t, allXPath, allXCopyPath) {
		t.Error("all_x.txt and all_x_copy.txt should be coalesced (identical content)")
	}
	if sameInode(t, allXPath, xThenYPath) {
		t.Error("all_x.txt and x_then_y.txt should NOT be coalesced (different TAIL)")
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// runPipeline drives find's full in-process chain (scanner, alias, bucketer,
// partitioner, emitter) followed by an executor coalesce pass, mirroring what
// cmd/dupefind's find+exec subcommands do via the report file.
func runPipeline(t *testing.T, root string, exclude []string, minSize int64, dryRun bool) {
	t.Helper()

	dataDir := filepath.Join(root, "data")

	s := scanner.New([]string{dataDir}, minSize, exclude, 2, false, false, false, nil)
	files := s.Run(context.Background())
	folded := alias.Fold(files, false)
	buckets := bucketer.Group(folded, minSize, false)

	p := partitioner.New(256<<20, 1<<20, 2, false, nil)
	groups := p.Run(context.Background(), buckets, false)

	rep := emitter.Build(groups, criteria.Program{}, false)
	executor.Run(rep, executor.Options{Mode: executor.Coalesce, DryRun: dryRun})
}

func sameInode(t *testing.T, path1, path2 string) bool {
	t.Helper()

	info1, err := os.Stat(path1)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path1, err)
	}
	info2, err := os.Stat(path2)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path2, err)
	}

	stat1 := info1.Sys().(*syscall.Stat_t)
	stat2 := info2.Sys().(*syscall.Stat_t)

	return stat1.Dev == stat2.Dev && stat1.Ino == stat2.Ino
}
