package fsview

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyweave/polyweave/internal/subject"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(rel), 0o600))
}

func TestDirEntriesSorted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/b.txt")
	writeFile(t, root, "src/a.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "sub"), 0o755))

	v := New(root)
	entries, err := v.DirEntries(context.Background(), "src")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, entries)
}

func TestDirEntriesMissingPathIsNotFound(t *testing.T) {
	t.Parallel()

	v := New(t.TempDir())
	_, err := v.DirEntries(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileContentReadsAndReportsNotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/a.txt")

	v := New(root)
	data, err := v.FileContent(context.Background(), "src/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("src/a.txt"), data)

	_, err = v.FileContent(context.Background(), "src/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpandGlobsFilesDedupedAndSorted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/b.txt")
	writeFile(t, root, "src/a.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "sub"), 0o755))

	v := New(root)
	// Overlapping globs must not double-report a match.
	subjects, err := v.ExpandGlobs(context.Background(), []string{"src/*.txt", "src/a*"}, subject.FileTypeFiles)
	require.NoError(t, err)
	assert.Equal(t, []subject.Subject{
		subject.Address{Path: "src", Name: "a.txt"},
		subject.Address{Path: "src", Name: "b.txt"},
	}, subjects)
}

func TestExpandGlobsDirsFiltersFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/a.txt")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "sub"), 0o755))

	v := New(root)
	subjects, err := v.ExpandGlobs(context.Background(), []string{"src/*"}, subject.FileTypeDirs)
	require.NoError(t, err)
	assert.Equal(t, []subject.Subject{subject.Address{Path: "src", Name: "sub"}}, subjects)
}

func TestExpandGlobsDeterministicAcrossCalls(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "src/a.txt")
	writeFile(t, root, "src/b.txt")

	v := New(root)
	first, err := v.ExpandGlobs(context.Background(), []string{"src/*.txt"}, subject.FileTypeFiles)
	require.NoError(t, err)
	second, err := v.ExpandGlobs(context.Background(), []string{"src/*.txt"}, subject.FileTypeFiles)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateSubjectsIncludesPathAndAncestorDirectories(t *testing.T) {
	t.Parallel()

	subjects := GenerateSubjects("a/b/c.txt")
	assert.Equal(t, []subject.Subject{
		subject.Address{Path: filepath.Join("a", "b"), Name: "c.txt"},
		subject.Address{Path: filepath.Join("a", "b")},
		subject.Address{Path: "a"},
	}, subjects)
}

func TestGenerateSubjectsTopLevelFile(t *testing.T) {
	t.Parallel()

	subjects := GenerateSubjects("a.txt")
	assert.Equal(t, []subject.Subject{subject.Address{Path: ".", Name: "a.txt"}}, subjects)
}
