// Package fsview implements the filesystem collaborator: a
// deterministic, os-backed view supplying directory listings, file
// contents, and glob expansions to FilesystemNode steps. Every listing
// and expansion is sorted so repeated observations of an unchanged tree
// are identical.
package fsview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/polyweave/polyweave/internal/subject"
)

// ErrNotFound is returned when a requested path does not exist on disk.
var ErrNotFound = errors.New("path not found")

// View is the default, real-filesystem-backed FilesystemView.
type View struct {
	// Root anchors every relative path the engine hands in; an empty Root
	// treats paths as already absolute or cwd-relative.
	Root string
}

// New returns a View rooted at root.
func New(root string) *View { return &View{Root: root} }

func (v *View) resolve(p string) string {
	if v.Root == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(v.Root, p)
}

// DirEntries lists the direct children of dir, sorted, matching the
// deterministic traversal order the rest of this codebase relies on.
func (v *View) DirEntries(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(v.resolve(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// FileContent reads path in full.
func (v *View) FileContent(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(v.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

// ExpandGlobs resolves globs to concrete PathGlobs-adjacent subjects:
// one Address per matched path, filtered to files or directories per ft.
// Matches are deduplicated and returned in sorted order, so two
// overlapping globs never double the result and repeated calls over an
// unchanged tree are reproducible.
func (v *View) ExpandGlobs(ctx context.Context, globs []string, ft subject.FileType) ([]subject.Subject, error) {
	seen := make(map[string]bool)
	var matches []string
	for _, g := range globs {
		ms, err := filepath.Glob(v.resolve(g))
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", g, err)
		}
		for _, m := range ms {
			rel := m
			if v.Root != "" {
				if r, err := filepath.Rel(v.Root, m); err == nil {
					rel = r
				}
			}
			if seen[rel] {
				continue
			}
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			isDir := info.IsDir()
			if (ft == subject.FileTypeDirs) != isDir {
				continue
			}
			seen[rel] = true
			matches = append(matches, rel)
		}
	}
	sort.Strings(matches)

	out := make([]subject.Subject, len(matches))
	for i, m := range matches {
		dir, name := filepath.Split(m)
		out[i] = subject.Address{Path: filepath.Clean(dir), Name: name}
	}
	return out, nil
}

// GenerateSubjects maps a changed filesystem path to the subjects whose
// FilesystemNodes must be invalidated: the path itself plus each
// containing directory, since a change to a file also stales any
// listing that enumerated it.
func GenerateSubjects(path string) []subject.Subject {
	clean := filepath.Clean(path)
	dir, name := filepath.Split(clean)
	dir = filepath.Clean(dir)

	subjects := []subject.Subject{subject.Address{Path: dir, Name: name}}
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		subjects = append(subjects, subject.Address{Path: dir})
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return subjects
}
