// Package stepctx defines the read-only capability bundle passed into
// every node Step call: the task index and a view of the filesystem
// collaborator, so a node can compute without reaching into global state.
package stepctx

import (
	"context"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/subject"
)

// FilesystemView is the external filesystem collaborator: it supplies
// directory listings, file contents, and glob expansions, and must be
// deterministic for the snapshot it observed.
type FilesystemView interface {
	// DirEntries lists the direct children of dir, as subject-relative
	// names (not full paths).
	DirEntries(ctx context.Context, dir string) ([]string, error)
	// FileContent returns the full contents of path.
	FileContent(ctx context.Context, path string) ([]byte, error)
	// ExpandGlobs resolves globs to concrete subjects of the requested
	// file kind.
	ExpandGlobs(ctx context.Context, globs []string, ft subject.FileType) ([]subject.Subject, error)
}

// Projector synthesizes a new subject from selected fields of a product
// value, implementing SelectProjection.
type Projector interface {
	Project(projectedType string, fields []string, source any) (subject.Subject, error)
}

// FieldExtractor extracts an ordered list of sub-subjects from a product
// value by field name, implementing SelectDependencies.
type FieldExtractor interface {
	ExtractField(source any, field string) ([]subject.Subject, error)
}

// Context bundles the capabilities a node needs to compute its step. It is
// built once per scheduler run and passed unchanged to every Step call;
// nothing in it is mutated by stepping.
type Context struct {
	Tasks     *node.TaskIndex
	Natives   node.FilesystemNatives
	FS        FilesystemView
	Projector Projector
	Fields    FieldExtractor
}
