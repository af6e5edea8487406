// Package registry loads the task registration collection from JSON
// manifests and builds the node.TaskIndex the engine steps against:
// strict decoding, sentinel-wrapped validation errors, and deterministic
// (sorted) discovery order.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/polyweave/polyweave/internal/node"
	"github.com/polyweave/polyweave/internal/selector"
	"github.com/polyweave/polyweave/internal/subject"
)

// Sentinel errors for programmatic checking via errors.Is().
var (
	ErrManifestMalformed = errors.New("manifest malformed")
	ErrManifestInvalid    = errors.New("manifest invalid")
	ErrDuplicateTaskID    = errors.New("duplicate task id")
	ErrUnknownSelectorKind = errors.New("unknown selector kind in manifest")
)

// SelectorSpec is the wire form of one selector entry in a task's input
// clause; Kind chooses the selector, and only the fields that kind uses
// are meaningful.
type SelectorSpec struct {
	Kind string `json:"kind"`

	Product       string   `json:"product,omitempty"`
	VariantKey    string   `json:"variant_key,omitempty"`
	DepsProduct   string   `json:"deps_product,omitempty"`
	Field         string   `json:"field,omitempty"`
	ProjectedType string   `json:"projected_type,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	InputProduct  string   `json:"input_product,omitempty"`

	LiteralAddress *struct {
		Path string `json:"path"`
		Name string `json:"name"`
	} `json:"literal_address,omitempty"`
}

// ToSelector converts the wire form into the selector algebra type it
// names.
func (s SelectorSpec) ToSelector() (selector.Selector, error) {
	switch s.Kind {
	case "select":
		return selector.Select{Product: subject.Product(s.Product)}, nil
	case "select_variant":
		return selector.SelectVariant{Product: subject.Product(s.Product), VariantKey: s.VariantKey}, nil
	case "select_dependencies":
		return selector.SelectDependencies{
			Product:     subject.Product(s.Product),
			DepsProduct: subject.Product(s.DepsProduct),
			Field:       s.Field,
		}, nil
	case "select_projection":
		return selector.SelectProjection{
			Product:       subject.Product(s.Product),
			ProjectedType: s.ProjectedType,
			Fields:        s.Fields,
			InputProduct:  subject.Product(s.InputProduct),
		}, nil
	case "select_literal":
		if s.LiteralAddress == nil {
			return nil, fmt.Errorf("%w: select_literal missing literal_address", ErrManifestInvalid)
		}
		return selector.SelectLiteral{
			Subject: subject.Address{Path: s.LiteralAddress.Path, Name: s.LiteralAddress.Name},
			Product: subject.Product(s.Product),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSelectorKind, s.Kind)
	}
}

// TaskManifestEntry is the wire form of one task registration.
type TaskManifestEntry struct {
	TaskID  string         `json:"task_id"`
	Product string         `json:"product"`
	Inputs  []SelectorSpec `json:"inputs"`
}

// Manifest is the full wire form of a task registration collection.
type Manifest struct {
	Tasks []TaskManifestEntry `json:"tasks"`
}

func validate(m Manifest) error {
	seen := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if t.TaskID == "" {
			return fmt.Errorf("%w: task missing task_id", ErrManifestInvalid)
		}
		if t.Product == "" {
			return fmt.Errorf("%w: task %q missing product", ErrManifestInvalid, t.TaskID)
		}
		if seen[t.TaskID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTaskID, t.TaskID)
		}
		seen[t.TaskID] = true
	}
	return nil
}

// Parse decodes and validates a manifest from r, rejecting unknown fields
// and trailing data.
func Parse(r io.Reader) (Manifest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %w", ErrManifestMalformed, err)
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return Manifest{}, fmt.Errorf("%w: trailing data", ErrManifestMalformed)
		}
		return Manifest{}, fmt.Errorf("%w: %w", ErrManifestMalformed, err)
	}

	if err := validate(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// ParseBytes is a convenience wrapper around Parse.
func ParseBytes(data []byte) (Manifest, error) {
	return Parse(bytes.NewReader(data))
}

// LoadFile reads and parses a manifest file.
func LoadFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading task manifest: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// LoadDir discovers every *.json file directly under dir, in sorted
// order, and merges their task entries into one Manifest.
func LoadDir(dir string) (Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return Manifest{}, fmt.Errorf("reading task manifest dir %q: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var merged Manifest
	for _, name := range names {
		m, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return Manifest{}, err
		}
		merged.Tasks = append(merged.Tasks, m.Tasks...)
	}
	if err := validate(merged); err != nil {
		return Manifest{}, err
	}
	return merged, nil
}

// TaskFunc adapts a plain function into a node.Task, the shape most
// registered tasks in a manifest-driven build actually take.
type TaskFunc func(inputs []any) (any, error)

// Invoke satisfies node.Task.
func (f TaskFunc) Invoke(inputs []any) (any, error) { return f(inputs) }

// Build turns a parsed Manifest plus the concrete task_id -> callable
// bindings a host registers in code into a node.TaskIndex ready for
// stepping. Binding a task_id the manifest never declared, or declaring
// one the bindings never bind, is an error: the manifest and the code that
// implements it must agree exactly.
func Build(m Manifest, bindings map[string]node.Task) (*node.TaskIndex, error) {
	idx := node.NewTaskIndex()
	bound := make(map[string]bool, len(bindings))
	for _, t := range m.Tasks {
		task, ok := bindings[t.TaskID]
		if !ok {
			return nil, fmt.Errorf("%w: task %q has no registered callable", ErrManifestInvalid, t.TaskID)
		}
		bound[t.TaskID] = true

		clause := make(selector.Clause, len(t.Inputs))
		for i, spec := range t.Inputs {
			sel, err := spec.ToSelector()
			if err != nil {
				return nil, fmt.Errorf("task %q: %w", t.TaskID, err)
			}
			clause[i] = sel
		}
		idx.Register(subject.Product(t.Product), t.TaskID, clause, task)
	}
	for id := range bindings {
		if !bound[id] {
			return nil, fmt.Errorf("%w: callable %q bound but not declared in manifest", ErrManifestInvalid, id)
		}
	}
	return idx, nil
}
