// Package fieldwalk provides the default stepctx.Projector and
// stepctx.FieldExtractor implementations: generic, reflection-based field
// access over product values, so selector fields can be read directly off
// whatever value a product holds without requiring products to implement
// a bespoke interface.
//
// A host with product types that need custom projection or extraction
// semantics can supply its own stepctx.Projector/FieldExtractor instead;
// this package only covers the common case of plain Go structs.
package fieldwalk

import (
	"fmt"
	"reflect"

	"github.com/polyweave/polyweave/internal/subject"
)

// ErrNoSuchField is returned when a requested field does not exist on the
// source value.
var ErrNoSuchField = fmt.Errorf("fieldwalk: no such field")

// ErrFieldType is returned when a field's value cannot be converted to the
// type the caller asked for.
var ErrFieldType = fmt.Errorf("fieldwalk: field has unexpected type")

func fieldByName(source any, field string) (reflect.Value, error) {
	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %q on nil", ErrNoSuchField, field)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %q on non-struct %T", ErrNoSuchField, field, source)
	}
	fv := v.FieldByName(field)
	if !fv.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %q on %T", ErrNoSuchField, field, source)
	}
	return fv, nil
}

// Extractor implements stepctx.FieldExtractor by reading a named field off
// source and interpreting it as a slice of subject.Subject (or a single
// subject.Subject, normalized to a one-element slice), per
// SelectDependencies's "extract field -> sequence of subjects" semantics.
// An empty field name means the source value itself is the sequence, the
// shape a root-level dependencies request takes when its deps product is
// already a collection of subjects.
type Extractor struct{}

// ExtractField implements stepctx.FieldExtractor.
func (Extractor) ExtractField(source any, field string) ([]subject.Subject, error) {
	fv := reflect.ValueOf(source)
	if field != "" {
		var err error
		fv, err = fieldByName(source, field)
		if err != nil {
			return nil, err
		}
	}
	if !fv.IsValid() {
		return nil, fmt.Errorf("%w: %q on nil source", ErrFieldType, field)
	}
	if subj, ok := fv.Interface().(subject.Subject); ok {
		return []subject.Subject{subj}, nil
	}
	if fv.Kind() != reflect.Slice && fv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: field %q is %s, not a subject or a sequence of subjects", ErrFieldType, field, fv.Kind())
	}
	out := make([]subject.Subject, fv.Len())
	for i := 0; i < fv.Len(); i++ {
		elem := fv.Index(i).Interface()
		subj, ok := elem.(subject.Subject)
		if !ok {
			return nil, fmt.Errorf("%w: field %q element %d is %T, not a subject.Subject", ErrFieldType, field, i, elem)
		}
		out[i] = subj
	}
	return out, nil
}

// Projector implements stepctx.Projector for the two built-in projected
// subject types this engine knows how to synthesize: "Address" and
// "PathGlobs". A host extending the subject algebra with its own
// projected_subject_type values should wrap or replace this with its own
// Projector.
type Projector struct{}

// Project implements stepctx.Projector.
func (Projector) Project(projectedType string, fields []string, source any) (subject.Subject, error) {
	values := make([]string, len(fields))
	for i, f := range fields {
		fv, err := fieldByName(source, f)
		if err != nil {
			return nil, err
		}
		values[i] = fmt.Sprint(fv.Interface())
	}

	switch projectedType {
	case "Address":
		addr := subject.Address{}
		for i, f := range fields {
			switch f {
			case "Path":
				addr.Path = values[i]
			case "Name":
				addr.Name = values[i]
			default:
				return nil, fmt.Errorf("%w: Address projection has no field %q", ErrNoSuchField, f)
			}
		}
		return addr, nil
	case "PathGlobs":
		globs := subject.PathGlobs{FileType: subject.FileTypeFiles}
		for i, f := range fields {
			switch f {
			case "Globs":
				fv, err := fieldByName(source, f)
				if err != nil {
					return nil, err
				}
				ss, ok := fv.Interface().([]string)
				if !ok {
					return nil, fmt.Errorf("%w: PathGlobs projection field %q must be []string", ErrFieldType, f)
				}
				globs.Globs = ss
			case "FileType":
				globs.FileType = subject.FileType(values[i])
			default:
				return nil, fmt.Errorf("%w: PathGlobs projection has no field %q", ErrNoSuchField, f)
			}
		}
		return globs, nil
	default:
		return nil, fmt.Errorf("%w: unknown projected subject type %q", ErrNoSuchField, projectedType)
	}
}
