package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/stratum/internal/varint"
	"github.com/hupe1980/stratum/read"
	"github.com/hupe1980/stratum/schema"
)

// ReadState is the state produced by a cycle, as a consumer would see it.
type ReadState struct {
	Version int64
	Engine  *read.Engine
}

// Validator checks a produced state before it is announced.
type Validator interface {
	Name() string
	Validate(ctx context.Context, rs ReadState) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc struct {
	ValidatorName string
	Fn            func(ctx context.Context, rs ReadState) error
}

// Name implements Validator.
func (v ValidatorFunc) Name() string { return v.ValidatorName }

// Validate implements Validator.
func (v ValidatorFunc) Validate(ctx context.Context, rs ReadState) error { return v.Fn(ctx, rs) }

// ErrDuplicateKey is reported by DuplicateDataValidator.
var ErrDuplicateKey = errors.New("duplicate primary key")

// DuplicateDataValidator fails when two records of an object type share a
// primary key.
type DuplicateDataValidator struct {
	typeName   string
	fieldPaths []string
}

// NewDuplicateDataValidator checks typeName on fieldPaths, or on the
// type's declared primary key when none are given. Paths are dot
// separated and may follow reference fields.
func NewDuplicateDataValidator(typeName string, fieldPaths ...string) *DuplicateDataValidator {
	return &DuplicateDataValidator{typeName: typeName, fieldPaths: fieldPaths}
}

// Name implements Validator.
func (v *DuplicateDataValidator) Name() string {
	return "DuplicateDataValidator(" + v.typeName + ")"
}

// Validate implements Validator.
func (v *DuplicateDataValidator) Validate(_ context.Context, rs ReadState) error {
	ts, ok := rs.Engine.TypeState(v.typeName)
	if !ok {
		return fmt.Errorf("type %s is not present in the data model (see Initialize)", v.typeName)
	}
	obj, ok := ts.Schema().(*schema.ObjectSchema)
	if !ok {
		return fmt.Errorf("type %s is a %s, not an object", v.typeName, ts.Schema().Kind())
	}
	paths := v.fieldPaths
	if len(paths) == 0 {
		if obj.PrimaryKey() == nil {
			return fmt.Errorf("type %s declares no primary key and no fields were given", v.typeName)
		}
		paths = obj.PrimaryKey().FieldPaths
	}

	seen := make(map[string]int)
	var dups []string
	for o := range ts.Ordinals() {
		key, err := primaryKey(rs.Engine, ts, o, paths)
		if err != nil {
			return err
		}
		if first, dup := seen[key]; dup {
			dups = append(dups, fmt.Sprintf("%d and %d", first, o))
			continue
		}
		seen[key] = o
	}
	if len(dups) > 0 {
		return fmt.Errorf("%w: %s[%s] ordinals %s", ErrDuplicateKey, v.typeName,
			strings.Join(paths, ","), strings.Join(dups, ", "))
	}
	return nil
}

// primaryKey concatenates the encoded values at paths, each length
// prefixed, following reference fields across types.
func primaryKey(e *read.Engine, ts *read.TypeState, ordinal int, paths []string) (string, error) {
	var key []byte
	for _, path := range paths {
		b, err := fieldAtPath(e, ts, ordinal, strings.Split(path, "."))
		if err != nil {
			return "", err
		}
		key = varint.AppendBytes(key, b)
	}
	return string(key), nil
}

func fieldAtPath(e *read.Engine, ts *read.TypeState, ordinal int, path []string) ([]byte, error) {
	view, err := ts.Object(ordinal)
	if err != nil {
		return nil, err
	}
	obj := view.Schema()
	i := obj.FieldIndex(path[0])
	if i < 0 {
		return nil, fmt.Errorf("%s has no field %q", obj.Name(), path[0])
	}
	if len(path) == 1 {
		return view.FieldBytes(path[0]), nil
	}
	f := obj.Field(i)
	if f.Type != schema.FieldReference {
		return nil, fmt.Errorf("%s.%s is not a reference", obj.Name(), f.Name)
	}
	ref, ok := view.Reference(f.Name)
	if !ok {
		return nil, nil
	}
	next, ok := e.TypeState(f.RefType)
	if !ok {
		return nil, fmt.Errorf("referenced type %s is not loaded", f.RefType)
	}
	return fieldAtPath(e, next, ref, path[1:])
}
