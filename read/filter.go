package read

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// FilterMode selects how a Filter treats the types and fields it names.
type FilterMode int

const (
	// Include loads only the named types and fields.
	Include FilterMode = iota
	// Exclude loads everything except the named types and fields.
	Exclude
)

func (m FilterMode) String() string {
	if m == Exclude {
		return "exclude"
	}
	return "include"
}

// Filter restricts which types and object fields a read engine loads.
// A nil *Filter loads everything.
type Filter struct {
	mode FilterMode
	// types maps a type name to its named fields. A nil field set names the
	// whole type.
	types map[string]map[string]struct{}
}

// NewFilter creates an empty filter. An empty Include filter loads nothing;
// an empty Exclude filter loads everything.
func NewFilter(mode FilterMode) *Filter {
	return &Filter{mode: mode, types: make(map[string]map[string]struct{})}
}

// Mode returns the filter mode.
func (f *Filter) Mode() FilterMode { return f.mode }

// AddType names a whole type.
func (f *Filter) AddType(name string) *Filter {
	f.types[name] = nil
	return f
}

// AddField names a single field of an object type. Naming fields of a type
// that was added whole has no effect.
func (f *Filter) AddField(typeName, field string) *Filter {
	fields, ok := f.types[typeName]
	if ok && fields == nil {
		return f
	}
	if fields == nil {
		fields = make(map[string]struct{})
		f.types[typeName] = fields
	}
	fields[field] = struct{}{}
	return f
}

// IncludesType reports whether any part of the type is loaded.
func (f *Filter) IncludesType(name string) bool {
	if f == nil {
		return true
	}
	fields, ok := f.types[name]
	if f.mode == Include {
		return ok
	}
	return !ok || fields != nil
}

// IncludesField reports whether a field of an included type is loaded.
func (f *Filter) IncludesField(typeName, field string) bool {
	if f == nil {
		return true
	}
	fields, ok := f.types[typeName]
	if !ok {
		return f.mode == Exclude
	}
	if fields == nil {
		return f.mode == Include
	}
	_, named := fields[field]
	return named == (f.mode == Include)
}

// restrictsFields reports whether the filter names individual fields of
// the type.
func (f *Filter) restrictsFields(typeName string) bool {
	if f == nil {
		return false
	}
	fields, ok := f.types[typeName]
	return ok && fields != nil
}

// String renders the filter as accepted by ParseFilter, for example
// "include:Movie,Actor.name".
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	var parts []string
	for _, name := range slices.Sorted(maps.Keys(f.types)) {
		fields := f.types[name]
		if fields == nil {
			parts = append(parts, name)
			continue
		}
		for _, field := range slices.Sorted(maps.Keys(fields)) {
			parts = append(parts, name+"."+field)
		}
	}
	return f.mode.String() + ":" + strings.Join(parts, ",")
}

// ParseFilter parses the form produced by Filter.String. Whitespace around
// entries is ignored.
func ParseFilter(s string) (*Filter, error) {
	modeStr, list, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return nil, errors.New("filter: missing mode prefix")
	}
	var f *Filter
	switch strings.TrimSpace(modeStr) {
	case "include":
		f = NewFilter(Include)
	case "exclude":
		f = NewFilter(Exclude)
	default:
		return nil, fmt.Errorf("filter: unknown mode %q", modeStr)
	}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		typeName, field, hasField := strings.Cut(entry, ".")
		if typeName == "" || (hasField && field == "") {
			return nil, fmt.Errorf("filter: invalid entry %q", entry)
		}
		if hasField {
			f.AddField(typeName, field)
		} else {
			f.AddType(typeName)
		}
	}
	return f, nil
}
