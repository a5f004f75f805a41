package schema

// Sort returns schemas ordered so every type appears after the types it
// references. Referenced types missing from schemas are ignored. Among
// independent types the input order is kept.
func Sort(schemas []Schema) []Schema {
	byName := ByName(schemas)
	visited := make(map[string]bool, len(schemas))
	out := make([]Schema, 0, len(schemas))

	var visit func(s Schema)
	visit = func(s Schema) {
		if visited[s.Name()] {
			return
		}
		visited[s.Name()] = true
		for _, dep := range s.Dependencies() {
			if d, ok := byName[dep]; ok {
				visit(d)
			}
		}
		out = append(out, s)
	}

	for _, s := range schemas {
		visit(s)
	}
	return out
}

// TransitivelyDependent reports whether type from references type to,
// directly or through other types present in schemas.
func TransitivelyDependent(schemas []Schema, from, to string) bool {
	byName := ByName(schemas)
	seen := make(map[string]bool)

	var walk func(name string) bool
	walk = func(name string) bool {
		s, ok := byName[name]
		if !ok || seen[name] {
			return false
		}
		seen[name] = true
		for _, dep := range s.Dependencies() {
			if dep == to || walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(from)
}
