package producer

import (
	"fmt"
	"slices"

	"github.com/hupe1980/stratum/internal/hash"
	"github.com/hupe1980/stratum/read"
)

// checksums hashes the populated ordinals and records of every type.
func checksums(e *read.Engine) map[string]uint64 {
	out := make(map[string]uint64)
	for _, name := range e.TypeNames() {
		ts, _ := e.TypeState(name)
		d := hash.NewDigest()
		for o := range ts.Ordinals() {
			rec, _ := ts.Record(o)
			d.AddRecord(o, rec)
		}
		out[name] = d.Sum64()
	}
	return out
}

// checkIntegrity verifies that the state reached by applying a delta is
// the state described by the snapshot of the same version.
func checkIntegrity(viaDelta, viaSnapshot *read.Engine) error {
	a, b := checksums(viaDelta), checksums(viaSnapshot)
	names := make([]string, 0, len(a)+len(b))
	for n := range a {
		names = append(names, n)
	}
	for n := range b {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range slices.Compact(names) {
		ha, okA := a[n]
		hb, okB := b[n]
		if okA != okB || ha != hb {
			return fmt.Errorf("%w: type %s differs between delta and snapshot", ErrIntegrity, n)
		}
	}
	return nil
}
