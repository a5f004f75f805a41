// Package write implements the producer side state engine.
//
// Each registered type keeps the records of the previous and the current
// cycle, indexed by content so that an unchanged record keeps its ordinal
// from cycle to cycle. Ordinals of records that left the population are
// reused only after one full cycle, so consumers can still read them as
// ghosts while the removing delta is being applied.
//
// A cycle looks like:
//
//	e.PrepareForNextCycle()
//	e.Add("Movie", movie)
//	e.PrepareForWrite()
//	e.WriteSnapshot(w, version)      // or WriteDelta / WriteReverseDelta
package write
