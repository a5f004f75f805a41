// Package read implements the consumer side state engine.
//
// An Engine holds one version of a dataset. Snapshots replace the loaded
// state; deltas and reverse deltas move it to an adjacent version. Every
// transition is decoded and validated in full before the new state is
// published, so a damaged blob leaves the engine at the last good version.
//
// Records removed by a transition remain readable as ghosts until the next
// transition, which lets readers that captured an ordinal before the
// transition finish their work.
package read
