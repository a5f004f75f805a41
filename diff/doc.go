// Package diff relates the ordinals of two independently produced datasets.
//
// Ordinals are local to a producer, so two datasets holding the same
// records may number them differently. Match walks the types of two read
// engines in dependency order and records which ordinals hold equal
// records, translating references through the maps of the types they
// point to.
package diff
