// Package schema defines the record types a stratum dataset is made of.
//
// A schema is one of four closed variants:
//
//   - ObjectSchema: named, typed fields (int, long, boolean, float, double,
//     string, bytes, reference) with an optional primary key
//   - ListSchema: ordered element references
//   - SetSchema: unordered element references with an optional hash key
//   - MapSchema: key to value references with an optional hash key
//
// References point at records of another type by ordinal, so cyclic type
// graphs never create ownership cycles. Sort orders schemas so every type
// follows the types it references, which is the order in which blobs are
// written and applied.
package schema
