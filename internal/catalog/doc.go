// Package catalog is the compiled, read-only form of a rule set.
//
// A Catalog is a flat array of Rules plus a flat array of FactTests. Each
// rule owns one contiguous block of tests, ordered by OR-group so that the
// members of a group sit next to each other. Keeping everything flat lets
// the matcher walk a rule with a single index loop and no pointer chasing.
//
// Rules are sorted by (bucket order, test count descending) and split into
// BucketSlices: contiguous index ranges that a caller can scan on their own.
// The descending test count inside a bucket is what makes best-score pruning
// effective, because the first rules scanned set the bar highest.
//
// Build is the single entry point used by the engine: it validates a
// Catalog, voids it on a fatal problem, sorts, partitions and indexes it.
package catalog
