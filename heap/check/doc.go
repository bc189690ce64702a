// Package check walks a boundary-tag heap and locates structural
// corruption: overwritten size tags and broken free-list threading. The
// walk is read-only, bounds-checked end to end, and fail-fast: the first
// located fault ends the scan, because past that point the heap can no
// longer be trusted to describe itself.
package check
