// Package heap models a boundary-tag heap under inspection: one or more
// contiguous regions of raw node storage, plus the read-only accessors used
// to traverse and interpret nodes without trusting their contents.
//
// The package never mutates node storage. A node is identified by its byte
// offset within a region for the duration of one scan; the packed
// size/preceding encoding is interpreted only here and in internal/format,
// so a packing change has a single point of impact.
package heap
