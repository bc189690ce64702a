// Package format houses the low-level layout of boundary-tag heap nodes and
// of the heap dump image container. The goal is to keep the byte-level
// packing in one place so higher-level packages never interpret the packed
// preceding word themselves.
package format
