// Package alloc is a reference boundary-tag allocator over a single region
// image. It exists so tests and tools can build heaps whose tags and free
// list are maintained the way a real allocator maintains them; it is
// deliberately simple (first-fit, no coalescing) and is not the kernel
// allocator the checker protects.
package alloc
