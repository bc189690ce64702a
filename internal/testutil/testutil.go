// Package testutil builds heap region images for tests: formatted arenas,
// dump image files, and byte-level fault injection at known offsets.
package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/heapkit/heapkit/heap"
	"github.com/heapkit/heapkit/heap/alloc"
	"github.com/heapkit/heapkit/internal/buf"
	"github.com/heapkit/heapkit/internal/format"
)

// FormatRegion lays out a fresh arena over size bytes at load address base
// and returns it with its inspectable region view.
func FormatRegion(tb testing.TB, size int, base uint32, layout format.Layout, lock sync.Locker) (*alloc.Arena, heap.Region) {
	tb.Helper()
	a, err := alloc.Format(make([]byte, size), base, layout)
	if err != nil {
		tb.Fatalf("format %d-byte region: %v", size, err)
	}
	return a, a.Region(lock)
}

// MustAlloc allocates from the arena or fails the test.
func MustAlloc(tb testing.TB, a *alloc.Arena, size int) uint32 {
	tb.Helper()
	addr, err := a.Alloc(size)
	if err != nil {
		tb.Fatalf("alloc %d bytes: %v", size, err)
	}
	return addr
}

// MustFree frees addr or fails the test.
func MustFree(tb testing.TB, a *alloc.Arena, addr uint32) {
	tb.Helper()
	if err := a.Free(addr); err != nil {
		tb.Fatalf("free 0x%08x: %v", addr, err)
	}
}

// Corrupt32 overwrites the little-endian word at off in the region's data.
// Offsets are documented at the call site so each test names its exact
// byte-level corruption.
func Corrupt32(tb testing.TB, r heap.Region, off int, v uint32) {
	tb.Helper()
	if !buf.PutU32LEAt(r.Data, off, v) {
		tb.Fatalf("corrupt32: offset %d outside region (%d bytes)", off, len(r.Data))
	}
}

// WriteImage serializes regions into a dump image file under dir and
// returns its path.
func WriteImage(tb testing.TB, dir string, ownership bool, regions ...heap.Region) string {
	tb.Helper()
	path := filepath.Join(dir, "heap.img")
	if err := os.WriteFile(path, heap.EncodeImage(ownership, regions), 0o644); err != nil {
		tb.Fatalf("write image: %v", err)
	}
	return path
}
