package alloc

import (
	"fmt"
	"sync"

	"github.com/heapkit/heapkit/heap"
	"github.com/heapkit/heapkit/internal/buf"
	"github.com/heapkit/heapkit/internal/format"
)

// Arena manages one region's storage: a leading sentinel, a span of
// allocated and free nodes, and a trailing end sentinel. The free list is
// doubly linked, address-ordered, and null-terminated.
type Arena struct {
	data   []byte
	base   uint32
	layout format.Layout

	start int // offset of the leading sentinel
	end   int // offset of the end sentinel

	// freeHead is the address of the first free node, format.NullLink when
	// the arena is fully allocated.
	freeHead uint32
}

// Format lays out fresh arena structure over data: sentinels at both ends
// and one spanning free node with null links. base is the region's load
// address.
func Format(data []byte, base uint32, layout format.Layout) (*Arena, error) {
	sentinel := format.Align8(layout.HeaderSize())
	end := (len(data) - format.NodeHeaderSize) &^ (format.Granularity - 1)
	if end < sentinel+layout.MinNodeSize() {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(data))
	}

	a := &Arena{data: data, base: base, layout: layout, start: 0, end: end}

	// Leading sentinel: allocated, no predecessor.
	a.putSize(a.start, uint32(sentinel))
	a.putPreceding(a.start, format.PackPreceding(0, true))

	// One free node spanning the rest of the usable span.
	free := sentinel
	freeSize := uint32(end - sentinel)
	a.putSize(free, freeSize)
	a.putPreceding(free, format.PackPreceding(uint32(sentinel), false))
	a.putFlink(free, format.NullLink)
	a.putBlink(free, format.NullLink)
	a.freeHead = a.addr(free)

	// End sentinel: allocated, terminates the walk.
	a.putSize(end, uint32(sentinel))
	a.putPreceding(end, format.PackPreceding(freeSize, true))

	return a, nil
}

// Region returns the arena as an inspectable heap region.
func (a *Arena) Region(lock sync.Locker) heap.Region {
	return heap.Region{
		Base:  a.base,
		Data:  a.data,
		Start: a.start,
		End:   a.end,
		Lock:  lock,
	}
}

// Alloc carves an allocated node holding at least size payload bytes and
// returns its address. First fit; when the fit leaves room for another
// minimum-size node the remainder stays free, otherwise the whole node is
// taken.
func (a *Arena) Alloc(size int) (uint32, error) {
	return a.AllocOwned(size, 0, 0)
}

// AllocOwned is Alloc with ownership metadata. owner and pc are recorded
// only when the arena layout carries extended headers.
func (a *Arena) AllocOwned(size int, owner, pc uint32) (uint32, error) {
	need := format.Align8(size + a.layout.HeaderSize())
	if need < a.layout.MinNodeSize() {
		need = a.layout.MinNodeSize()
	}

	for cur := a.freeHead; cur != format.NullLink; {
		off, ok := a.offsetOf(cur)
		if !ok {
			return 0, fmt.Errorf("%w: free list reaches 0x%08x", ErrBadAddr, cur)
		}
		nodeSize := int(a.size(off))
		if nodeSize < need {
			cur = a.flink(off)
			continue
		}

		a.unlink(off)
		if nodeSize-need >= a.layout.MinNodeSize() {
			a.split(off, need, nodeSize)
		}
		a.putPreceding(off, format.PackPreceding(a.precedingSize(off), true))
		if a.layout.Ownership {
			buf.PutU32LEAt(a.data, off+format.OwnerFieldOffset, owner)
			buf.PutU32LEAt(a.data, off+format.AllocPCFieldOffset, pc)
		}
		return a.addr(off), nil
	}
	return 0, fmt.Errorf("%w: need %d bytes", ErrNoSpace, need)
}

// split carves the tail of the free node at off into a new free node,
// leaving the front need bytes for the allocation.
func (a *Arena) split(off, need, nodeSize int) {
	rem := off + need
	remSize := uint32(nodeSize - need)

	a.putSize(off, uint32(need))
	a.putSize(rem, remSize)
	a.putPreceding(rem, format.PackPreceding(uint32(need), false))
	a.link(rem)

	// The node after the remainder records a new predecessor size.
	next := rem + int(remSize)
	a.putPreceding(next, format.PackPreceding(remSize, a.allocated(next)))
}

// Free returns the node at addr to the free list. Tags of neighbors are
// untouched: the allocation bit lives in the node's own preceding word.
// Adjacent free nodes are not merged; coalescing belongs to the allocator
// this harness stands in for.
func (a *Arena) Free(addr uint32) error {
	off, ok := a.offsetOf(addr)
	if !ok || off <= a.start || off >= a.end || off%format.Granularity != 0 {
		return fmt.Errorf("%w: 0x%08x", ErrBadAddr, addr)
	}
	if !a.allocated(off) {
		return fmt.Errorf("%w: 0x%08x", ErrNotAllocated, addr)
	}
	a.putPreceding(off, format.PackPreceding(a.precedingSize(off), false))
	a.link(off)
	return nil
}

// FreeHead returns the address of the first free node, or format.NullLink.
func (a *Arena) FreeHead() uint32 {
	return a.freeHead
}

// link inserts the free node at off into the address-ordered list.
func (a *Arena) link(off int) {
	addr := a.addr(off)

	prev := -1 // offset of the predecessor in list order, -1 for head
	for cur := a.freeHead; cur != format.NullLink && cur < addr; {
		curOff, _ := a.offsetOf(cur)
		prev = curOff
		cur = a.flink(curOff)
	}

	if prev < 0 {
		next := a.freeHead
		a.putFlink(off, next)
		a.putBlink(off, format.NullLink)
		if next != format.NullLink {
			nextOff, _ := a.offsetOf(next)
			a.putBlink(nextOff, addr)
		}
		a.freeHead = addr
		return
	}

	next := a.flink(prev)
	a.putFlink(off, next)
	a.putBlink(off, a.addr(prev))
	a.putFlink(prev, addr)
	if next != format.NullLink {
		nextOff, _ := a.offsetOf(next)
		a.putBlink(nextOff, addr)
	}
}

// unlink removes the free node at off from the list.
func (a *Arena) unlink(off int) {
	fl := a.flink(off)
	bl := a.blink(off)

	if bl == format.NullLink {
		a.freeHead = fl
	} else {
		blOff, _ := a.offsetOf(bl)
		a.putFlink(blOff, fl)
	}
	if fl != format.NullLink {
		flOff, _ := a.offsetOf(fl)
		a.putBlink(flOff, bl)
	}
	a.putFlink(off, format.NullLink)
	a.putBlink(off, format.NullLink)
}

// Raw field access. The arena owns its storage, so unlike the inspection
// side these helpers assume in-bounds offsets.

func (a *Arena) addr(off int) uint32 { return a.base + uint32(off) }

func (a *Arena) offsetOf(addr uint32) (int, bool) {
	if addr < a.base || uint64(addr) >= uint64(a.base)+uint64(len(a.data)) {
		return 0, false
	}
	return int(addr - a.base), true
}

func (a *Arena) size(off int) uint32 {
	v, _ := buf.U32LEAt(a.data, off+format.SizeFieldOffset)
	return v
}

func (a *Arena) precedingSize(off int) uint32 {
	v, _ := buf.U32LEAt(a.data, off+format.PrecedingFieldOffset)
	return format.PrevSize(v)
}

func (a *Arena) allocated(off int) bool {
	v, _ := buf.U32LEAt(a.data, off+format.PrecedingFieldOffset)
	return format.Allocated(v)
}

func (a *Arena) flink(off int) uint32 {
	v, _ := buf.U32LEAt(a.data, off+a.layout.FlinkOffset())
	return v
}

func (a *Arena) blink(off int) uint32 {
	v, _ := buf.U32LEAt(a.data, off+a.layout.BlinkOffset())
	return v
}

func (a *Arena) putSize(off int, v uint32) {
	buf.PutU32LEAt(a.data, off+format.SizeFieldOffset, v)
}

func (a *Arena) putPreceding(off int, v uint32) {
	buf.PutU32LEAt(a.data, off+format.PrecedingFieldOffset, v)
}

func (a *Arena) putFlink(off int, v uint32) {
	buf.PutU32LEAt(a.data, off+a.layout.FlinkOffset(), v)
}

func (a *Arena) putBlink(off int, v uint32) {
	buf.PutU32LEAt(a.data, off+a.layout.BlinkOffset(), v)
}
