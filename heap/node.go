package heap

import (
	"github.com/heapkit/heapkit/internal/buf"
	"github.com/heapkit/heapkit/internal/format"
)

// Node is a read-only view of one node header inside a region, valid for
// the duration of one scan. All reads are bounds-checked: a view over a
// corrupted heap can report garbage values but can never fault.
type Node struct {
	r      *Region
	off    int
	layout format.Layout
}

// NodeAt returns a view of the node at off within region ri. The second
// return is false when the base header is not fully inside the region's
// data, which is how the walk detects a size field pointing off the end of
// the arena.
func (h *Heap) NodeAt(ri, off int) (Node, bool) {
	r := &h.regions[ri]
	if !buf.Has(r.Data, off, format.NodeHeaderSize) {
		return Node{}, false
	}
	return Node{r: r, off: off, layout: h.layout}, true
}

// Offset returns the node's offset within its region.
func (n Node) Offset() int {
	return n.off
}

// Addr returns the node's address in the inspected system's address space.
func (n Node) Addr() uint32 {
	return n.r.Base + uint32(n.off)
}

// Size returns the node's declared total size, header included.
func (n Node) Size() uint32 {
	v, _ := buf.U32LEAt(n.r.Data, n.off+format.SizeFieldOffset)
	return v
}

// PrecedingSize returns the previous node's size recorded in this node's
// packed preceding word, with the allocation bit masked off.
func (n Node) PrecedingSize() uint32 {
	v, _ := buf.U32LEAt(n.r.Data, n.off+format.PrecedingFieldOffset)
	return format.PrevSize(v)
}

// Allocated reports whether the packed preceding word marks this node as
// allocated.
func (n Node) Allocated() bool {
	v, _ := buf.U32LEAt(n.r.Data, n.off+format.PrecedingFieldOffset)
	return format.Allocated(v)
}

// Free reports whether this node is on the free side of the allocation
// bit.
func (n Node) Free() bool {
	return !n.Allocated()
}

// NextOffset returns the offset of the successor computed from this node's
// declared size. The result is not validated; callers must re-enter
// through NodeAt.
func (n Node) NextOffset() int {
	next, ok := buf.AddOverflowSafe(n.off, int(n.Size()))
	if !ok {
		return len(n.r.Data) // past every valid node; NodeAt rejects it
	}
	return next
}

// Flink returns a free node's forward link address. The second return is
// false when the link field is not readable within the region.
func (n Node) Flink() (uint32, bool) {
	return buf.U32LEAt(n.r.Data, n.off+n.layout.FlinkOffset())
}

// Blink returns a free node's backward link address. The second return is
// false when the link field is not readable within the region.
func (n Node) Blink() (uint32, bool) {
	return buf.U32LEAt(n.r.Data, n.off+n.layout.BlinkOffset())
}

// Owner returns the owning task id from an extended header. False when the
// layout carries no ownership info or the field is unreadable.
func (n Node) Owner() (uint32, bool) {
	if !n.layout.Ownership {
		return 0, false
	}
	return buf.U32LEAt(n.r.Data, n.off+format.OwnerFieldOffset)
}

// AllocPC returns the address of the code that performed the allocation,
// from an extended header. False when unavailable.
func (n Node) AllocPC() (uint32, bool) {
	if !n.layout.Ownership {
		return 0, false
	}
	return buf.U32LEAt(n.r.Data, n.off+format.AllocPCFieldOffset)
}
