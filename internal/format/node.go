package format

const (
	// Granularity is the allocation granularity in bytes. Every node size is
	// a positive multiple of this.
	Granularity = 8

	// NodeHeaderSize is the size of the base node header: a 4-byte total
	// size followed by the 4-byte packed preceding word.
	NodeHeaderSize = 8

	// OwnerInfoSize is the extra header carried by every node when extended
	// ownership diagnostics are enabled: a 4-byte owner task id and the
	// 4-byte address of the allocating code.
	OwnerInfoSize = 8

	// LinkSize is the space taken by the flink/blink pair on a free node.
	LinkSize = 8

	// AllocBit is the top bit of the preceding word. Set means this node is
	// currently allocated; the remaining bits hold the previous node's size.
	AllocBit = 0x80000000

	// SizeMask extracts the previous node's size from the preceding word.
	SizeMask = 0x7FFFFFFF

	// NullLink is the null value for flink/blink address fields.
	NullLink = 0
)

// Field offsets within a node, relative to the node start.
const (
	SizeFieldOffset      = 0
	PrecedingFieldOffset = 4
	OwnerFieldOffset     = 8
	AllocPCFieldOffset   = 12
)

const granularityMask = Granularity - 1

// Align8 returns n aligned up to the next allocation-granularity boundary.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n int) int {
	return (n + granularityMask) & ^granularityMask
}

// PrevSize decodes the previous node's size from a packed preceding word.
func PrevSize(preceding uint32) uint32 {
	return preceding & SizeMask
}

// Allocated reports whether the packed preceding word marks the node as
// allocated.
func Allocated(preceding uint32) bool {
	return preceding&AllocBit != 0
}

// PackPreceding builds a preceding word from the previous node's size and
// the node's allocation state.
func PackPreceding(prevSize uint32, allocated bool) uint32 {
	w := prevSize & SizeMask
	if allocated {
		w |= AllocBit
	}
	return w
}

// Layout resolves the node geometry implied by the build configuration.
// With ownership diagnostics enabled every header grows by OwnerInfoSize
// and the free-list links shift behind it.
type Layout struct {
	Ownership bool
}

// HeaderSize returns the per-node header size for this layout.
func (l Layout) HeaderSize() int {
	if l.Ownership {
		return NodeHeaderSize + OwnerInfoSize
	}
	return NodeHeaderSize
}

// FlinkOffset returns the offset of a free node's forward link.
func (l Layout) FlinkOffset() int {
	return l.HeaderSize()
}

// BlinkOffset returns the offset of a free node's backward link.
func (l Layout) BlinkOffset() int {
	return l.HeaderSize() + 4
}

// MinNodeSize returns the smallest legal node size for this layout: a free
// node must be able to hold its header plus both list links.
func (l Layout) MinNodeSize() int {
	return Align8(l.HeaderSize() + LinkSize)
}
