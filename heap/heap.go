package heap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/heapkit/heapkit/internal/format"
)

// Region is one contiguous span of heap storage. Start addresses the first
// node; End is the offset of the trailing end sentinel, one past the last
// node the walk visits. Data must cover the sentinel's header so the last
// real node's forward tag can be checked.
type Region struct {
	// Base is the load address of Data[0] in the inspected system's
	// address space. Link fields and diagnostics speak addresses, not
	// offsets.
	Base uint32

	// Data is the raw region storage. Borrowed, never mutated.
	Data []byte

	// Start and End are node offsets within Data.
	Start int
	End   int

	// Lock is the region's exclusion primitive. Nil for offline images.
	Lock sync.Locker
}

// Heap is an ordered, fixed-size sequence of regions sharing one node
// layout. The sequence is set at construction and immutable afterwards.
type Heap struct {
	regions []Region
	opts    Options
	layout  format.Layout
	cleanup func() error
}

var (
	// ErrNoRegions indicates construction with an empty region sequence.
	ErrNoRegions = errors.New("heap: no regions")

	// ErrBadRegion indicates a region whose bounds cannot describe a
	// walkable node span.
	ErrBadRegion = errors.New("heap: bad region bounds")
)

// New builds a heap over the given regions. Region bounds are validated
// structurally (node contents are not: that is the checker's job).
func New(opts Options, regions ...Region) (*Heap, error) {
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}
	opts.resolve()
	layout := format.Layout{Ownership: opts.ExtendedDiagnostics}
	for i, r := range regions {
		if err := checkRegionBounds(r, layout); err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
	}
	return &Heap{regions: regions, opts: opts, layout: layout}, nil
}

func checkRegionBounds(r Region, layout format.Layout) error {
	if r.Start < 0 || r.End <= r.Start {
		return fmt.Errorf("%w: start=%d end=%d", ErrBadRegion, r.Start, r.End)
	}
	if r.Start%format.Granularity != 0 || r.End%format.Granularity != 0 {
		return fmt.Errorf("%w: unaligned start=%d end=%d", ErrBadRegion, r.Start, r.End)
	}
	// The end sentinel's header must be readable.
	if r.End+format.NodeHeaderSize > len(r.Data) {
		return fmt.Errorf("%w: end=%d exceeds data length %d", ErrBadRegion, r.End, len(r.Data))
	}
	if r.Start+layout.MinNodeSize() > r.End {
		return fmt.Errorf("%w: no room for a node between start=%d and end=%d", ErrBadRegion, r.Start, r.End)
	}
	return nil
}

// NumRegions returns the number of regions.
func (h *Heap) NumRegions() int {
	return len(h.regions)
}

// Region returns region i. The returned value shares the region's storage.
func (h *Heap) Region(i int) *Region {
	return &h.regions[i]
}

// Layout returns the node geometry in effect for this heap.
func (h *Heap) Layout() format.Layout {
	return h.layout
}

// Resolve maps an address to the region containing it and the offset
// within that region's data. Used to follow free-list link fields without
// dereferencing anything outside the arena.
func (h *Heap) Resolve(addr uint32) (region, off int, ok bool) {
	for i := range h.regions {
		r := &h.regions[i]
		if addr >= r.Base && uint64(addr) < uint64(r.Base)+uint64(len(r.Data)) {
			return i, int(addr - r.Base), true
		}
	}
	return 0, 0, false
}

// Close releases resources held by an image-backed heap. No-op for heaps
// built over caller-owned storage.
func (h *Heap) Close() error {
	if h.cleanup == nil {
		return nil
	}
	c := h.cleanup
	h.cleanup = nil
	return c()
}
