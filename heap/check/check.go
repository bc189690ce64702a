package check

import (
	"fmt"

	"github.com/heapkit/heapkit/heap"
	"github.com/heapkit/heapkit/heap/lockctx"
	"github.com/heapkit/heapkit/pkg/types"
)

// Corruption walks every region of h and reports 0 when all invariants
// hold, -1 when corruption was found. Diagnostic detail is delivered
// through the heap's configured output sink only; the return value is the
// sole programmatic result. A nil heap is a fatal precondition violation.
func Corruption(h *heap.Heap) int {
	if Scan(h).Clean() {
		return 0
	}
	return -1
}

// Scan is Corruption with a structured result: the number of regions
// scanned and the first fault found, if any. Diagnostics are emitted to
// the heap's sink as a side effect, exactly as Corruption does.
func Scan(h *heap.Heap) *types.Report {
	if h == nil {
		panic("check: nil heap")
	}
	c := &checker{h: h, rep: newReporter(h)}
	report := &types.Report{}

	// Each region takes and drops its own lock so no lock is held across
	// more than one region's scan. In interrupt context no lock is taken
	// at all; a concurrent mutation can then yield a false positive.
	for ri := 0; ri < h.NumRegions(); ri++ {
		report.RegionsScanned = ri + 1
		var fault *types.Fault
		_ = lockctx.WithRegionLock(h.Region(ri).Lock, h.InInterrupt(), func() error {
			fault = c.scanRegion(ri)
			if fault != nil {
				c.rep.emit(fault)
			}
			return nil
		})
		if fault != nil {
			report.Fault = fault
			return report
		}
	}
	return report
}

type checker struct {
	h   *heap.Heap
	rep *reporter
}

// scanRegion runs the front-to-back walk over region ri and returns the
// first fault, or nil. Called with the region's lock held (unless in
// interrupt context).
//
// The two tag invariants compare the same node pair from opposite sides,
// so a bare pair mismatch is directionally ambiguous. Attribution key:
//
//   - Successor still chains forward cleanly: the successor's preceding
//     word is the lone inconsistent datum. The mismatch is left for the
//     next iteration's backward check and reported as BackwardTagMismatch
//     with a single attribution.
//   - Successor does not chain (garbage size, unreadable header, or the
//     end sentinel disagrees): either this node overflowed forward or its
//     own tag was destroyed from behind. Reported as ForwardTagMismatch
//     with both candidate attributions; no single culprit is picked.
func (c *checker) scanRegion(ri int) *types.Fault {
	r := c.h.Region(ri)

	var prev *heap.Node
	node, ok := c.h.NodeAt(ri, r.Start)
	if !ok {
		// Region bounds are validated at construction; an unreadable first
		// node means the region table itself lied about its span.
		return &types.Fault{
			Kind:      types.ForwardTagMismatch,
			Region:    ri,
			Scenarios: []types.Scenario{{Corrupted: &types.NodeInfo{Addr: r.Base + uint32(r.Start)}}},
			Detail:    fmt.Sprintf("first node header unreadable at 0x%08x", r.Base+uint32(r.Start)),
		}
	}

	for node.Offset() < r.End {
		if prev != nil && prev.Size() != node.PrecedingSize() {
			return &types.Fault{
				Kind:      types.BackwardTagMismatch,
				Region:    ri,
				Scenarios: []types.Scenario{{Overflowed: c.info(*prev), Corrupted: c.info(node)}},
				Detail: fmt.Sprintf("predecessor size %d does not match recorded preceding size %d",
					prev.Size(), node.PrecedingSize()),
			}
		}

		// A size below the header size (or off granularity) cannot address
		// a successor at all; the chain is broken at this node's forward
		// tag. Checking it first also keeps the walk from spinning on a
		// zero size.
		if !c.legalSize(node.Size()) {
			return c.forwardFault(ri, prev, node, nil,
				fmt.Sprintf("declared size %d is not a legal node size", node.Size()))
		}

		next, nextOK := c.h.NodeAt(ri, node.NextOffset())
		if !nextOK || node.NextOffset() > r.End {
			nextAddr := r.Base + uint32(node.NextOffset())
			var nextInfo *types.NodeInfo
			if nextOK {
				nextInfo = c.info(next)
			} else {
				nextInfo = &types.NodeInfo{Addr: nextAddr}
			}
			return c.forwardFault(ri, prev, node, nextInfo,
				fmt.Sprintf("successor at 0x%08x falls outside the region's node span", nextAddr))
		}

		if node.Size() != next.PrecedingSize() && !c.chainsForward(ri, next, r.End) {
			return c.forwardFault(ri, prev, node, c.info(next),
				fmt.Sprintf("size %d does not match successor's recorded preceding size %d",
					node.Size(), next.PrecedingSize()))
		}

		if node.Free() {
			if fault := c.checkFreeLinks(ri, prev, node); fault != nil {
				return fault
			}
		}

		cur := node
		prev = &cur
		node = next
	}
	return nil
}

func (c *checker) legalSize(size uint32) bool {
	return size >= uint32(c.h.Layout().HeaderSize()) && size%8 == 0
}

// chainsForward reports whether n's own size field lands on a header that
// records n as its predecessor. True means n is self-consistent on its
// forward side, so a pair mismatch against n indicts n's preceding word
// alone. The end sentinel never chains (nothing is walked beyond it).
func (c *checker) chainsForward(ri int, n heap.Node, end int) bool {
	if n.Offset() >= end {
		return false
	}
	if !c.legalSize(n.Size()) {
		return false
	}
	after, ok := c.h.NodeAt(ri, n.NextOffset())
	if !ok || n.NextOffset() > end {
		return false
	}
	return after.PrecedingSize() == n.Size()
}

// forwardFault builds the two-scenario ForwardTagMismatch report: either
// node overflowed forward into next's tag, or node's own tag was destroyed
// by prev.
func (c *checker) forwardFault(ri int, prev *heap.Node, node heap.Node, next *types.NodeInfo, detail string) *types.Fault {
	var prevInfo *types.NodeInfo
	if prev != nil {
		prevInfo = c.info(*prev)
	}
	return &types.Fault{
		Kind:   types.ForwardTagMismatch,
		Region: ri,
		Scenarios: []types.Scenario{
			{Overflowed: c.info(node), Corrupted: next},
			{Overflowed: prevInfo, Corrupted: c.info(node)},
		},
		Detail: detail,
	}
}

// checkFreeLinks verifies free-list symmetry for a free node: a non-null
// blink must link forward to the node, and a non-null flink must link back
// to it. Link targets are resolved through the region table; an address
// outside every region is itself a mismatch.
func (c *checker) checkFreeLinks(ri int, prev *heap.Node, node heap.Node) *types.Fault {
	addr := node.Addr()

	if blink, ok := node.Blink(); ok && blink != 0 {
		target, targetOK := c.resolveLink(blink)
		if !targetOK {
			return c.freeListFault(types.FreeListBackLinkMismatch, ri, prev, node,
				fmt.Sprintf("blink(0x%08x) does not address a node in any region", blink))
		}
		if tf, _ := target.Flink(); tf != addr {
			return c.freeListFault(types.FreeListBackLinkMismatch, ri, prev, node,
				fmt.Sprintf("corrupted node blink(0x%08x) and prev free node flink(0x%08x) do not match", blink, tf))
		}
	}

	if flink, ok := node.Flink(); ok && flink != 0 {
		target, targetOK := c.resolveLink(flink)
		if !targetOK {
			return c.freeListFault(types.FreeListForwardLinkMismatch, ri, prev, node,
				fmt.Sprintf("flink(0x%08x) does not address a node in any region", flink))
		}
		if tb, _ := target.Blink(); tb != addr {
			return c.freeListFault(types.FreeListForwardLinkMismatch, ri, prev, node,
				fmt.Sprintf("corrupted node flink(0x%08x) and next free node blink(0x%08x) do not match", flink, tb))
		}
	}
	return nil
}

func (c *checker) freeListFault(kind types.Kind, ri int, prev *heap.Node, node heap.Node, detail string) *types.Fault {
	var prevInfo *types.NodeInfo
	if prev != nil {
		prevInfo = c.info(*prev)
	}
	return &types.Fault{
		Kind:      kind,
		Region:    ri,
		Scenarios: []types.Scenario{{Overflowed: prevInfo, Corrupted: c.info(node)}},
		Detail:    detail,
	}
}

// resolveLink maps a link address to a node view, without trusting the
// address.
func (c *checker) resolveLink(addr uint32) (heap.Node, bool) {
	ri, off, ok := c.h.Resolve(addr)
	if !ok {
		return heap.Node{}, false
	}
	return c.h.NodeAt(ri, off)
}

// info snapshots a node header for the report.
func (c *checker) info(n heap.Node) *types.NodeInfo {
	ni := &types.NodeInfo{
		Addr:          n.Addr(),
		Size:          n.Size(),
		PrecedingSize: n.PrecedingSize(),
		Allocated:     n.Allocated(),
	}
	if owner, ok := n.Owner(); ok {
		ni.Owner = owner
	}
	if pc, ok := n.AllocPC(); ok {
		ni.AllocPC = pc
	}
	return ni
}
