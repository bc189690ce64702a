package check

import (
	"fmt"
	"io"

	"github.com/heapkit/heapkit/heap"
	"github.com/heapkit/heapkit/heap/taskreg"
	"github.com/heapkit/heapkit/pkg/types"
)

const (
	hardRule = "#########################################################################################"
	softRule = "========================================================================================="
)

// reporter formats fault blocks to the heap's diagnostic sink. It is a
// pure observability side channel: it never mutates the heap, never
// affects the scan result, and swallows sink write errors.
type reporter struct {
	w          io.Writer
	registry   taskreg.Registry
	ownership  bool
	maxNameLen int
}

func newReporter(h *heap.Heap) *reporter {
	return &reporter{
		w:          h.Output(),
		registry:   h.Registry(),
		ownership:  h.ExtendedDiagnostics(),
		maxNameLen: h.MaxTaskNameLen(),
	}
}

// emit writes one multi-line diagnostic block for the fault.
func (rp *reporter) emit(f *types.Fault) {
	fmt.Fprintln(rp.w, hardRule)
	switch f.Kind {
	case types.FreeListBackLinkMismatch, types.FreeListForwardLinkMismatch:
		fmt.Fprintln(rp.w, "ERROR: heap node corruption detected in free node list")
	default:
		fmt.Fprintln(rp.w, "ERROR: heap node corruption detected")
	}

	if len(f.Scenarios) > 1 {
		for i, s := range f.Scenarios {
			fmt.Fprintln(rp.w, softRule)
			fmt.Fprintf(rp.w, "Possible corruption scenario %d:\n", i+1)
			fmt.Fprintln(rp.w, softRule)
			rp.dumpScenario(s)
		}
	} else if len(f.Scenarios) == 1 {
		rp.dumpScenario(f.Scenarios[0])
	}

	if f.Detail != "" {
		fmt.Fprintln(rp.w, f.Detail)
	}
	fmt.Fprintln(rp.w, hardRule)
}

func (rp *reporter) dumpScenario(s types.Scenario) {
	rp.dumpNode(s.Overflowed, types.RoleOverflowed)
	rp.dumpNode(s.Corrupted, types.RoleCorrupted)
}

// dumpNode prints one node line plus, with ownership diagnostics enabled,
// the owner line. A nil node means the walk had no candidate in that role
// (e.g. the first node has no predecessor).
func (rp *reporter) dumpNode(ni *types.NodeInfo, role types.Role) {
	if ni == nil {
		fmt.Fprintf(rp.w, "%s NODE: (none)\n", role)
		return
	}
	switch role {
	case types.RoleCorrupted:
		fmt.Fprintf(rp.w, "CORRUPTED NODE: addr = 0x%08x size = %d preceding size = %d\n",
			ni.Addr, ni.Size, ni.PrecedingSize)
	case types.RoleOverflowed:
		state := 'F'
		if ni.Allocated {
			state = 'A'
		}
		fmt.Fprintf(rp.w, "OVERFLOWED NODE: addr = 0x%08x size = %d type = %c\n",
			ni.Addr, ni.Size, state)
	}
	if rp.ownership {
		rp.dumpOwner(ni)
	}
}

func (rp *reporter) dumpOwner(ni *types.NodeInfo) {
	if rp.registry != nil {
		if name, ok := rp.registry.Lookup(ni.Owner); ok {
			fmt.Fprintf(rp.w, "Node owner id = %d (%s), allocated by code at addr = 0x%08x\n",
				ni.Owner, taskreg.Clamp(name, rp.maxNameLen), ni.AllocPC)
			return
		}
		// The owning task is gone; keep the line rather than failing.
		fmt.Fprintf(rp.w, "Node owner id = %d (exited task), allocated by code at addr = 0x%08x\n",
			ni.Owner, ni.AllocPC)
		return
	}
	fmt.Fprintf(rp.w, "Node owner id = %d, allocated by code at addr = 0x%08x\n",
		ni.Owner, ni.AllocPC)
}
