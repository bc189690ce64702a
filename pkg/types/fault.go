package types

import "fmt"

// Kind classifies a detected heap integrity fault.
type Kind uint8

const (
	// BackwardTagMismatch: a node's recorded predecessor size disagrees
	// with the predecessor's actual size.
	BackwardTagMismatch Kind = iota + 1

	// ForwardTagMismatch: a node's size disagrees with its successor's
	// recorded predecessor size. Reported with two alternative
	// attributions, since either side may be the one that was overwritten.
	ForwardTagMismatch

	// FreeListBackLinkMismatch: a free node's blink target does not link
	// forward to it.
	FreeListBackLinkMismatch

	// FreeListForwardLinkMismatch: a free node's flink target does not
	// link back to it.
	FreeListForwardLinkMismatch
)

// String returns the canonical name of the fault kind.
func (k Kind) String() string {
	switch k {
	case BackwardTagMismatch:
		return "BackwardTagMismatch"
	case ForwardTagMismatch:
		return "ForwardTagMismatch"
	case FreeListBackLinkMismatch:
		return "FreeListBackLinkMismatch"
	case FreeListForwardLinkMismatch:
		return "FreeListForwardLinkMismatch"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Role describes how a node participates in a fault.
type Role uint8

const (
	// RoleOverflowed marks the node suspected of writing past its declared
	// size.
	RoleOverflowed Role = iota + 1

	// RoleCorrupted marks the node whose metadata is inconsistent.
	RoleCorrupted
)

// String returns the display name used in diagnostic output.
func (r Role) String() string {
	switch r {
	case RoleOverflowed:
		return "OVERFLOWED"
	case RoleCorrupted:
		return "CORRUPTED"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// NodeInfo is a snapshot of one node's header, taken at fault time.
// Addresses are in the inspected heap's own address space.
type NodeInfo struct {
	Addr          uint32 `json:"addr"`
	Size          uint32 `json:"size"`
	PrecedingSize uint32 `json:"preceding_size"`
	Allocated     bool   `json:"allocated"`

	// Owner and AllocPC are populated only when the heap carries extended
	// ownership headers.
	Owner   uint32 `json:"owner,omitempty"`
	AllocPC uint32 `json:"alloc_pc,omitempty"`
}

// Scenario is one candidate explanation for a fault: which node overflowed
// and which node's metadata it destroyed. Either side may be nil when the
// walk has no candidate for it (e.g. the first node has no predecessor).
type Scenario struct {
	Overflowed *NodeInfo `json:"overflowed,omitempty"`
	Corrupted  *NodeInfo `json:"corrupted,omitempty"`
}

// Fault is the first integrity violation located by a scan. A
// ForwardTagMismatch carries two scenarios; every other kind carries one.
type Fault struct {
	Kind      Kind       `json:"kind"`
	Region    int        `json:"region"`
	Scenarios []Scenario `json:"scenarios"`

	// Detail holds kind-specific evidence, such as the pair of link
	// addresses that failed to match.
	Detail string `json:"detail,omitempty"`
}

// Error implements error so a Fault can travel through error-returning
// plumbing (the CLI uses this); the checker itself reports faults through
// the Report, not the error channel.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s in region %d: %s", f.Kind, f.Region, f.Detail)
}

// Report is the structured result of one corruption scan.
type Report struct {
	// RegionsScanned counts regions fully validated before the scan ended,
	// plus the faulting region when Fault is set.
	RegionsScanned int `json:"regions_scanned"`

	// Fault is nil for a clean heap.
	Fault *Fault `json:"fault,omitempty"`
}

// Clean reports whether the scan found no fault.
func (r *Report) Clean() bool {
	return r.Fault == nil
}
