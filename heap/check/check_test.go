package check_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapkit/heapkit/heap"
	"github.com/heapkit/heapkit/heap/alloc"
	"github.com/heapkit/heapkit/heap/check"
	"github.com/heapkit/heapkit/heap/taskreg"
	"github.com/heapkit/heapkit/internal/format"
	"github.com/heapkit/heapkit/internal/testutil"
	"github.com/heapkit/heapkit/pkg/types"
)

// Fault-injection tests corrupt specific header words at documented
// offsets. Base layout geometry used throughout (region base b):
//
//	b+0x00  sentinel  size=8
//	b+0x08  first allocation (Alloc carves front-first)
//	...
//	b+len-8 end sentinel (aligned down)

const base1 = 0x10000000

func mkArena(t *testing.T, size int, base uint32) *alloc.Arena {
	t.Helper()
	a, _ := testutil.FormatRegion(t, size, base, format.Layout{}, nil)
	return a
}

func mkHeap(t *testing.T, diag *bytes.Buffer, regions ...heap.Region) *heap.Heap {
	t.Helper()
	h, err := heap.New(heap.Options{Output: diag}, regions...)
	require.NoError(t, err)
	return h
}

func corrupt32(t *testing.T, r heap.Region, off int, v uint32) {
	t.Helper()
	testutil.Corrupt32(t, r, off, v)
}

func TestCleanSingleFreeRegion(t *testing.T) {
	// One region holding exactly one spanning free node with null links.
	a := mkArena(t, 256, base1)
	var diag bytes.Buffer
	h := mkHeap(t, &diag, a.Region(nil))

	report := check.Scan(h)
	assert.True(t, report.Clean())
	assert.Equal(t, 1, report.RegionsScanned)
	assert.Equal(t, 0, check.Corruption(h))
	assert.Empty(t, diag.String(), "a clean heap produces no output")
}

func TestCleanSplitRegion(t *testing.T) {
	// An allocated 64-byte node followed by the free remainder.
	a := mkArena(t, 256, base1)
	addr, err := a.Alloc(56)
	require.NoError(t, err)
	require.Equal(t, uint32(base1+8), addr)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, a.Region(nil))
	assert.Equal(t, 0, check.Corruption(h))
	assert.Empty(t, diag.String())
}

func TestCleanMultiRegion(t *testing.T) {
	a1 := mkArena(t, 512, base1)
	a2 := mkArena(t, 512, 0x20000000)
	for _, a := range []*alloc.Arena{a1, a2} {
		n1, err := a.Alloc(24)
		require.NoError(t, err)
		_, err = a.Alloc(40)
		require.NoError(t, err)
		require.NoError(t, a.Free(n1))
	}

	var diag bytes.Buffer
	h := mkHeap(t, &diag, a1.Region(nil), a2.Region(nil))
	report := check.Scan(h)
	assert.True(t, report.Clean())
	assert.Equal(t, 2, report.RegionsScanned)
	assert.Empty(t, diag.String())
}

func TestCheckIsIdempotentAndReadOnly(t *testing.T) {
	a := mkArena(t, 512, base1)
	n1, err := a.Alloc(24)
	require.NoError(t, err)
	_, err = a.Alloc(40)
	require.NoError(t, err)
	require.NoError(t, a.Free(n1))

	region := a.Region(nil)
	snapshot := append([]byte(nil), region.Data...)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	assert.Equal(t, 0, check.Corruption(h))
	assert.Equal(t, 0, check.Corruption(h))
	assert.Equal(t, snapshot, region.Data, "the walk must not move a single bit")
}

func TestBackwardTagMismatch(t *testing.T) {
	// Nodes A (size 32) then B; B's preceding-size bits overwritten.
	a := mkArena(t, 256, base1)
	nA, err := a.Alloc(24) // b+0x08, size 32
	require.NoError(t, err)
	nB, err := a.Alloc(24) // b+0x28, size 32
	require.NoError(t, err)

	region := a.Region(nil)
	// Corruption: offset 0x2C, B's preceding word -> pack(16, allocated).
	corrupt32(t, region, 0x2C, format.PackPreceding(16, true))

	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	report := check.Scan(h)

	require.False(t, report.Clean())
	require.Equal(t, types.BackwardTagMismatch, report.Fault.Kind)
	require.Len(t, report.Fault.Scenarios, 1)
	assert.Equal(t, nA, report.Fault.Scenarios[0].Overflowed.Addr)
	assert.Equal(t, nB, report.Fault.Scenarios[0].Corrupted.Addr)

	assert.Equal(t, -1, check.Corruption(h))
	out := diag.String()
	assert.Contains(t, out, "ERROR: heap node corruption detected")
	assert.Contains(t, out, fmt.Sprintf("OVERFLOWED NODE: addr = 0x%08x", nA))
	assert.Contains(t, out, fmt.Sprintf("CORRUPTED NODE: addr = 0x%08x", nB))
}

func TestForwardTagMismatch(t *testing.T) {
	// Nodes A, B, C; B's size corrupted so it no longer chains to C.
	a := mkArena(t, 256, base1)
	nA, err := a.Alloc(24) // b+0x08
	require.NoError(t, err)
	nB, err := a.Alloc(24) // b+0x28
	require.NoError(t, err)
	_, err = a.Alloc(24) // C at b+0x48
	require.NoError(t, err)

	region := a.Region(nil)
	// Corruption: offset 0x28, B's size 32 -> 48. The computed successor
	// lands mid-C, where no header chains.
	corrupt32(t, region, 0x28, 48)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	report := check.Scan(h)

	require.False(t, report.Clean())
	require.Equal(t, types.ForwardTagMismatch, report.Fault.Kind)
	require.Len(t, report.Fault.Scenarios, 2, "both attributions are kept")

	// Scenario 1: B overflowed into its computed successor's tag.
	assert.Equal(t, nB, report.Fault.Scenarios[0].Overflowed.Addr)
	assert.Equal(t, nB+48, report.Fault.Scenarios[0].Corrupted.Addr)
	// Scenario 2: A overflowed into B's tag.
	assert.Equal(t, nA, report.Fault.Scenarios[1].Overflowed.Addr)
	assert.Equal(t, nB, report.Fault.Scenarios[1].Corrupted.Addr)

	out := diag.String()
	assert.Contains(t, out, "Possible corruption scenario 1:")
	assert.Contains(t, out, "Possible corruption scenario 2:")
}

// freeListFixture builds alloc pattern A,B,C then frees A and C, producing
// two non-adjacent free nodes threaded with the trailing free remainder.
func freeListFixture(t *testing.T) (*alloc.Arena, uint32, uint32) {
	t.Helper()
	a := mkArena(t, 256, base1)
	nA := testutil.MustAlloc(t, a, 24) // b+0x08
	testutil.MustAlloc(t, a, 24)       // B stays allocated, b+0x28
	nC := testutil.MustAlloc(t, a, 24) // b+0x48
	testutil.MustFree(t, a, nA)
	testutil.MustFree(t, a, nC)
	return a, nA, nC
}

func TestFreeListBackLinkMismatch(t *testing.T) {
	a, nA, nC := freeListFixture(t)
	region := a.Region(nil)

	// Corruption: offset 0x14, F1(=A).blink -> F2(=C), while C's flink
	// still addresses the trailing free remainder, not F1.
	corrupt32(t, region, 0x14, nC)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	report := check.Scan(h)

	require.False(t, report.Clean())
	assert.Equal(t, types.FreeListBackLinkMismatch, report.Fault.Kind)
	require.Len(t, report.Fault.Scenarios, 1)
	assert.Equal(t, nA, report.Fault.Scenarios[0].Corrupted.Addr)

	out := diag.String()
	assert.Contains(t, out, "free node list")
	assert.Contains(t, out, fmt.Sprintf("blink(0x%08x)", nC), "message shows the mismatched link")
}

func TestFreeListForwardLinkMismatch(t *testing.T) {
	a, nA, nC := freeListFixture(t)
	region := a.Region(nil)

	// Corruption: offset 0x54, C.blink -> null, so F1's flink no longer
	// round-trips.
	corrupt32(t, region, 0x54, 0)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	report := check.Scan(h)

	require.False(t, report.Clean())
	assert.Equal(t, types.FreeListForwardLinkMismatch, report.Fault.Kind)
	assert.Equal(t, nA, report.Fault.Scenarios[0].Corrupted.Addr)
	assert.Contains(t, diag.String(), fmt.Sprintf("flink(0x%08x)", nC))
}

func TestFreeListLinkOutsideHeap(t *testing.T) {
	a, nA, _ := freeListFixture(t)
	region := a.Region(nil)

	// Corruption: offset 0x10, F1.flink -> an address no region owns.
	corrupt32(t, region, 0x10, 0xDEAD0000)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	report := check.Scan(h)

	require.False(t, report.Clean())
	assert.Equal(t, types.FreeListForwardLinkMismatch, report.Fault.Kind)
	assert.Equal(t, nA, report.Fault.Scenarios[0].Corrupted.Addr)
	assert.Contains(t, report.Fault.Detail, "does not address a node")
}

func TestMultiRegionAttribution(t *testing.T) {
	const base2 = 0x20000000

	a1 := mkArena(t, 256, base1)
	_, err := a1.Alloc(24)
	require.NoError(t, err)

	a2 := mkArena(t, 256, base2)
	_, err = a2.Alloc(24)
	require.NoError(t, err)
	_, err = a2.Alloc(24)
	require.NoError(t, err)
	region2 := a2.Region(nil)
	// Forward-tag fault confined to region 2: first allocation's size
	// 32 -> 48.
	corrupt32(t, region2, 0x08, 48)

	var diag bytes.Buffer
	h := mkHeap(t, &diag, a1.Region(nil), region2)
	report := check.Scan(h)

	require.False(t, report.Clean())
	assert.Equal(t, 1, report.Fault.Region, "fault attributed to the second region")
	assert.Equal(t, 2, report.RegionsScanned, "region 1 fully validated first")
	for _, s := range report.Fault.Scenarios {
		for _, ni := range []*types.NodeInfo{s.Overflowed, s.Corrupted} {
			if ni == nil {
				continue
			}
			assert.GreaterOrEqual(t, ni.Addr, uint32(base2), "addresses stay within region 2")
			assert.Less(t, ni.Addr, uint32(base2+256))
		}
	}
}

// countingLock records acquire/release pairs.
type countingLock struct {
	mu      sync.Mutex
	locks   int
	unlocks int
}

func (c *countingLock) Lock()   { c.mu.Lock(); c.locks++ }
func (c *countingLock) Unlock() { c.unlocks++; c.mu.Unlock() }

func TestPerRegionLocking(t *testing.T) {
	a1 := mkArena(t, 256, base1)
	a2 := mkArena(t, 256, 0x20000000)
	l1, l2 := &countingLock{}, &countingLock{}

	var diag bytes.Buffer
	h := mkHeap(t, &diag, a1.Region(l1), a2.Region(l2))
	require.Equal(t, 0, check.Corruption(h))

	assert.Equal(t, 1, l1.locks)
	assert.Equal(t, 1, l1.unlocks)
	assert.Equal(t, 1, l2.locks)
	assert.Equal(t, 1, l2.unlocks)
}

func TestLockReleasedOnFault(t *testing.T) {
	a := mkArena(t, 256, base1)
	_, err := a.Alloc(24)
	require.NoError(t, err)
	region := a.Region(&countingLock{})
	corrupt32(t, region, 0x08, 48)

	lock := region.Lock.(*countingLock)
	var diag bytes.Buffer
	h := mkHeap(t, &diag, region)
	require.Equal(t, -1, check.Corruption(h))
	assert.Equal(t, 1, lock.locks)
	assert.Equal(t, 1, lock.unlocks, "early fault return still releases")
}

func TestInterruptContextSkipsLocking(t *testing.T) {
	a := mkArena(t, 256, base1)
	lock := &countingLock{}

	var diag bytes.Buffer
	h, err := heap.New(heap.Options{
		Output:             &diag,
		InInterruptContext: func() bool { return true },
	}, a.Region(lock))
	require.NoError(t, err)

	require.Equal(t, 0, check.Corruption(h))
	assert.Equal(t, 0, lock.locks, "no lock taken from interrupt context")
}

func TestNilHeapIsFatal(t *testing.T) {
	assert.Panics(t, func() { check.Corruption(nil) })
	assert.Panics(t, func() { check.Scan(nil) })
}

func TestOwnershipDiagnostics(t *testing.T) {
	a, region := testutil.FormatRegion(t, 512, base1, format.Layout{Ownership: true}, nil)

	nA, err := a.AllocOwned(24, 5, 0x0800C0DE) // b+0x10, size 40
	require.NoError(t, err)
	nB, err := a.AllocOwned(24, 9, 0x0800BEEF) // b+0x38, size 40
	require.NoError(t, err)
	// Corruption: offset 0x3C, B's preceding word -> pack(16, allocated).
	corrupt32(t, region, 0x3C, format.PackPreceding(16, true))

	var diag bytes.Buffer
	h, err := heap.New(heap.Options{
		Output:              &diag,
		ExtendedDiagnostics: true,
		Registry:            taskreg.Static{5: "sensor-poll"},
	}, region)
	require.NoError(t, err)

	report := check.Scan(h)
	require.False(t, report.Clean())
	require.Equal(t, types.BackwardTagMismatch, report.Fault.Kind)
	assert.Equal(t, nA, report.Fault.Scenarios[0].Overflowed.Addr)
	assert.Equal(t, uint32(5), report.Fault.Scenarios[0].Overflowed.Owner)
	assert.Equal(t, uint32(0x0800C0DE), report.Fault.Scenarios[0].Overflowed.AllocPC)
	assert.Equal(t, nB, report.Fault.Scenarios[0].Corrupted.Addr)

	out := diag.String()
	assert.Contains(t, out, "Node owner id = 5 (sensor-poll), allocated by code at addr = 0x0800c0de")
	assert.Contains(t, out, "Node owner id = 9 (exited task)", "unknown task gets the placeholder")
}

func TestOwnershipNameClamped(t *testing.T) {
	a, region := testutil.FormatRegion(t, 512, base1, format.Layout{Ownership: true}, nil)
	_, err := a.AllocOwned(24, 3, 0)
	require.NoError(t, err)
	_, err = a.AllocOwned(24, 3, 0)
	require.NoError(t, err)
	corrupt32(t, region, 0x3C, format.PackPreceding(16, true))

	var diag bytes.Buffer
	h, err := heap.New(heap.Options{
		Output:              &diag,
		ExtendedDiagnostics: true,
		MaxTaskNameLen:      4,
		Registry:            taskreg.Static{3: "telemetry-uploader"},
	}, region)
	require.NoError(t, err)

	require.Equal(t, -1, check.Corruption(h))
	assert.Contains(t, diag.String(), "(tele)")
	assert.NotContains(t, diag.String(), "telemetry-uploader")
}
