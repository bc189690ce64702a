package heap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapkit/heapkit/heap"
)

func TestNewRejectsEmptyHeap(t *testing.T) {
	_, err := heap.New(heap.Options{})
	assert.ErrorIs(t, err, heap.ErrNoRegions)
}

func TestNewRejectsBadRegions(t *testing.T) {
	tests := []struct {
		name   string
		region heap.Region
	}{
		{"end before start", heap.Region{Data: make([]byte, 64), Start: 48, End: 8}},
		{"unaligned start", heap.Region{Data: make([]byte, 64), Start: 4, End: 48}},
		{"unaligned end", heap.Region{Data: make([]byte, 64), Start: 0, End: 44}},
		{"sentinel header past data", heap.Region{Data: make([]byte, 64), Start: 0, End: 64}},
		{"no room for a node", heap.Region{Data: make([]byte, 24), Start: 0, End: 8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := heap.New(heap.Options{}, tc.region)
			assert.ErrorIs(t, err, heap.ErrBadRegion)
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	h, err := heap.New(heap.Options{}, layRegion(0x20000000))
	require.NoError(t, err)

	assert.Equal(t, heap.DefaultMaxTaskNameLen, h.MaxTaskNameLen())
	assert.NotNil(t, h.Output())
	assert.False(t, h.InInterrupt())
	assert.False(t, h.ExtendedDiagnostics())
	assert.Nil(t, h.Registry())
	require.NoError(t, h.Close(), "close is a no-op for borrowed storage")
}

func TestInterruptPredicate(t *testing.T) {
	inISR := false
	h, err := heap.New(heap.Options{InInterruptContext: func() bool { return inISR }}, layRegion(0x20000000))
	require.NoError(t, err)

	assert.False(t, h.InInterrupt())
	inISR = true
	assert.True(t, h.InInterrupt())
}
