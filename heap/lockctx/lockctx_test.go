package lockctx_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapkit/heapkit/heap/lockctx"
)

type recordingLock struct {
	locks   int
	unlocks int
}

func (l *recordingLock) Lock()   { l.locks++ }
func (l *recordingLock) Unlock() { l.unlocks++ }

func TestBodyRunsUnderLock(t *testing.T) {
	lock := &recordingLock{}
	ran := false

	err := lockctx.WithRegionLock(lock, false, func() error {
		assert.Equal(t, 1, lock.locks, "lock held while body runs")
		assert.Equal(t, 0, lock.unlocks)
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, lock.unlocks)
}

func TestInterruptContextRunsUnlocked(t *testing.T) {
	lock := &recordingLock{}

	err := lockctx.WithRegionLock(lock, true, func() error { return nil })

	require.NoError(t, err)
	assert.Zero(t, lock.locks)
	assert.Zero(t, lock.unlocks)
}

func TestNilLockerRunsBody(t *testing.T) {
	ran := false
	err := lockctx.WithRegionLock(nil, false, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestBodyErrorPassedThrough(t *testing.T) {
	lock := &recordingLock{}
	sentinel := errors.New("scan failed")

	err := lockctx.WithRegionLock(lock, false, func() error { return sentinel })

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, lock.unlocks, "error return still releases")
}

func TestPanicStillUnlocks(t *testing.T) {
	lock := &recordingLock{}

	assert.Panics(t, func() {
		_ = lockctx.WithRegionLock(lock, false, func() error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, lock.unlocks)
}
