package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateAdvancesCursor(t *testing.T) {
	r := New(64)
	block, err := r.Allocate(1, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, block, 10)
	require.Equal(t, 10, r.Len())
}

func TestAllocateZeroesByDefault(t *testing.T) {
	r := New(16)
	block, err := r.Allocate(1, 1, 8, 0)
	require.NoError(t, err)
	for _, b := range block {
		require.Equal(t, byte(0), b)
	}
}

func TestAllocateNoZeroLeavesStaleBytes(t *testing.T) {
	r := New(16)
	first, err := r.Allocate(1, 1, 8, 0)
	require.NoError(t, err)
	for i := range first {
		first[i] = 0xFF
	}
	r.Reset()

	second, err := r.Allocate(1, 1, 8, NoZero)
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), second[0])
}

func TestAllocateRespectsAlignment(t *testing.T) {
	r := New(32)
	_, err := r.Allocate(1, 1, 3, NoZero) // cursor now at 3
	require.NoError(t, err)

	block, err := r.Allocate(1, 8, 1, NoZero)
	require.NoError(t, err)
	start := r.Len() - 1
	require.Equal(t, 0, start%8)
	require.Len(t, block, 1)
}

func TestAllocateFailsWhenOutOfSpace(t *testing.T) {
	r := New(4)
	_, err := r.Allocate(1, 1, 5, NoZero)
	require.Error(t, err)
}

func TestAllocateRejectsInvalidArguments(t *testing.T) {
	r := New(4)
	_, err := r.Allocate(0, 1, 1, 0)
	require.Error(t, err)
	_, err = r.Allocate(1, 0, 1, 0)
	require.Error(t, err)
	_, err = r.Allocate(1, 1, -1, 0)
	require.Error(t, err)
}

func TestAllocateDetectsOverflow(t *testing.T) {
	r := New(4)
	_, err := r.Allocate(maxInt, 1, 2, NoZero)
	require.Error(t, err)
}

func TestResetReclaimsSpace(t *testing.T) {
	r := New(8)
	_, err := r.Allocate(1, 1, 8, NoZero)
	require.NoError(t, err)
	require.Equal(t, 8, r.Len())

	r.Reset()
	require.Equal(t, 0, r.Len())

	block, err := r.Allocate(1, 1, 8, NoZero)
	require.NoError(t, err)
	require.Len(t, block, 8)
}

func TestCap(t *testing.T) {
	r := New(100)
	require.Equal(t, 100, r.Cap())
}
