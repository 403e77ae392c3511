package zel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeFits(t *testing.T) {
	require.True(t, rangeFits(0, 0, 0))
	require.True(t, rangeFits(0, 10, 10))
	require.True(t, rangeFits(5, 5, 10))
	require.False(t, rangeFits(5, 6, 10))
	require.False(t, rangeFits(11, 0, 10))
	require.False(t, rangeFits(0, 11, 10))

	// Offsets near the address-space maximum must not wrap the check.
	require.False(t, rangeFits(math.MaxUint64, 1, math.MaxUint64))
	require.True(t, rangeFits(math.MaxUint64-1, 1, math.MaxUint64))
	require.False(t, rangeFits(math.MaxUint64-1, 3, math.MaxUint64))
	require.True(t, rangeFits(math.MaxUint64, 0, math.MaxUint64))
}

func TestReadAtMemory(t *testing.T) {
	d := &Decoder{data: []byte{1, 2, 3, 4, 5}, size: 5}

	dst := make([]byte, 3)
	require.NoError(t, d.readAt(1, dst))
	require.Equal(t, []byte{2, 3, 4}, dst)

	require.NoError(t, d.readAt(5, nil))
	require.ErrorIs(t, d.readAt(3, dst), ErrCorruptData)
}

func TestReadAtNoSource(t *testing.T) {
	d := &Decoder{size: 16}

	require.ErrorIs(t, d.readAt(0, make([]byte, 4)), ErrInternal)
}
