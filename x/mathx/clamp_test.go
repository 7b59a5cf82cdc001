package mathx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	require.Equal(t, 100.0, Clamp(104.2, 0, 100))
	require.Equal(t, 0.0, Clamp(-3.0, 0, 100))
	require.Equal(t, 5, Clamp(5, 10, 0), "swapped bounds")
	require.Equal(t, 3, Min(3, 9))
}

func TestAbsDiff(t *testing.T) {
	require.Equal(t, uint16(5), AbsDiff(uint16(3), uint16(8)))
	require.Equal(t, uint16(5), AbsDiff(uint16(8), uint16(3)))
	require.InDelta(t, 0.5, AbsDiff(float32(1.0), float32(1.5)), 1e-6)
}
