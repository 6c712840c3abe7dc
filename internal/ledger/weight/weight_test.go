package weight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIsqrt_FlooredRootInvariant checks y² ≤ x < (y+1)² across the full
// reputation range and around perfect squares.
func TestIsqrt_FlooredRootInvariant(t *testing.T) {
	for rep := 0; rep <= 100; rep++ {
		x := uint64(rep) * Scale * Scale
		y := Isqrt(x)
		require.LessOrEqual(t, y*y, x, "floor violated for reputation %d", rep)
		require.Greater(t, (y+1)*(y+1), x, "floor too low for reputation %d", rep)
	}

	for _, x := range []uint64{0, 1, 2, 3, 4, 8, 9, 15, 16, 24, 25, 99, 100, 101, 1 << 40} {
		y := Isqrt(x)
		assert.LessOrEqual(t, y*y, x)
		assert.Greater(t, (y+1)*(y+1), x)
	}
}

// TestIsqrt_FullRange exercises the top of the uint64 range, where (y+1)²
// overflows and a naive initial estimate wraps.
func TestIsqrt_FullRange(t *testing.T) {
	const maxRoot = uint64(1<<32 - 1) // floor(sqrt(2^64 - 1))

	assert.Equal(t, maxRoot, Isqrt(1<<64-1))
	assert.Equal(t, maxRoot, Isqrt(maxRoot*maxRoot))
	assert.Equal(t, maxRoot-1, Isqrt(maxRoot*maxRoot-1))

	// (y+1)² > x rearranged to (y+1)²-1 >= x so the bound survives the wrap
	// at (y+1)² = 2^64.
	for _, x := range []uint64{1<<63 - 1, 1 << 63, 1<<64 - 2} {
		y := Isqrt(x)
		require.LessOrEqual(t, y*y, x)
		require.GreaterOrEqual(t, (y+1)*(y+1)-1, x, "floor too low for %d", x)
	}
}

func TestForReputation(t *testing.T) {
	t.Run("zero reputation yields zero weight", func(t *testing.T) {
		assert.Zero(t, ForReputation(0))
		assert.Zero(t, ForReputation(-1))
	})

	t.Run("reputation 10 is about 3.162 at unit scale", func(t *testing.T) {
		assert.Equal(t, uint64(3162), ForReputation(10))
	})

	t.Run("reputation 100 is exactly 10 at unit scale", func(t *testing.T) {
		assert.Equal(t, uint64(10*Scale), ForReputation(100))
	})

	t.Run("monotonically non-decreasing", func(t *testing.T) {
		prev := uint64(0)
		for rep := 0; rep <= 100; rep++ {
			w := ForReputation(rep)
			require.GreaterOrEqual(t, w, prev, "weight decreased at reputation %d", rep)
			prev = w
		}
	})

	t.Run("sub-linear growth", func(t *testing.T) {
		// Doubling reputation does not double weight.
		assert.Less(t, ForReputation(20), 2*ForReputation(10))
		assert.Less(t, ForReputation(100), 2*ForReputation(50))
	})
}
