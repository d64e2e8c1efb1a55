package domain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		shares []int
		want   []int64
	}{
		{"even halves", 100, []int{5000, 5000}, []int64{50, 50}},
		{"thirds remainder to first", 100, []int{3333, 3333, 3334}, []int64{34, 33, 33}},
		{"single line", 7, []int{10000}, []int64{7}},
		{"tiny total", 1, []int{5000, 5000}, []int64{1, 0}},
		{"uneven", 1001, []int{2500, 7500}, []int64{251, 750}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Allocate(tt.total, tt.shares)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocate_NoOverflow(t *testing.T) {
	got, err := Allocate(math.MaxInt64, []int{1, 9999})
	require.NoError(t, err)

	var sum int64
	for _, a := range got {
		require.GreaterOrEqual(t, a, int64(0))
		sum += a
	}
	assert.Equal(t, int64(math.MaxInt64), sum)
}

func TestAllocate_SumsToTotal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		shares := randomShares(rng, 1+rng.Intn(12))
		total := 1 + rng.Int63n(1_000_000_000_000)

		amounts, err := Allocate(total, shares)
		require.NoError(t, err)

		var sum int64
		for _, a := range amounts {
			sum += a
		}
		require.Equal(t, total, sum, "shares=%v total=%d amounts=%v", shares, total, amounts)
	}
}

func TestAllocate_Empty(t *testing.T) {
	_, err := Allocate(100, nil)
	assert.ErrorIs(t, err, ErrEmptyLines)
}

// randomShares returns n positive shares summing to 10000.
func randomShares(rng *rand.Rand, n int) []int {
	shares := make([]int, n)
	remaining := TotalBasisPoints
	for i := 0; i < n-1; i++ {
		// leave at least 1 bp for each remaining line
		maxShare := remaining - (n - 1 - i)
		shares[i] = 1 + rng.Intn(maxShare)
		remaining -= shares[i]
	}
	shares[n-1] = remaining
	return shares
}
