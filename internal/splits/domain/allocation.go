package domain

import (
	"fmt"
	"math/big"
)

// Allocate splits total by basis-point shares. Each amount is
// floor(total * share / 10000) and the rounding remainder goes to the first
// line, so the amounts always sum to total. Shares must already be validated.
func Allocate(total int64, shares []int) ([]int64, error) {
	if len(shares) == 0 {
		return nil, ErrEmptyLines
	}

	bigTotal := big.NewInt(total)
	denom := big.NewInt(TotalBasisPoints)
	amounts := make([]int64, len(shares))

	var sum int64
	var tmp big.Int
	for i, share := range shares {
		tmp.Mul(bigTotal, big.NewInt(int64(share)))
		tmp.Quo(&tmp, denom)
		if !tmp.IsInt64() {
			return nil, fmt.Errorf("%w: line %d overflows", ErrInvalidAmount, i)
		}
		amounts[i] = tmp.Int64()
		sum += amounts[i]
	}

	amounts[0] += total - sum
	return amounts, nil
}
