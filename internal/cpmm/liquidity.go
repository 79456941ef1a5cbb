package cpmm

import (
	"math"

	"github.com/tylerheishman/manifold/internal/domain"
)

// AddMultiLiquidity distributes amount mana of subsidy across the pools of a
// sum-to-one contract. Each pool receives a share proportional to its
// liquidity (sqrt of the constant product), injected by scaling both reserves
// uniformly so the pool's implied probability is unchanged. Because every
// probability is preserved exactly, the sum-to-one invariant survives.
//
// The mana value of a pool at probability q = No/(Yes+No) is
// q*Yes + (1-q)*No = 2*Yes*No/(Yes+No), which fixes the scale factor for a
// given injection.
func AddMultiLiquidity(pools map[string]domain.Pool, amount float64) (map[string]domain.Pool, error) {
	if amount < -Epsilon || !isFinite(amount) {
		return nil, ErrInvariant("bad subsidy amount %v", amount)
	}
	if amount < 0 {
		// Rounding in the arbitrage step can leave the surplus a hair below
		// zero when probabilities already sum to one.
		amount = 0
	}
	if len(pools) == 0 {
		return nil, ErrInvariant("no pools to subsidize")
	}

	totalLiquidity := 0.0
	for _, pool := range pools {
		if err := checkPool(pool); err != nil {
			return nil, err
		}
		totalLiquidity += math.Sqrt(pool.Yes * pool.No)
	}

	newPools := make(map[string]domain.Pool, len(pools))
	for id, pool := range pools {
		share := math.Sqrt(pool.Yes*pool.No) / totalLiquidity
		subsidy := amount * share
		poolValue := 2 * pool.Yes * pool.No / (pool.Yes + pool.No)
		scale := 1 + subsidy/poolValue
		newPools[id] = domain.Pool{Yes: pool.Yes * scale, No: pool.No * scale}
	}
	return newPools, nil
}
