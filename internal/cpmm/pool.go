package cpmm

import (
	"math"

	"github.com/tylerheishman/manifold/internal/domain"
)

// ErrInvariant wraps a fatal internal-consistency failure: non-finite
// arithmetic, empty pools, probabilities that refuse to sum to one. These
// indicate a bug upstream and must abort the enclosing transaction.
func ErrInvariant(format string, args ...any) error {
	return domain.Errorf(500, "market maker invariant: "+format, args...)
}

// Probability is the implied probability of YES for a pool: the share of the
// opposite reserve, No / (Yes + No). This is the exact convention used by
// the cpmm-1 and cpmm-multi-1 mechanisms; it is not the squared-reserve
// formula used by the legacy DPM mechanism.
func Probability(pool domain.Pool) (float64, error) {
	if err := checkPool(pool); err != nil {
		return 0, err
	}
	return pool.No / (pool.Yes + pool.No), nil
}

// CalculateShares returns how many shares of outcome a buyer receives for
// spending amount mana against the pool, holding Yes*No constant. Buying YES
// with b yields y + b - y*n/(n+b) shares; symmetric for NO. Monotonically
// increasing in amount.
func CalculateShares(pool domain.Pool, amount float64, outcome domain.Outcome) (float64, error) {
	if err := checkPool(pool); err != nil {
		return 0, err
	}
	if amount < 0 || !isFinite(amount) {
		return 0, ErrInvariant("bad purchase amount %v", amount)
	}
	y, n := pool.Yes, pool.No
	var shares float64
	if outcome == domain.OutcomeYes {
		shares = y + amount - y*n/(n+amount)
	} else {
		shares = n + amount - y*n/(y+amount)
	}
	if !isFinite(shares) {
		return 0, ErrInvariant("non-finite shares for amount %v on pool %+v", amount, pool)
	}
	return shares, nil
}

// CalculatePurchase applies a purchase to the pool, returning the shares
// bought and the resulting pool. The constant product Yes*No is preserved.
func CalculatePurchase(pool domain.Pool, amount float64, outcome domain.Outcome) (shares float64, newPool domain.Pool, err error) {
	shares, err = CalculateShares(pool, amount, outcome)
	if err != nil {
		return 0, domain.Pool{}, err
	}
	if outcome == domain.OutcomeYes {
		newPool = domain.Pool{Yes: pool.Yes + amount - shares, No: pool.No + amount}
	} else {
		newPool = domain.Pool{Yes: pool.Yes + amount, No: pool.No + amount - shares}
	}
	if err := checkPool(newPool); err != nil {
		return 0, domain.Pool{}, err
	}
	return shares, newPool, nil
}

// AmountToProb returns the purchase amount of outcome that moves the pool's
// implied probability to prob. Returns +Inf when prob is outside (0, 1) on
// the relevant side, matching "no limit" semantics for fill computation.
func AmountToProb(pool domain.Pool, prob float64, outcome domain.Outcome) (float64, error) {
	if err := checkPool(pool); err != nil {
		return 0, err
	}
	if prob <= 0 || prob >= 1 || math.IsNaN(prob) {
		return math.Inf(1), nil
	}
	y, n := pool.Yes, pool.No
	var amount float64
	if outcome == domain.OutcomeYes {
		// Solve (n+a)^2 (1-prob) = prob*y*n.
		amount = math.Sqrt(prob*y*n/(1-prob)) - n
	} else {
		// Solve (y+a)^2 prob = (1-prob)*y*n.
		amount = math.Sqrt((1-prob)*y*n/prob) - y
	}
	return math.Max(0, amount), nil
}

func checkPool(pool domain.Pool) error {
	if pool.Yes <= 0 || pool.No <= 0 || !isFinite(pool.Yes) || !isFinite(pool.No) {
		return ErrInvariant("pool reserves must be positive and finite, got %+v", pool)
	}
	return nil
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// mustProbability is Probability for pools already validated by the caller.
func mustProbability(pool domain.Pool) float64 {
	return pool.No / (pool.Yes + pool.No)
}
