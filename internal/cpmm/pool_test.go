package cpmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerheishman/manifold/internal/domain"
)

func TestProbability(t *testing.T) {
	p, err := Probability(domain.Pool{Yes: 100, No: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	// More YES reserve means lower YES probability.
	p, err = Probability(domain.Pool{Yes: 300, No: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p, 1e-12)

	_, err = Probability(domain.Pool{Yes: 0, No: 100})
	assert.Error(t, err)

	_, err = Probability(domain.Pool{Yes: math.NaN(), No: 100})
	assert.Error(t, err)
}

func TestCalculateShares(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	// Buying YES with b yields y + b - y*n/(n+b).
	shares, err := CalculateShares(pool, 50, domain.OutcomeYes)
	require.NoError(t, err)
	expected := 100 + 50 - 100*100/(100+50.0)
	assert.InDelta(t, expected, shares, 1e-9)

	// At even odds both sides cost the same.
	noShares, err := CalculateShares(pool, 50, domain.OutcomeNo)
	require.NoError(t, err)
	assert.InDelta(t, shares, noShares, 1e-9)

	// Zero spend buys zero shares.
	shares, err = CalculateShares(pool, 0, domain.OutcomeYes)
	require.NoError(t, err)
	assert.InDelta(t, 0, shares, 1e-9)

	// Shares always beat the amount spent (price below 1).
	shares, err = CalculateShares(pool, 10, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Greater(t, shares, 10.0)

	_, err = CalculateShares(pool, -1, domain.OutcomeYes)
	assert.Error(t, err)
}

func TestCalculateShares_Monotonic(t *testing.T) {
	pool := domain.Pool{Yes: 80, No: 120}
	prev := 0.0
	for _, amount := range []float64{1, 5, 20, 100, 500} {
		shares, err := CalculateShares(pool, amount, domain.OutcomeYes)
		require.NoError(t, err)
		assert.Greater(t, shares, prev)
		prev = shares
	}
}

func TestCalculatePurchase_PreservesProduct(t *testing.T) {
	pool := domain.Pool{Yes: 150, No: 90}
	k := pool.Yes * pool.No

	shares, newPool, err := CalculatePurchase(pool, 37, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Greater(t, shares, 0.0)
	assert.InDelta(t, k, newPool.Yes*newPool.No, 1e-6)

	// Buying YES must raise the YES probability.
	before, err := Probability(pool)
	require.NoError(t, err)
	after, err := Probability(newPool)
	require.NoError(t, err)
	assert.Greater(t, after, before)
}

func TestAmountToProb_RoundTrip(t *testing.T) {
	pool := domain.Pool{Yes: 200, No: 100}

	for _, target := range []float64{0.4, 0.5, 0.75, 0.9} {
		amount, err := AmountToProb(pool, target, domain.OutcomeYes)
		require.NoError(t, err)
		_, newPool, err := CalculatePurchase(pool, amount, domain.OutcomeYes)
		require.NoError(t, err)
		p, err := Probability(newPool)
		require.NoError(t, err)
		assert.InDelta(t, target, p, 1e-9, "target %v", target)
	}

	// NO side symmetric.
	amount, err := AmountToProb(pool, 0.1, domain.OutcomeNo)
	require.NoError(t, err)
	_, newPool, err := CalculatePurchase(pool, amount, domain.OutcomeNo)
	require.NoError(t, err)
	p, err := Probability(newPool)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, p, 1e-9)
}

func TestAmountToProb_OutOfRange(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	amount, err := AmountToProb(pool, 0, domain.OutcomeYes)
	require.NoError(t, err)
	assert.True(t, math.IsInf(amount, 1))

	amount, err = AmountToProb(pool, 1, domain.OutcomeYes)
	require.NoError(t, err)
	assert.True(t, math.IsInf(amount, 1))

	// A target below the current probability needs no YES purchase.
	amount, err = AmountToProb(pool, 0.2, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, 0.0, amount)
}

func TestBinarySearch(t *testing.T) {
	// Root of x - 7 on [0, 100].
	x := binarySearch(0, 100, func(x float64) float64 { return x - 7 })
	assert.InDelta(t, 7, x, 1e-9)

	// Nonlinear increasing comparator.
	x = binarySearch(0, 10, func(x float64) float64 { return x*x - 2 })
	assert.InDelta(t, math.Sqrt2, x, 1e-9)
}

func TestFloatingEqual(t *testing.T) {
	assert.True(t, FloatingEqual(1, 1+1e-12))
	assert.False(t, FloatingEqual(1, 1.001))
	assert.True(t, FloatingGreaterEqual(1, 1+1e-12))
	assert.True(t, FloatingLesserEqual(1+1e-12, 1))
}
