package cpmm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerheishman/manifold/internal/domain"
)

var fillTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func limitOrder(id, userID string, outcome domain.Outcome, orderAmount, limitProb float64, createdAt time.Time) domain.Bet {
	return domain.Bet{
		ID:          id,
		UserID:      userID,
		Outcome:     outcome,
		Amount:      0,
		OrderAmount: &orderAmount,
		LimitProb:   &limitProb,
		CreatedAt:   createdAt,
	}
}

func TestComputeFills_PoolOnly(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	res, err := ComputeFills(pool, domain.OutcomeYes, 25, nil, nil, nil, fillTime)
	require.NoError(t, err)

	require.Len(t, res.Takers, 1)
	assert.Nil(t, res.Takers[0].MatchedBetID)
	assert.InDelta(t, 25, res.Takers[0].Amount, 1e-9)

	wantShares, err := CalculateShares(pool, 25, domain.OutcomeYes)
	require.NoError(t, err)
	assert.InDelta(t, wantShares, res.Takers[0].Shares, 1e-9)
	assert.Empty(t, res.Makers)
	assert.Empty(t, res.OrdersToCancel)
	assert.InDelta(t, pool.Yes*pool.No, res.Pool.Yes*res.Pool.No, 1e-6)
}

func TestComputeFills_MatchesCrossedOrder(t *testing.T) {
	// Pool at 50%; a NO limit at 40% offers YES at 0.40 per share, cheaper
	// than the pool, so the taker fills against it first.
	pool := domain.Pool{Yes: 100, No: 100}
	order := limitOrder("order-1", "maker", domain.OutcomeNo, 100, 0.4, fillTime.Add(-time.Hour))
	balances := map[string]float64{"maker": 1000}

	res, err := ComputeFills(pool, domain.OutcomeYes, 30, nil, []domain.Bet{order}, balances, fillTime)
	require.NoError(t, err)

	require.NotEmpty(t, res.Makers)
	assert.Equal(t, "order-1", res.Makers[0].Bet.ID)

	// Taker fills sum to the full bet amount.
	total := 0.0
	for _, f := range res.Takers {
		total += f.Amount
	}
	assert.InDelta(t, 30, total, 1e-9)

	// The trade prices at the order's limit: YES at 0.4, NO at 0.6.
	var matched *TakerFill
	for i := range res.Takers {
		if res.Takers[i].MatchedBetID != nil {
			matched = &res.Takers[i]
		}
	}
	require.NotNil(t, matched)
	assert.Equal(t, "order-1", *matched.MatchedBetID)
	assert.InDelta(t, matched.Shares*0.4, matched.Amount, 1e-9)
	assert.InDelta(t, matched.Shares*0.6, res.Makers[0].Amount, 1e-9)
}

func TestComputeFills_PoolFirstWhenCheaper(t *testing.T) {
	// Pool at 50%, NO limit resting at 70%. A small YES purchase never
	// reaches 70%, so the order is untouched.
	pool := domain.Pool{Yes: 100, No: 100}
	order := limitOrder("order-1", "maker", domain.OutcomeNo, 50, 0.7, fillTime)
	balances := map[string]float64{"maker": 1000}

	res, err := ComputeFills(pool, domain.OutcomeYes, 10, nil, []domain.Bet{order}, balances, fillTime)
	require.NoError(t, err)
	assert.Empty(t, res.Makers)
	require.Len(t, res.Takers, 1)
	assert.Nil(t, res.Takers[0].MatchedBetID)
}

func TestComputeFills_InsufficientMakerBalanceCancels(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}
	order := limitOrder("order-1", "broke", domain.OutcomeNo, 100, 0.4, fillTime)
	balances := map[string]float64{"broke": 0}

	res, err := ComputeFills(pool, domain.OutcomeYes, 30, nil, []domain.Bet{order}, balances, fillTime)
	require.NoError(t, err)

	require.Len(t, res.OrdersToCancel, 1)
	assert.Equal(t, "order-1", res.OrdersToCancel[0].ID)
	assert.Empty(t, res.Makers)
}

func TestComputeFills_TakerLimitStopsFills(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}
	lp := 0.6

	res, err := ComputeFills(pool, domain.OutcomeYes, 10_000, &lp, nil, nil, fillTime)
	require.NoError(t, err)

	p, err := Probability(res.Pool)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p, 1e-9)

	// Not all of the amount was spent.
	total := 0.0
	for _, f := range res.Takers {
		total += f.Amount
	}
	assert.Less(t, total, 10_000.0)
}

func TestComputeFills_BestPriceFirst(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}
	cheap := limitOrder("cheap", "m1", domain.OutcomeNo, 5, 0.30, fillTime)
	dear := limitOrder("dear", "m2", domain.OutcomeNo, 5, 0.45, fillTime)
	balances := map[string]float64{"m1": 100, "m2": 100}

	res, err := ComputeFills(pool, domain.OutcomeYes, 200, nil, []domain.Bet{dear, cheap}, balances, fillTime)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Makers), 2)
	assert.Equal(t, "cheap", res.Makers[0].Bet.ID)
	assert.Equal(t, "dear", res.Makers[1].Bet.ID)
}

func TestAmountToBuyShares(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	amount, err := AmountToBuyShares(pool, 20, domain.OutcomeNo, nil, nil, fillTime)
	require.NoError(t, err)

	res, err := ComputeFills(pool, domain.OutcomeNo, amount, nil, nil, nil, fillTime)
	require.NoError(t, err)
	total := 0.0
	for _, f := range res.Takers {
		total += f.Shares
	}
	assert.InDelta(t, 20, total, 1e-6)
	// A NO share costs at most one mana.
	assert.Less(t, amount, 20.0)
}
