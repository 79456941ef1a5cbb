package cpmm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerheishman/manifold/internal/domain"
)

func positionBet(outcome domain.Outcome, shares, loan float64) domain.Bet {
	return domain.Bet{Outcome: outcome, Shares: shares, LoanAmount: loan}
}

func TestComputeRedemption_MatchedPair(t *testing.T) {
	bets := []domain.Bet{
		positionBet(domain.OutcomeYes, 30, 0),
		positionBet(domain.OutcomeNo, 30, 0),
	}

	r, err := ProportionalLoanPolicy{}.ComputeRedemption(bets)
	require.NoError(t, err)
	assert.InDelta(t, 30, r.Shares, 1e-9)
	assert.Equal(t, 0.0, r.LoanPayment)
	assert.InDelta(t, 30, r.NetAmount, 1e-9)
}

func TestComputeRedemption_PartialMatch(t *testing.T) {
	bets := []domain.Bet{
		positionBet(domain.OutcomeYes, 100, 0),
		positionBet(domain.OutcomeNo, 40, 0),
	}

	r, err := ProportionalLoanPolicy{}.ComputeRedemption(bets)
	require.NoError(t, err)
	assert.InDelta(t, 40, r.Shares, 1e-9)
	assert.InDelta(t, 40, r.NetAmount, 1e-9)
}

func TestComputeRedemption_OneSidedPosition(t *testing.T) {
	bets := []domain.Bet{positionBet(domain.OutcomeYes, 100, 20)}

	r, err := ProportionalLoanPolicy{}.ComputeRedemption(bets)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Shares)
	assert.Equal(t, 0.0, r.LoanPayment)
	assert.Equal(t, 0.0, r.NetAmount)
}

func TestComputeRedemption_ProportionalLoanRepayment(t *testing.T) {
	// Redeeming 50 of 100 max-side shares repays half the outstanding loan.
	bets := []domain.Bet{
		positionBet(domain.OutcomeYes, 100, 40),
		positionBet(domain.OutcomeNo, 50, 0),
	}

	r, err := ProportionalLoanPolicy{}.ComputeRedemption(bets)
	require.NoError(t, err)
	assert.InDelta(t, 50, r.Shares, 1e-9)
	assert.InDelta(t, 20, r.LoanPayment, 1e-9)
	assert.InDelta(t, 30, r.NetAmount, 1e-9)
}

func TestComputeRedemption_NegativeNetPositionsFloorAtZero(t *testing.T) {
	// Sell bets carry negative shares; a fully redeemed position has zero on
	// both sides and must not redeem again.
	bets := []domain.Bet{
		positionBet(domain.OutcomeYes, 30, 0),
		positionBet(domain.OutcomeNo, 30, 0),
		positionBet(domain.OutcomeYes, -30, 0),
		positionBet(domain.OutcomeNo, -30, 0),
	}

	r, err := ProportionalLoanPolicy{}.ComputeRedemption(bets)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.Shares)
	assert.Equal(t, 0.0, r.NetAmount)
}

func TestRedemptionBets(t *testing.T) {
	contract := domain.Contract{ID: "contract-1", Visibility: domain.VisibilityUnlisted}
	answerID := "answer-1"
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	yesBet, noBet := RedemptionBets(contract, &answerID, 40, 10, 0.7, now)

	for _, b := range []domain.Bet{yesBet, noBet} {
		assert.Equal(t, "contract-1", b.ContractID)
		require.NotNil(t, b.AnswerID)
		assert.Equal(t, "answer-1", *b.AnswerID)
		assert.InDelta(t, -40, b.Shares, 1e-9)
		assert.InDelta(t, -5, b.LoanAmount, 1e-9)
		assert.Equal(t, 0.7, b.ProbBefore)
		assert.Equal(t, 0.7, b.ProbAfter)
		assert.True(t, b.IsRedemption)
		assert.True(t, b.IsFilled)
		assert.Equal(t, domain.NoFees, b.Fees)
		assert.Equal(t, domain.VisibilityUnlisted, b.Visibility)
		assert.Equal(t, now, b.CreatedAt)
	}

	assert.Equal(t, domain.OutcomeYes, yesBet.Outcome)
	assert.Equal(t, domain.OutcomeNo, noBet.Outcome)

	// Sell amounts split the shares by probability: together they refund one
	// mana per matched pair.
	assert.InDelta(t, 0.7*-40, yesBet.Amount, 1e-9)
	assert.InDelta(t, 0.3*-40, noBet.Amount, 1e-9)
	assert.InDelta(t, -40, yesBet.Amount+noBet.Amount, 1e-9)
}

func TestRedemptionBets_NoLoan(t *testing.T) {
	contract := domain.Contract{ID: "contract-1", Visibility: domain.VisibilityPublic}
	yesBet, noBet := RedemptionBets(contract, nil, 10, 0, 0.5, time.Now())
	assert.Equal(t, 0.0, yesBet.LoanAmount)
	assert.Equal(t, 0.0, noBet.LoanAmount)
	assert.Nil(t, yesBet.AnswerID)
	assert.Nil(t, noBet.AnswerID)
}
