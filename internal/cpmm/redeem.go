package cpmm

import (
	"math"
	"time"

	"github.com/tylerheishman/manifold/internal/domain"
)

// Redemption is the result of netting a user's offsetting YES/NO positions
// on one answer back into mana.
type Redemption struct {
	// Shares is the matched portion: min(total YES, total NO), floored at 0.
	Shares float64
	// LoanPayment is the slice of outstanding loans repaid by this
	// redemption.
	LoanPayment float64
	// NetAmount is the mana credited to the user: Shares - LoanPayment.
	NetAmount float64
}

// RedemptionPolicy derives the redeemable amount and loan repayment from a
// user's bets on one answer. The loan/fee interaction is behind this
// interface so it can be swapped without touching the settlement path.
type RedemptionPolicy interface {
	ComputeRedemption(bets []domain.Bet) (Redemption, error)
}

// ProportionalLoanPolicy repays loans in proportion to the fraction of the
// larger side's shares consumed by the redemption. This matches recorded
// platform behavior: redeeming half your exposure repays half your loans.
type ProportionalLoanPolicy struct{}

// ComputeRedemption nets the matched YES/NO portion of bets into mana.
func (ProportionalLoanPolicy) ComputeRedemption(bets []domain.Bet) (Redemption, error) {
	var yesShares, noShares, loanAmount float64
	for _, b := range bets {
		if b.Outcome == domain.OutcomeYes {
			yesShares += b.Shares
		} else {
			noShares += b.Shares
		}
		loanAmount += b.LoanAmount
	}

	shares := math.Max(math.Min(yesShares, noShares), 0)
	maxShares := math.Max(yesShares, noShares)
	soldFrac := 0.0
	if shares > 0 && maxShares > 0 {
		soldFrac = math.Min(shares/maxShares, 1)
	}
	loanPayment := loanAmount * soldFrac
	netAmount := shares - loanPayment
	if !isFinite(netAmount) {
		return Redemption{}, ErrInvariant("non-finite redemption amount from %d bets", len(bets))
	}
	return Redemption{Shares: shares, LoanPayment: loanPayment, NetAmount: netAmount}, nil
}

// RedemptionBets builds the paired sell bets that zero out a matched
// position: a YES sell and a NO sell of the redeemed shares at the given
// probability, each repaying half the loan payment. Redemptions are fee-free.
func RedemptionBets(
	contract domain.Contract,
	answerID *string,
	shares, loanPayment, prob float64,
	now time.Time,
) (yesBet, noBet domain.Bet) {
	loanEach := 0.0
	if loanPayment != 0 {
		loanEach = -loanPayment / 2
	}
	base := domain.Bet{
		ContractID:   contract.ID,
		AnswerID:     answerID,
		Shares:       -shares,
		LoanAmount:   loanEach,
		ProbBefore:   prob,
		ProbAfter:    prob,
		Fees:         domain.NoFees,
		IsFilled:     true,
		IsRedemption: true,
		Visibility:   contract.Visibility,
		CreatedAt:    now,
	}

	yesBet = base
	yesBet.Outcome = domain.OutcomeYes
	yesBet.Amount = prob * -shares

	noBet = base
	noBet.Outcome = domain.OutcomeNo
	noBet.Amount = (1 - prob) * -shares
	return yesBet, noBet
}
