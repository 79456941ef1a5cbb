package cpmm

import (
	"time"

	"github.com/tylerheishman/manifold/internal/domain"
)

// sumToOneTolerance bounds how far the post-arbitrage probability sum may
// sit from 1 before we declare the rebalancing broken.
const sumToOneTolerance = 1e-6

// BetResult is the synthetic trade computed for one answer by the bet-down
// step: the candidate redemption bet, its fills, the orders it consumed, and
// the answer's pool after the trade.
type BetResult struct {
	Answer         domain.Answer
	Bet            domain.Bet
	Takers         []TakerFill
	Makers         []MakerFill
	OrdersToCancel []domain.Bet
	Pool           domain.Pool
}

// BetDownResult is the output of BetDownToOne: one BetResult per answer plus
// the mana squeezed out by restoring the sum-to-one invariant.
type BetDownResult struct {
	Results   []BetResult
	ExtraMana float64
}

// AmountToBuyShares binary-searches the purchase amount that yields exactly
// shares of outcome once resting limit orders are taken into account. Buying
// s shares never costs more than s mana, which bounds the search.
func AmountToBuyShares(
	pool domain.Pool,
	shares float64,
	outcome domain.Outcome,
	unfilledBets []domain.Bet,
	balanceByUserID map[string]float64,
	now time.Time,
) (float64, error) {
	var searchErr error
	amount := binarySearch(0, shares, func(amount float64) float64 {
		res, err := ComputeFills(pool, outcome, amount, nil, unfilledBets, balanceByUserID, now)
		if err != nil {
			searchErr = err
			return 0
		}
		total := 0.0
		for _, t := range res.Takers {
			total += t.Shares
		}
		return total - shares
	})
	if searchErr != nil {
		return 0, searchErr
	}
	return amount, nil
}

// BetDownToOne restores the sum-to-one invariant for a set of answers whose
// implied probabilities sum to more than 1. It finds, by expanding then
// bisecting, the number of NO shares to buy in every answer so that the
// post-trade probabilities sum to exactly 1, filling crossed resting limit
// orders along the way. A complete set of one NO share in each of n answers
// is worth n-1 mana, so the surplus over the amounts paid is returned as
// ExtraMana for redistribution.
//
// Deterministic: identical inputs (including now) produce identical output.
func BetDownToOne(
	contract domain.Contract,
	answers []domain.Answer,
	unfilledBets []domain.Bet,
	balanceByUserID map[string]float64,
	now time.Time,
) (BetDownResult, error) {
	if len(answers) < 2 {
		return BetDownResult{}, ErrInvariant("bet-down requires at least two answers, got %d", len(answers))
	}

	unfilledByAnswer := make(map[string][]domain.Bet)
	for _, b := range unfilledBets {
		if b.AnswerID != nil {
			unfilledByAnswer[*b.AnswerID] = append(unfilledByAnswer[*b.AnswerID], b)
		}
	}

	probSum := func(fills []FillResult) float64 {
		sum := 0.0
		for _, f := range fills {
			sum += mustProbability(f.Pool)
		}
		return sum
	}

	buyInAll := func(noShares float64) ([]FillResult, error) {
		fills := make([]FillResult, len(answers))
		for i, answer := range answers {
			amount, err := AmountToBuyShares(
				answer.Pool(), noShares, domain.OutcomeNo,
				unfilledByAnswer[answer.ID], balanceByUserID, now,
			)
			if err != nil {
				return nil, err
			}
			res, err := ComputeFills(
				answer.Pool(), domain.OutcomeNo, amount, nil,
				unfilledByAnswer[answer.ID], balanceByUserID, now,
			)
			if err != nil {
				return nil, err
			}
			fills[i] = res
		}
		return fills, nil
	}

	// Find an upper bound on the NO shares needed, then bisect.
	maxNoShares := 10.0
	for {
		fills, err := buyInAll(maxNoShares)
		if err != nil {
			return BetDownResult{}, err
		}
		if probSum(fills) < 1 {
			break
		}
		maxNoShares *= 10
	}

	var searchErr error
	noShares := binarySearch(0, maxNoShares, func(shares float64) float64 {
		fills, err := buyInAll(shares)
		if err != nil {
			searchErr = err
			return 0
		}
		// Buying more NO shares lowers every probability.
		return 1 - probSum(fills)
	})
	if searchErr != nil {
		return BetDownResult{}, searchErr
	}

	fills, err := buyInAll(noShares)
	if err != nil {
		return BetDownResult{}, err
	}
	if sum := probSum(fills); sum < 1-sumToOneTolerance || sum > 1+sumToOneTolerance {
		return BetDownResult{}, ErrInvariant("probabilities sum to %v after bet-down", sum)
	}

	out := BetDownResult{Results: make([]BetResult, len(answers))}
	totalAmount := 0.0
	for i, answer := range answers {
		res := fills[i]
		amount, shares := 0.0, 0.0
		betFills := make([]domain.Fill, len(res.Takers))
		for j, t := range res.Takers {
			amount += t.Amount
			shares += t.Shares
			betFills[j] = domain.Fill{
				MatchedBetID: t.MatchedBetID,
				Amount:       t.Amount,
				Shares:       t.Shares,
				Timestamp:    t.Timestamp,
			}
		}
		totalAmount += amount

		answerID := answer.ID
		probAfter := mustProbability(res.Pool)
		out.Results[i] = BetResult{
			Answer:         answer,
			Takers:         res.Takers,
			Makers:         res.Makers,
			OrdersToCancel: res.OrdersToCancel,
			Pool:           res.Pool,
			Bet: domain.Bet{
				ContractID:   contract.ID,
				AnswerID:     &answerID,
				Outcome:      domain.OutcomeNo,
				Amount:       amount,
				Shares:       shares,
				Fills:        betFills,
				ProbBefore:   answer.Prob,
				ProbAfter:    probAfter,
				Fees:         domain.NoFees,
				IsFilled:     true,
				IsRedemption: true,
				Visibility:   contract.Visibility,
				CreatedAt:    now,
			},
		}
	}
	out.ExtraMana = noShares*float64(len(answers)-1) - totalAmount

	return out, nil
}
