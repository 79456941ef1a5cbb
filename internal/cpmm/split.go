package cpmm

import (
	"math"

	"github.com/tylerheishman/manifold/internal/domain"
)

// SplitResult is the pool redistribution computed when a new answer is
// carved out of the "Other" catch-all on a sum-to-one contract, before the
// bet-down step runs.
type SplitResult struct {
	// NewAnswer is the inserted answer with its freshly split pool. Its
	// index slots in before Other, which always stays last.
	NewAnswer domain.Answer
	// OtherAnswer is Other after giving up liquidity and excess shares.
	OtherAnswer domain.Answer
	// PreviousAnswers are all pre-existing non-Other answers; when Other was
	// NO-heavy their YES pools have been credited with the excess.
	PreviousAnswers []domain.Answer
	// ExcessYes and ExcessNo report Other's pre-split imbalance. At most one
	// is nonzero.
	ExcessYes float64
	ExcessNo  float64
}

// AllAnswers returns previous answers, the new answer, and Other, in index
// order: the answer set the bet-down step operates on.
func (s SplitResult) AllAnswers() []domain.Answer {
	out := make([]domain.Answer, 0, len(s.PreviousAnswers)+2)
	out = append(out, s.PreviousAnswers...)
	out = append(out, s.NewAnswer, s.OtherAnswer)
	return out
}

// SplitFromOther computes the probability-mass redistribution for inserting
// newAnswer into a sum-to-one contract. A new answer cannot simply appear;
// its probability is carved out of the Other answer:
//
//  1. The mana budget is answerCost plus the balanced liquidity trapped in
//     Other, min(poolYes, poolNo).
//  2. Other's imbalance is split off as excess YES or NO shares.
//  3. The budget is divided between the new answer and Other, and any excess
//     YES shares are credited to both YES pools: a YES holder of Other is
//     entitled to YES on the refinement split out of it.
//  4. Excess NO shares are credited to every previous answer's YES pool:
//     NO-on-Other means "something else wins", which spans the siblings.
//  5. The resulting probabilities sum to more than 1; the caller bets the
//     surplus down with BetDownToOne and reinjects the extra mana as
//     subsidy.
//
// answers must be the contract's current answers including Other.
func SplitFromOther(answers []domain.Answer, newAnswer domain.Answer, answerCost float64) (SplitResult, error) {
	var other *domain.Answer
	previous := make([]domain.Answer, 0, len(answers))
	for _, a := range answers {
		if a.IsOther {
			a := a
			other = &a
		} else {
			previous = append(previous, a)
		}
	}
	if other == nil {
		return SplitResult{}, ErrInvariant(`"Other" answer not found, and is required for adding new answers`)
	}
	if err := checkPool(other.Pool()); err != nil {
		return SplitResult{}, err
	}

	mana := answerCost + math.Min(other.PoolYes, other.PoolNo)
	excessYes := math.Max(0, other.PoolYes-other.PoolNo)
	excessNo := math.Max(0, other.PoolNo-other.PoolYes)

	costOrHalf := math.Min(answerCost, mana/2)
	newAnswerPool := domain.Pool{Yes: costOrHalf + excessYes, No: costOrHalf}
	newOtherPool := domain.Pool{Yes: mana - costOrHalf + excessYes, No: mana - costOrHalf}

	newAnswerProb, err := Probability(newAnswerPool)
	if err != nil {
		return SplitResult{}, err
	}
	otherProb, err := Probability(newOtherPool)
	if err != nil {
		return SplitResult{}, err
	}

	n := len(answers)
	newAnswer.Index = n - 1
	newAnswer.PoolYes = newAnswerPool.Yes
	newAnswer.PoolNo = newAnswerPool.No
	newAnswer.Prob = newAnswerProb
	newAnswer.TotalLiquidity = costOrHalf
	newAnswer.IsOther = false

	updatedOther := *other
	updatedOther.Index = n
	updatedOther.PoolYes = newOtherPool.Yes
	updatedOther.PoolNo = newOtherPool.No
	updatedOther.Prob = otherProb
	updatedOther.TotalLiquidity = newOtherPool.No

	for i := range previous {
		previous[i].PoolYes += excessNo
	}

	return SplitResult{
		NewAnswer:       newAnswer,
		OtherAnswer:     updatedOther,
		PreviousAnswers: previous,
		ExcessYes:       excessYes,
		ExcessNo:        excessNo,
	}, nil
}
