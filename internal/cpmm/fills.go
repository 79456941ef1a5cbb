package cpmm

import (
	"math"
	"sort"
	"time"

	"github.com/tylerheishman/manifold/internal/domain"
)

// TakerFill is one fill received by the taker of a market order, either from
// the pool (MatchedBetID nil) or from a resting limit order.
type TakerFill struct {
	MatchedBetID *string
	Amount       float64
	Shares       float64
	Timestamp    int64
}

// MakerFill is the maker side of a fill against a resting limit order.
type MakerFill struct {
	Bet       domain.Bet
	Amount    float64
	Shares    float64
	Timestamp int64
}

// FillResult is the outcome of matching a market amount against the pool and
// the resting limit orders of one answer.
type FillResult struct {
	Takers         []TakerFill
	Makers         []MakerFill
	OrdersToCancel []domain.Bet
	Pool           domain.Pool
}

// ComputeFills matches a market purchase of outcome for betAmount mana
// against the opposite-side resting limit orders and the pool. Orders with a
// more favorable price than the pool are filled first, best price first,
// ties broken by creation time. Makers without sufficient balance are
// skipped and queued for cancellation. limitProb, when non-nil, stops the
// taker once the pool price reaches it (the taker itself is a limit order).
//
// The now parameter stamps fills; callers pass it in so settlement stays
// deterministic and reproducible for identical inputs.
func ComputeFills(
	pool domain.Pool,
	outcome domain.Outcome,
	betAmount float64,
	limitProb *float64,
	unfilledBets []domain.Bet,
	balanceByUserID map[string]float64,
	now time.Time,
) (FillResult, error) {
	if betAmount < 0 || !isFinite(betAmount) {
		return FillResult{}, ErrInvariant("bad bet amount %v", betAmount)
	}
	if err := checkPool(pool); err != nil {
		return FillResult{}, err
	}

	// Makers are the resting orders on the opposite side. A YES taker wants
	// the lowest limit probability first; a NO taker the highest.
	makerBets := make([]domain.Bet, 0, len(unfilledBets))
	for _, b := range unfilledBets {
		if b.Outcome != outcome && b.IsUnfilledLimitOrder() {
			makerBets = append(makerBets, b)
		}
	}
	sort.SliceStable(makerBets, func(i, j int) bool {
		pi, pj := *makerBets[i].LimitProb, *makerBets[j].LimitProb
		if pi != pj {
			if outcome == domain.OutcomeYes {
				return pi < pj
			}
			return pi > pj
		}
		return makerBets[i].CreatedAt.Before(makerBets[j].CreatedAt)
	})

	result := FillResult{Pool: pool}
	balances := make(map[string]float64, len(balanceByUserID))
	for id, bal := range balanceByUserID {
		balances[id] = bal
	}

	amount := betAmount
	ts := now.UnixMilli()
	i := 0
	for {
		var matched *domain.Bet
		if i < len(makerBets) {
			matched = &makerBets[i]
		}

		fill, err := computeFill(result.Pool, outcome, amount, limitProb, matched, ts)
		if err != nil {
			return FillResult{}, err
		}
		if fill == nil {
			break
		}

		if fill.maker == nil {
			// Filled against the pool.
			result.Pool = fill.newPool
			result.Takers = append(result.Takers, fill.taker)
		} else {
			i++
			maker := *fill.maker
			userID := maker.Bet.UserID
			if !FloatingGreaterEqual(balances[userID], maker.Amount) {
				// Maker can no longer afford the fill; cancel the order.
				result.OrdersToCancel = append(result.OrdersToCancel, maker.Bet)
				continue
			}
			balances[userID] -= maker.Amount
			result.Takers = append(result.Takers, fill.taker)
			result.Makers = append(result.Makers, maker)
		}

		amount -= fill.taker.Amount
		if FloatingEqual(amount, 0) {
			break
		}
	}

	return result, nil
}

type fill struct {
	taker   TakerFill
	maker   *MakerFill
	newPool domain.Pool
}

func computeFill(
	pool domain.Pool,
	outcome domain.Outcome,
	amount float64,
	limitProb *float64,
	matched *domain.Bet,
	ts int64,
) (*fill, error) {
	prob := mustProbability(pool)

	if limitProb != nil {
		lp := *limitProb
		var reached bool
		if outcome == domain.OutcomeYes {
			reached = FloatingGreaterEqual(prob, lp) && (matched == nil || *matched.LimitProb > lp)
		} else {
			reached = FloatingLesserEqual(prob, lp) && (matched == nil || *matched.LimitProb < lp)
		}
		if reached {
			// Taker's own limit price reached; no more fills.
			return nil, nil
		}
	}

	crossesMatched := matched != nil &&
		(outcome == domain.OutcomeYes && FloatingGreaterEqual(prob, *matched.LimitProb) ||
			outcome == domain.OutcomeNo && FloatingLesserEqual(prob, *matched.LimitProb))

	if !crossesMatched {
		// Fill from the pool, up to the nearer of the matched order's price
		// and the taker's own limit.
		var limit *float64
		if matched == nil {
			limit = limitProb
		} else {
			l := *matched.LimitProb
			if limitProb != nil {
				if outcome == domain.OutcomeYes {
					l = math.Min(l, *limitProb)
				} else {
					l = math.Max(l, *limitProb)
				}
			}
			limit = &l
		}

		buyAmount := amount
		if limit != nil {
			toProb, err := AmountToProb(pool, *limit, outcome)
			if err != nil {
				return nil, err
			}
			buyAmount = math.Min(amount, toProb)
		}

		shares, newPool, err := CalculatePurchase(pool, buyAmount, outcome)
		if err != nil {
			return nil, err
		}
		return &fill{
			taker:   TakerFill{MatchedBetID: nil, Amount: buyAmount, Shares: shares, Timestamp: ts},
			newPool: newPool,
		}, nil
	}

	// Fill against the matched limit order at its limit probability. The
	// trade prices at lp: a YES share costs lp, the opposing NO share 1-lp,
	// one mana per share pair between the two sides.
	bet := *matched
	lp := *bet.LimitProb
	takerPrice, makerPrice := lp, 1-lp
	if outcome == domain.OutcomeNo {
		takerPrice, makerPrice = 1-lp, lp
	}

	// A limit order's Amount tracks the mana filled so far; OrderAmount is
	// the total it rests for. Whether the maker can actually afford the fill
	// is checked by the caller, which cancels the order if not.
	orderAmount := bet.Amount
	if bet.OrderAmount != nil {
		orderAmount = *bet.OrderAmount
	}
	amountRemaining := orderAmount - bet.Amount
	shares := math.Min(amount/takerPrice, amountRemaining/makerPrice)
	if !isFinite(shares) || shares < 0 {
		return nil, ErrInvariant("non-finite fill shares against order %s", bet.ID)
	}

	id := bet.ID
	return &fill{
		taker: TakerFill{MatchedBetID: &id, Amount: shares * takerPrice, Shares: shares, Timestamp: ts},
		maker: &MakerFill{Bet: bet, Amount: shares * makerPrice, Shares: shares, Timestamp: ts},
	}, nil
}
