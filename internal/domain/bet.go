package domain

import "time"

// Outcome is the side of a bet.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the other side.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Fill records one fill of a bet, either against the pool (MatchedBetID nil)
// or against a resting limit order.
type Fill struct {
	MatchedBetID *string `json:"matchedBetId"`
	Amount       float64 `json:"amount"`
	Shares       float64 `json:"shares"`
	Timestamp    int64   `json:"timestamp"`
}

// Bet is an immutable trade record. After creation the only permitted
// mutations are limit-order fills (Amount/Shares/Fills/IsFilled) and
// cancellation (IsCancelled).
type Bet struct {
	ID         string  `json:"id"`
	ContractID string  `json:"contractId"`
	UserID     string  `json:"userId"`
	// AnswerID is nil for the contract-wide binary outcome.
	AnswerID *string `json:"answerId,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Amount   float64 `json:"amount"`
	Shares   float64 `json:"shares"`

	// OrderAmount and LimitProb are set for limit orders. A limit order rests
	// until market orders cross its price or it is cancelled.
	OrderAmount *float64 `json:"orderAmount,omitempty"`
	LimitProb   *float64 `json:"limitProb,omitempty"`
	Fills       []Fill   `json:"fills,omitempty"`

	ProbBefore float64 `json:"probBefore"`
	ProbAfter  float64 `json:"probAfter"`
	Fees       Fees    `json:"fees"`
	LoanAmount float64 `json:"loanAmount"`

	IsCancelled  bool `json:"isCancelled"`
	IsFilled     bool `json:"isFilled"`
	IsRedemption bool `json:"isRedemption"`
	IsAnte       bool `json:"isAnte"`
	IsChallenge  bool `json:"isChallenge"`
	IsApi        bool `json:"isApi"`

	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// IsUnfilledLimitOrder reports whether the bet is a resting limit order the
// market maker should match against.
func (b Bet) IsUnfilledLimitOrder() bool {
	return b.LimitProb != nil && !b.IsFilled && !b.IsCancelled
}
