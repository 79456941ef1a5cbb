package domain

// Pool is the pair of reserve balances backing an automated market. The same
// shape is used for a standalone binary contract and for one answer within a
// multi-answer contract; answer-scoping is a property of where the pool is
// stored, not of its shape.
type Pool struct {
	Yes float64 `json:"YES"`
	No  float64 `json:"NO"`
}

// Fees records the fee split charged on a bet. Redemption and arbitrage bets
// always carry NoFees.
type Fees struct {
	CreatorFee   float64 `json:"creatorFee"`
	PlatformFee  float64 `json:"platformFee"`
	LiquidityFee float64 `json:"liquidityFee"`
}

// NoFees is the zero fee split.
var NoFees = Fees{}

// Total returns the sum of all fee components.
func (f Fees) Total() float64 {
	return f.CreatorFee + f.PlatformFee + f.LiquidityFee
}
