package domain

import "context"

// Tx is the set of reads and writes available inside one ledger transaction.
// All reads observe a consistent snapshot; all writes are atomic with the
// transaction's commit. No component may write ledger documents outside a Tx.
type Tx interface {
	GetContract(ctx context.Context, id string) (Contract, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetGroup(ctx context.Context, id string) (Group, error)

	// ListAnswers returns a contract's answers ordered by index.
	ListAnswers(ctx context.Context, contractID string) ([]Answer, error)
	ListBetsByUser(ctx context.Context, contractID, userID string) ([]Bet, error)
	ListBetsByAnswer(ctx context.Context, contractID, answerID string) ([]Bet, error)
	// ListUnfilledLimitBets returns the resting limit orders on a contract.
	ListUnfilledLimitBets(ctx context.Context, contractID string) ([]Bet, error)
	// UserBalances returns the current balance of each given user.
	UserBalances(ctx context.Context, userIDs []string) (map[string]float64, error)

	CreateAnswer(ctx context.Context, a Answer) error
	UpdateAnswer(ctx context.Context, a Answer) error
	CreateBet(ctx context.Context, b Bet) error
	// UpdateBetFills replaces a limit order's fill state after it has been
	// (partially) matched.
	UpdateBetFills(ctx context.Context, betID string, fills []Fill, amount, shares float64, isFilled bool) error
	CancelBet(ctx context.Context, betID string) error
	CreateLiquidity(ctx context.Context, lp LiquidityProvision) error
	UpdateContract(ctx context.Context, c Contract) error
	IncrementContractLiquidity(ctx context.Context, contractID string, delta float64) error
	// IncrementBalance atomically adjusts a user's balance and total deposits.
	IncrementBalance(ctx context.Context, userID string, balanceDelta, depositsDelta float64) error
}

// Ledger runs functions inside serializable transactions against the shared
// document set (contracts, answers, bets, liquidity, users). Implementations
// retry fn on write-conflict up to a configured bound, so fn must be safe to
// re-execute and must not perform irreversible external I/O.
type Ledger interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
