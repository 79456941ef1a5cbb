package domain

import "time"

// User carries the slice of profile state the settlement core needs: a
// balance to debit/credit and a posting ban flag. Full profile management
// is out of scope.
type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	Balance             float64   `json:"balance"`
	TotalDeposits       float64   `json:"totalDeposits"`
	IsBannedFromPosting bool      `json:"isBannedFromPosting"`
	IsAdmin             bool      `json:"isAdmin"`
	CreatedAt           time.Time `json:"createdAt"`
}

// LiquidityProvision tracks mana injected into a pool by a user or by the
// system (for example the fixed answer cost seeded into every new answer).
// Provisions are immutable.
type LiquidityProvision struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contractId"`
	AnswerID   *string   `json:"answerId,omitempty"`
	UserID     string    `json:"userId"`
	Amount     float64   `json:"amount"`
	Pool       Pool      `json:"pool"`
	IsAnte     bool      `json:"isAnte"`
	CreatedAt  time.Time `json:"createdAt"`
}
