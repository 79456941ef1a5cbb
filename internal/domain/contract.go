// Package domain defines the core types of the prediction-market ledger:
// contracts, answers, bets, users, and the transactional store interfaces
// that every settlement operation runs against.
package domain

import "time"

// Mechanism identifies the market-maker mechanism backing a contract.
type Mechanism string

const (
	// MechanismCpmm1 is a binary constant-product market.
	MechanismCpmm1 Mechanism = "cpmm-1"
	// MechanismCpmmMulti1 is a multi-answer constant-product market.
	MechanismCpmmMulti1 Mechanism = "cpmm-multi-1"
)

// OutcomeType classifies what kind of outcomes a contract has.
type OutcomeType string

const (
	OutcomeTypeBinary         OutcomeType = "BINARY"
	OutcomeTypeMultipleChoice OutcomeType = "MULTIPLE_CHOICE"
	OutcomeTypeNumber         OutcomeType = "NUMBER"
)

// AddAnswersMode controls who may add answers to a multi-answer contract.
type AddAnswersMode string

const (
	AddAnswersDisabled    AddAnswersMode = "DISABLED"
	AddAnswersOnlyCreator AddAnswersMode = "ONLY_CREATOR"
	AddAnswersAnyone      AddAnswersMode = "ANYONE"
)

// Visibility controls who can see a contract and its bets.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Contract is a market. Contracts are never physically deleted; resolution
// and closing are soft states.
type Contract struct {
	ID                    string         `json:"id"`
	CreatorID             string         `json:"creatorId"`
	Question              string         `json:"question"`
	Mechanism             Mechanism      `json:"mechanism"`
	OutcomeType           OutcomeType    `json:"outcomeType"`
	AddAnswersMode        AddAnswersMode `json:"addAnswersMode"`
	ShouldAnswersSumToOne bool           `json:"shouldAnswersSumToOne"`
	Visibility            Visibility     `json:"visibility"`
	CloseTime             *time.Time     `json:"closeTime,omitempty"`
	TotalLiquidity        float64        `json:"totalLiquidity"`
	GroupIDs              []string       `json:"groupIds,omitempty"`
	IsResolved            bool           `json:"isResolved"`
	CreatedAt             time.Time      `json:"createdAt"`
}

// IsClosed reports whether trading has closed as of now.
func (c Contract) IsClosed(now time.Time) bool {
	return c.CloseTime != nil && now.After(*c.CloseTime)
}

// Group is a topic tag that contracts can be filed under. The core only
// needs its id and privacy status; full group management lives elsewhere.
type Group struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PrivacyStatus string    `json:"privacyStatus"`
	CreatedAt     time.Time `json:"createdAt"`
}
