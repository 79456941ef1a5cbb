package domain

import "time"

// Answer is one outcome of a multi-answer contract. Answers are never
// deleted, only marked resolved.
type Answer struct {
	ID             string    `json:"id"`
	ContractID     string    `json:"contractId"`
	UserID         string    `json:"userId"`
	Index          int       `json:"index"`
	Text           string    `json:"text"`
	PoolYes        float64   `json:"poolYes"`
	PoolNo         float64   `json:"poolNo"`
	Prob           float64   `json:"prob"`
	TotalLiquidity float64   `json:"totalLiquidity"`
	SubsidyPool    float64   `json:"subsidyPool"`
	IsOther        bool      `json:"isOther"`
	Resolution     *string   `json:"resolution,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Pool returns the answer's reserves as a Pool value.
func (a Answer) Pool() Pool {
	return Pool{Yes: a.PoolYes, No: a.PoolNo}
}
