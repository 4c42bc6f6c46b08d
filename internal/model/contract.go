package model

import "time"

// ContractStatus is the lifecycle state of a commitment contract.
type ContractStatus string

const (
	StatusActive    ContractStatus = "active"
	StatusSucceeded ContractStatus = "succeeded"
	StatusFailed    ContractStatus = "failed"
	StatusCancelled ContractStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ContractStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Contract is a time-boxed commitment backed by escrowed tokens.
type Contract struct {
	ID                     string         `json:"id"`
	OwnerID                string         `json:"owner_id"`
	AllyID                 string         `json:"ally_id,omitempty"`
	StartDate              time.Time      `json:"start_date"`
	EndDate                time.Time      `json:"end_date"`
	DurationDays           int            `json:"duration_days"`
	StakeAmount            int64          `json:"stake_amount"`
	AllyStakeAmount        int64          `json:"ally_stake_amount"`
	Status                 ContractStatus `json:"status"`
	FailureCountAtCreation int            `json:"failure_count_at_creation"`
	CreatedAt              time.Time      `json:"created_at"`
	SettledAt              *time.Time     `json:"settled_at,omitempty"`
}

// HasAlly reports whether an ally co-staked tokens.
func (c Contract) HasAlly() bool {
	return c.AllyID != "" && c.AllyStakeAmount > 0
}
