package model

import "time"

// Account holds a user's token balance and streak counters.
type Account struct {
	ID             string    `json:"id"`
	Balance        int64     `json:"balance"`
	InitialBalance int64     `json:"initial_balance"`
	FailureCount   int       `json:"failure_count"`
	SuccessStreak  int       `json:"success_streak"`
	Timezone       string    `json:"timezone"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Location resolves the account timezone, falling back to UTC.
func (a Account) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AccountView is an account together with its derived duration unlocks.
type AccountView struct {
	Account
	UnlockedTiers []int `json:"unlocked_tiers"`
}
