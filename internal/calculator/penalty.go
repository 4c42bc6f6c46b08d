package calculator

// PenaltyTiers maps a prior failure count to the share of stake lost.
// Entries are ordered by MinFailures descending; the first match wins.
var PenaltyTiers = []struct {
	MinFailures int
	LossPct     int64
}{
	{2, 25},
	{1, 50},
	{0, 100},
}

// PenaltyPct returns the loss percentage for an account that had
// priorFailures failed contracts when the contract was created.
func PenaltyPct(priorFailures int) int64 {
	for _, t := range PenaltyTiers {
		if priorFailures >= t.MinFailures {
			return t.LossPct
		}
	}
	return 100
}

// Loss returns floor(stake × lossPct / 100).
func Loss(stake int64, priorFailures int) int64 {
	return Percent(stake, PenaltyPct(priorFailures))
}
