package calculator

// Tier is an allowed contract duration with its bonus and the duration
// that must have succeeded before it unlocks (0 = always available).
type Tier struct {
	DurationDays int
	BonusPct     int64
	Requires     int
}

// Tiers defines the five allowed durations.
var Tiers = []Tier{
	{DurationDays: 1, BonusPct: 10},
	{DurationDays: 3, BonusPct: 20},
	{DurationDays: 7, BonusPct: 30},
	{DurationDays: 14, BonusPct: 40, Requires: 7},
	{DurationDays: 30, BonusPct: 50, Requires: 14},
}

// LookupTier finds the tier for a duration.
func LookupTier(durationDays int) (Tier, bool) {
	for _, t := range Tiers {
		if t.DurationDays == durationDays {
			return t, true
		}
	}
	return Tier{}, false
}

// Gated reports whether a duration needs a prior success to unlock.
func Gated(durationDays int) bool {
	t, ok := LookupTier(durationDays)
	return ok && t.Requires != 0
}
