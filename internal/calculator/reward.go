package calculator

// AllyBonusPct is the flat bonus an ally earns on a successful contract.
const AllyBonusPct int64 = 10

// RecoveryPct is the share of lost tokens returned by a completed mission.
const RecoveryPct int64 = 30

// MaxStakePct bounds a stake relative to the balance at creation time.
const MaxStakePct int64 = 50

// BonusPct returns the owner success bonus for a duration tier, or 0 if
// the duration is not a tier.
func BonusPct(durationDays int) int64 {
	if t, ok := LookupTier(durationDays); ok {
		return t.BonusPct
	}
	return 0
}

// SuccessPayout is the stake returned plus the duration bonus.
func SuccessPayout(stake int64, durationDays int) int64 {
	return stake + Percent(stake, BonusPct(durationDays))
}

// AllyPayout is the ally stake returned plus the flat ally bonus.
func AllyPayout(allyStake int64) int64 {
	return allyStake + Percent(allyStake, AllyBonusPct)
}

// RecoveryCredit is what a completed mission pays back.
func RecoveryCredit(lostTokens int64) int64 {
	return Percent(lostTokens, RecoveryPct)
}

// MaxStake is floor(balance × 50%).
func MaxStake(balance int64) int64 {
	return Percent(balance, MaxStakePct)
}

// Percent returns floor(amount × pct / 100) for non-negative inputs.
func Percent(amount, pct int64) int64 {
	if amount <= 0 || pct <= 0 {
		return 0
	}
	return amount/100*pct + amount%100*pct/100
}
