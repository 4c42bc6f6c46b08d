package commitment

import (
	"context"
	"fmt"

	"StreakStake/internal/calculator"
	"StreakStake/internal/model"
)

// Get returns one contract.
func (m *Manager) Get(ctx context.Context, id string) (model.Contract, error) {
	return m.store.GetContract(ctx, id)
}

// Active lists the owner's active contracts, newest first.
func (m *Manager) Active(ctx context.Context, ownerID string) ([]model.Contract, error) {
	if _, err := m.store.GetAccount(ctx, ownerID); err != nil {
		return nil, err
	}
	return m.store.ListContractsByOwner(ctx, ownerID, true)
}

// History lists every contract of the owner, newest first.
func (m *Manager) History(ctx context.Context, ownerID string) ([]model.Contract, error) {
	if _, err := m.store.GetAccount(ctx, ownerID); err != nil {
		return nil, err
	}
	return m.store.ListContractsByOwner(ctx, ownerID, false)
}

// IsTierUnlocked reports whether the owner may create contracts of a gated
// duration (14 or 30 days).
func (m *Manager) IsTierUnlocked(ctx context.Context, ownerID string, tier int) (bool, error) {
	if !calculator.Gated(tier) {
		return false, fmt.Errorf("tier %d is not gated: %w", tier, model.ErrValidation)
	}
	if _, err := m.store.GetAccount(ctx, ownerID); err != nil {
		return false, err
	}
	t, _ := calculator.LookupTier(tier)
	return m.store.HasSucceededContract(ctx, ownerID, t.Requires)
}

// AccountView returns the account with every duration it may currently use.
func (m *Manager) AccountView(ctx context.Context, ownerID string) (model.AccountView, error) {
	acct, err := m.store.GetAccount(ctx, ownerID)
	if err != nil {
		return model.AccountView{}, err
	}
	view := model.AccountView{Account: acct}
	for _, t := range calculator.Tiers {
		if t.Requires == 0 {
			view.UnlockedTiers = append(view.UnlockedTiers, t.DurationDays)
			continue
		}
		ok, err := m.store.HasSucceededContract(ctx, ownerID, t.Requires)
		if err != nil {
			return model.AccountView{}, err
		}
		if ok {
			view.UnlockedTiers = append(view.UnlockedTiers, t.DurationDays)
		}
	}
	return view, nil
}
