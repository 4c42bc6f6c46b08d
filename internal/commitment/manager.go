package commitment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"StreakStake/internal/calculator"
	"StreakStake/internal/ledger"
	"StreakStake/internal/metrics"
	"StreakStake/internal/model"
	"StreakStake/internal/recovery"
	"StreakStake/internal/store"
)

// Manager owns the contract state machine:
//
//	active ─┬─> succeeded
//	        ├─> failed     (opens a recovery mission)
//	        └─> cancelled
//
// Every transition is a compare-and-swap on status inside the same
// transaction as its ledger entries.
type Manager struct {
	store    store.Store
	ledger   *ledger.Ledger
	missions *recovery.Manager
	log      *logrus.Entry
}

// NewManager wires the lifecycle manager to its collaborators.
func NewManager(s store.Store, l *ledger.Ledger, missions *recovery.Manager, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.WithField("component", "commitment")
	}
	return &Manager{store: s, ledger: l, missions: missions, log: log}
}

// CreateRequest describes a new contract. AllyID and AllyStakeAmount are optional.
type CreateRequest struct {
	OwnerID         string `json:"owner_id"`
	DurationDays    int    `json:"duration_days"`
	StakeAmount     int64  `json:"stake_amount"`
	AllyID          string `json:"ally_id,omitempty"`
	AllyStakeAmount int64  `json:"ally_stake_amount,omitempty"`
}

func (r CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.OwnerID) == "":
		return fmt.Errorf("owner_id is required: %w", model.ErrValidation)
	case r.StakeAmount <= 0:
		return fmt.Errorf("stake_amount must be positive: %w", model.ErrValidation)
	case r.AllyStakeAmount < 0:
		return fmt.Errorf("ally_stake_amount must not be negative: %w", model.ErrValidation)
	case r.AllyStakeAmount > 0 && r.AllyID == "":
		return fmt.Errorf("ally_stake_amount requires ally_id: %w", model.ErrValidation)
	case r.AllyID != "" && r.AllyID == r.OwnerID:
		return fmt.Errorf("owner cannot be their own ally: %w", model.ErrValidation)
	}
	if _, ok := calculator.LookupTier(r.DurationDays); !ok {
		return fmt.Errorf("duration %d is not an allowed tier: %w", r.DurationDays, model.ErrValidation)
	}
	return nil
}

// Create validates the tier and stake against the owner's locked balance,
// escrows the owner and ally stakes and stores the contract as active.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (model.Contract, error) {
	if err := req.validate(); err != nil {
		return model.Contract{}, err
	}
	tier, _ := calculator.LookupTier(req.DurationDays)

	var contract model.Contract
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := lockAccounts(ctx, tx, req.OwnerID, req.AllyID)
		if err != nil {
			return err
		}
		owner := locked[req.OwnerID]

		if tier.Requires != 0 {
			ok, err := tx.HasSucceededContract(ctx, owner.ID, tier.Requires)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%d-day contracts need a succeeded %d-day contract: %w",
					tier.DurationDays, tier.Requires, model.ErrTierLocked)
			}
		}
		if limit := calculator.MaxStake(owner.Balance); req.StakeAmount > limit {
			return fmt.Errorf("stake %d exceeds %d (50%% of balance %d): %w",
				req.StakeAmount, limit, owner.Balance, model.ErrStakeTooHigh)
		}

		now := m.ledger.Now()
		contract = model.Contract{
			ID:                     uuid.NewString(),
			OwnerID:                owner.ID,
			AllyID:                 req.AllyID,
			StartDate:              now,
			EndDate:                now.AddDate(0, 0, req.DurationDays),
			DurationDays:           req.DurationDays,
			StakeAmount:            req.StakeAmount,
			AllyStakeAmount:        req.AllyStakeAmount,
			Status:                 model.StatusActive,
			FailureCountAtCreation: owner.FailureCount,
			CreatedAt:              now,
		}
		if err := tx.InsertContract(ctx, contract); err != nil {
			return err
		}

		ref := model.Ref{ContractID: contract.ID}
		if _, err := m.ledger.Debit(ctx, tx, owner.ID, contract.StakeAmount, model.KindStakeDebit, ref); err != nil {
			return err
		}
		if contract.AllyStakeAmount > 0 {
			if _, err := m.ledger.Debit(ctx, tx, contract.AllyID, contract.AllyStakeAmount, model.KindStakeDebit, ref); err != nil {
				return fmt.Errorf("ally stake: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return model.Contract{}, err
	}

	metrics.ContractCreated(contract.DurationDays)
	m.contractLog(contract).WithField("stake", contract.StakeAmount).
		WithField("duration_days", contract.DurationDays).Info("contract created")
	return contract, nil
}

// Cancel ends an active contract early at the owner's request and refunds
// every escrowed stake in full.
func (m *Manager) Cancel(ctx context.Context, contractID, callerID string) error {
	var contract model.Contract
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.OwnerID != callerID {
			return fmt.Errorf("contract %s belongs to another account: %w", c.ID, model.ErrUnauthorized)
		}
		if c.Status != model.StatusActive {
			return fmt.Errorf("contract %s is %s: %w", c.ID, c.Status, model.ErrStateConflict)
		}
		if _, err := lockAccounts(ctx, tx, c.OwnerID, c.AllyID); err != nil {
			return err
		}
		if err := tx.TransitionContract(ctx, c.ID, model.StatusActive, model.StatusCancelled, m.ledger.Now()); err != nil {
			return err
		}

		ref := model.Ref{ContractID: c.ID, Note: "cancelled"}
		if _, err := m.ledger.Credit(ctx, tx, c.OwnerID, c.StakeAmount, model.KindStakeRefund, ref); err != nil {
			return err
		}
		if c.HasAlly() {
			if _, err := m.ledger.Credit(ctx, tx, c.AllyID, c.AllyStakeAmount, model.KindStakeRefund, ref); err != nil {
				return err
			}
		}
		contract = c
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ContractSettled(model.StatusCancelled)
	m.contractLog(contract).Info("contract cancelled, stakes refunded")
	return nil
}

// lockAccounts takes the row locks of the given accounts in id order so
// that two transactions touching the same pair cannot deadlock.
func lockAccounts(ctx context.Context, tx store.Tx, ids ...string) (map[string]model.Account, error) {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}
	sort.Strings(uniq)

	out := make(map[string]model.Account, len(uniq))
	for _, id := range uniq {
		acct, err := tx.LockAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = acct
	}
	return out, nil
}

func (m *Manager) contractLog(c model.Contract) *logrus.Entry {
	entry := m.log.WithField("contract_id", c.ID).WithField("account_id", c.OwnerID)
	if c.AllyID != "" {
		entry = entry.WithField("ally_id", c.AllyID)
	}
	return entry
}
