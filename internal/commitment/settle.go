package commitment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StreakStake/internal/calculator"
	"StreakStake/internal/metrics"
	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// settle runs one terminal transition. apply is called after the status
// compare-and-swap succeeded. A contract that is already terminal, or that
// another writer settled first, yields settled=false and no error.
func (m *Manager) settle(ctx context.Context, contractID string, to model.ContractStatus,
	precheck func(c model.Contract, now time.Time) error,
	apply func(tx store.Tx, c model.Contract) error,
) (model.Contract, bool, error) {
	var (
		contract model.Contract
		noop     bool
	)
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if c.Status.Terminal() {
			noop = true
			return nil
		}
		now := m.ledger.Now()
		if precheck != nil {
			if err := precheck(c, now); err != nil {
				return err
			}
		}
		if _, err := lockAccounts(ctx, tx, c.OwnerID, c.AllyID); err != nil {
			return err
		}
		if err := tx.TransitionContract(ctx, c.ID, model.StatusActive, to, now); err != nil {
			if errors.Is(err, model.ErrStateConflict) {
				noop = true
			}
			return err
		}
		c.Status = to
		c.SettledAt = &now
		contract = c
		return apply(tx, c)
	})
	if noop {
		return model.Contract{}, false, nil
	}
	if err != nil {
		return model.Contract{}, false, err
	}
	metrics.ContractSettled(to)
	return contract, true, nil
}

// SettleSuccess pays out a contract whose end date has passed with no
// recorded failure: stake plus duration bonus to the owner, ally stake plus
// 10% to the ally, and one more step on the owner's success streak.
func (m *Manager) SettleSuccess(ctx context.Context, contractID string) (bool, error) {
	var payout, allyPayout int64
	contract, settled, err := m.settle(ctx, contractID, model.StatusSucceeded,
		func(c model.Contract, now time.Time) error {
			if now.Before(c.EndDate) {
				return fmt.Errorf("contract %s runs until %s: %w",
					c.ID, c.EndDate.Format(time.RFC3339), model.ErrStateConflict)
			}
			return nil
		},
		func(tx store.Tx, c model.Contract) error {
			ref := model.Ref{ContractID: c.ID}
			payout = calculator.SuccessPayout(c.StakeAmount, c.DurationDays)
			if _, err := m.ledger.Credit(ctx, tx, c.OwnerID, payout, model.KindSuccessCredit, ref); err != nil {
				return err
			}
			if c.HasAlly() {
				allyPayout = calculator.AllyPayout(c.AllyStakeAmount)
				if _, err := m.ledger.Credit(ctx, tx, c.AllyID, allyPayout, model.KindAllyCredit, ref); err != nil {
					return err
				}
			}
			owner, err := tx.LockAccount(ctx, c.OwnerID)
			if err != nil {
				return err
			}
			owner.SuccessStreak++
			owner.UpdatedAt = m.ledger.Now()
			return tx.UpdateAccount(ctx, &owner)
		},
	)
	if err != nil || !settled {
		return false, err
	}
	m.contractLog(contract).WithField("payout", payout).WithField("ally_payout", allyPayout).
		Info("contract succeeded")
	return true, nil
}

// SettleFailure fails an active contract. The loss percentage comes from the
// failure count snapshotted at creation; the forfeited part of each stake is
// recorded as a penalty-loss and the rest is refunded. The owner's failure
// count grows by one, the streak resets and a recovery mission opens for the
// owner's loss.
func (m *Manager) SettleFailure(ctx context.Context, contractID string) (bool, error) {
	var loss, allyLoss int64
	contract, settled, err := m.settle(ctx, contractID, model.StatusFailed, nil,
		func(tx store.Tx, c model.Contract) error {
			pct := calculator.PenaltyPct(c.FailureCountAtCreation)
			loss = calculator.Loss(c.StakeAmount, c.FailureCountAtCreation)
			if err := m.forfeit(ctx, tx, c, c.OwnerID, c.StakeAmount, loss, pct); err != nil {
				return err
			}
			if c.HasAlly() {
				allyLoss = calculator.Percent(c.AllyStakeAmount, pct)
				if err := m.forfeit(ctx, tx, c, c.AllyID, c.AllyStakeAmount, allyLoss, pct); err != nil {
					return err
				}
			}

			owner, err := tx.LockAccount(ctx, c.OwnerID)
			if err != nil {
				return err
			}
			owner.FailureCount++
			owner.SuccessStreak = 0
			owner.UpdatedAt = m.ledger.Now()
			if err := tx.UpdateAccount(ctx, &owner); err != nil {
				return err
			}

			_, err = m.missions.CreateMission(ctx, tx, c, loss)
			return err
		},
	)
	if err != nil || !settled {
		return false, err
	}
	m.contractLog(contract).WithField("loss", loss).WithField("ally_loss", allyLoss).
		WithField("loss_pct", calculator.PenaltyPct(contract.FailureCountAtCreation)).
		Warn("contract failed")
	return true, nil
}

func (m *Manager) forfeit(ctx context.Context, tx store.Tx, c model.Contract, accountID string, stake, loss, pct int64) error {
	ref := model.Ref{ContractID: c.ID, Note: fmt.Sprintf("%d%% of %d", pct, stake)}
	if _, err := m.ledger.RecordLoss(ctx, tx, accountID, loss, ref); err != nil {
		return err
	}
	if refund := stake - loss; refund > 0 {
		if _, err := m.ledger.Credit(ctx, tx, accountID, refund, model.KindStakeRefund, model.Ref{ContractID: c.ID}); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateDailyOutcome applies one day's check-in result. A defeat or a
// missing check-in fails the contract at once; a victory changes nothing.
func (m *Manager) EvaluateDailyOutcome(ctx context.Context, contractID string, status model.CheckInStatus) (bool, error) {
	switch status {
	case model.CheckInVictory:
		return false, nil
	case model.CheckInDefeat, model.CheckInMissing:
		return m.SettleFailure(ctx, contractID)
	default:
		return false, fmt.Errorf("check-in status %q: %w", status, model.ErrValidation)
	}
}
