package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// OpenAccount creates an account with an opening balance. The opening
// balance is the baseline of the conservation audit, not a transaction.
func (l *Ledger) OpenAccount(ctx context.Context, id string, initialBalance int64, timezone string) (model.Account, error) {
	if initialBalance < 0 {
		return model.Account{}, fmt.Errorf("initial balance %d: %w", initialBalance, model.ErrValidation)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if timezone == "" {
		timezone = l.defaultTZ
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return model.Account{}, fmt.Errorf("timezone %q: %w", timezone, model.ErrValidation)
	}

	now := l.Now()
	acct := model.Account{
		ID:             id,
		Balance:        initialBalance,
		InitialBalance: initialBalance,
		Timezone:       timezone,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, id); err == nil {
			return fmt.Errorf("account %s exists: %w", id, model.ErrStateConflict)
		}
		return tx.CreateAccount(ctx, acct)
	})
	if err != nil {
		return model.Account{}, err
	}
	l.log.WithField("account_id", id).WithField("balance", initialBalance).Info("account opened")
	return acct, nil
}

// Grant credits tokens earned outside the engine, such as quest rewards.
func (l *Ledger) Grant(ctx context.Context, accountID string, amount int64, note string) (model.Transaction, error) {
	if amount <= 0 {
		return model.Transaction{}, fmt.Errorf("grant %d: %w", amount, model.ErrValidation)
	}
	var txn model.Transaction
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		txn, err = l.Credit(ctx, tx, accountID, amount, model.KindGrant, model.Ref{Note: note})
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}

// Account returns the current account row.
func (l *Ledger) Account(ctx context.Context, id string) (model.Account, error) {
	return l.store.GetAccount(ctx, id)
}

// History returns the account's transactions, oldest first.
func (l *Ledger) History(ctx context.Context, id string) ([]model.Transaction, error) {
	if _, err := l.store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListTransactions(ctx, id)
}

// AuditReport compares the stored balance against the transaction log.
type AuditReport struct {
	AccountID      string `json:"account_id"`
	InitialBalance int64  `json:"initial_balance"`
	Balance        int64  `json:"balance"`
	LedgerSum      int64  `json:"ledger_sum"`
	Balanced       bool   `json:"balanced"`
}

// Audit verifies balance = initialBalance + Σ amount. An imbalance is
// reported with ErrLedgerImbalance alongside the report.
func (l *Ledger) Audit(ctx context.Context, id string) (AuditReport, error) {
	var report AuditReport
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		sum, err := tx.SumTransactions(ctx, id)
		if err != nil {
			return err
		}
		report = AuditReport{
			AccountID:      id,
			InitialBalance: acct.InitialBalance,
			Balance:        acct.Balance,
			LedgerSum:      sum,
			Balanced:       acct.InitialBalance+sum == acct.Balance,
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}
	if !report.Balanced {
		l.log.WithField("account_id", id).WithField("balance", report.Balance).
			WithField("ledger_sum", report.LedgerSum).Error("ledger imbalance detected")
		return report, fmt.Errorf("account %s: %w", id, model.ErrLedgerImbalance)
	}
	return report, nil
}
