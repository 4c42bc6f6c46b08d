package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"StreakStake/internal/metrics"
	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// Ledger owns account balances. Every credit and debit goes through it and
// appends exactly one transaction in the caller's store.Tx, so a logical
// operation built from several entries commits or rolls back as a unit.
type Ledger struct {
	store     store.Store
	now       func() time.Time
	log       *logrus.Entry
	defaultTZ string
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the component logger.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Ledger) { l.log = log }
}

// WithDefaultTimezone sets the timezone given to accounts opened without one.
func WithDefaultTimezone(tz string) Option {
	return func(l *Ledger) { l.defaultTZ = tz }
}

// New creates a Ledger over s.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     s,
		now:       time.Now,
		log:       logrus.WithField("component", "ledger"),
		defaultTZ: "UTC",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock truncated to storage precision.
func (l *Ledger) Now() time.Time {
	return l.now().UTC().Truncate(time.Millisecond)
}

// Debit removes amount from the account. It fails with ErrInsufficientFunds
// if the balance would go negative.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, accountID string, amount int64, kind model.TxKind, ref model.Ref) (model.Transaction, error) {
	if amount < 0 {
		return model.Transaction{}, fmt.Errorf("debit %d: %w", amount, model.ErrValidation)
	}
	acct, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return model.Transaction{}, err
	}
	if amount > acct.Balance {
		return model.Transaction{}, fmt.Errorf("debit %d from %s with balance %d: %w",
			amount, accountID, acct.Balance, model.ErrInsufficientFunds)
	}
	return l.apply(ctx, tx, &acct, -amount, 0, kind, ref)
}

// Credit adds amount to the account. A credit that would overflow the
// balance is rejected with ErrValidation.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, accountID string, amount int64, kind model.TxKind, ref model.Ref) (model.Transaction, error) {
	if amount < 0 {
		return model.Transaction{}, fmt.Errorf("credit %d: %w", amount, model.ErrValidation)
	}
	acct, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return model.Transaction{}, err
	}
	if amount > math.MaxInt64-acct.Balance {
		return model.Transaction{}, fmt.Errorf("credit %d to %s with balance %d overflows: %w",
			amount, accountID, acct.Balance, model.ErrValidation)
	}
	return l.apply(ctx, tx, &acct, amount, 0, kind, ref)
}

// RecordLoss appends a penalty-loss entry for tokens that were escrowed
// earlier. The balance does not change.
func (l *Ledger) RecordLoss(ctx context.Context, tx store.Tx, accountID string, forfeited int64, ref model.Ref) (model.Transaction, error) {
	if forfeited < 0 {
		return model.Transaction{}, fmt.Errorf("loss %d: %w", forfeited, model.ErrValidation)
	}
	txn := model.Transaction{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Kind:              model.KindPenaltyLoss,
		Forfeited:         forfeited,
		RelatedContractID: ref.ContractID,
		RelatedMissionID:  ref.MissionID,
		Note:              ref.Note,
		Timestamp:         l.Now(),
	}
	if err := tx.InsertTransaction(ctx, &txn); err != nil {
		return model.Transaction{}, err
	}
	metrics.LedgerEntry(txn.Kind, 0)
	return txn, nil
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, acct *model.Account, delta, forfeited int64, kind model.TxKind, ref model.Ref) (model.Transaction, error) {
	now := l.Now()
	acct.Balance += delta
	acct.UpdatedAt = now
	if err := tx.UpdateAccount(ctx, acct); err != nil {
		return model.Transaction{}, err
	}
	txn := model.Transaction{
		ID:                uuid.NewString(),
		AccountID:         acct.ID,
		Amount:            delta,
		Kind:              kind,
		Forfeited:         forfeited,
		RelatedContractID: ref.ContractID,
		RelatedMissionID:  ref.MissionID,
		Note:              ref.Note,
		Timestamp:         now,
	}
	if err := tx.InsertTransaction(ctx, &txn); err != nil {
		return model.Transaction{}, err
	}
	metrics.LedgerEntry(kind, delta)
	return txn, nil
}
