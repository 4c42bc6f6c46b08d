package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.SQLStore) {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return New(s, WithClock(func() time.Time { return now })), s
}

func TestDebitCredit_UpdatesBalanceAndHistory(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "alice", 100, "")
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := l.Debit(ctx, tx, "alice", 40, model.KindStakeDebit, model.Ref{}); err != nil {
			return err
		}
		_, err := l.Credit(ctx, tx, "alice", 15, model.KindRecoveryCredit, model.Ref{})
		return err
	}))

	acct, err := l.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(75), acct.Balance)

	hist, err := l.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(-40), hist[0].Amount)
	assert.Equal(t, model.KindStakeDebit, hist[0].Kind)
	assert.Equal(t, int64(15), hist[1].Amount)
}

func TestDebit_InsufficientFundsRollsBackPairedEntries(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "alice", 100, "")
	require.NoError(t, err)
	_, err = l.OpenAccount(ctx, "bob", 10, "")
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := l.Credit(ctx, tx, "alice", 30, model.KindGrant, model.Ref{}); err != nil {
			return err
		}
		_, err := l.Debit(ctx, tx, "bob", 11, model.KindStakeDebit, model.Ref{})
		return err
	})
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	alice, err := l.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), alice.Balance, "paired credit must roll back")
	hist, err := l.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRecordLoss_DoesNotMoveBalance(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "alice", 100, "")
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		_, err := l.RecordLoss(ctx, tx, "alice", 50, model.Ref{Note: "test"})
		return err
	}))

	acct, err := l.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acct.Balance)

	hist, err := l.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(0), hist[0].Amount)
	assert.Equal(t, int64(50), hist[0].Forfeited)
}

func TestAudit_Conservation(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "alice", 100, "")
	require.NoError(t, err)
	_, err = l.Grant(ctx, "alice", 25, "quest reward")
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		_, err := l.Debit(ctx, tx, "alice", 60, model.KindStakeDebit, model.Ref{})
		return err
	}))

	report, err := l.Audit(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, int64(65), report.Balance)
	assert.Equal(t, int64(-35), report.LedgerSum)

	// A write that bypasses the ledger is caught.
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		acct, err := tx.LockAccount(ctx, "alice")
		if err != nil {
			return err
		}
		acct.Balance += 1
		return tx.UpdateAccount(ctx, &acct)
	}))
	_, err = l.Audit(ctx, "alice")
	require.ErrorIs(t, err, model.ErrLedgerImbalance)
}

func TestOpenAccount_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.OpenAccount(ctx, "x", -1, "")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = l.OpenAccount(ctx, "x", 1, "Not/AZone")
	assert.ErrorIs(t, err, model.ErrValidation)

	acct, err := l.OpenAccount(ctx, "", 5, "")
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, "UTC", acct.Timezone)

	_, err = l.OpenAccount(ctx, acct.ID, 5, "")
	assert.ErrorIs(t, err, model.ErrStateConflict)
}

func TestGrant_RejectsNonPositive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "alice", 0, "")
	require.NoError(t, err)
	_, err = l.Grant(ctx, "alice", 0, "")
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = l.Grant(ctx, "ghost", 5, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCredit_RejectsOverflow(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	_, err := l.OpenAccount(ctx, "alice", math.MaxInt64-10, "")
	require.NoError(t, err)

	_, err = l.Grant(ctx, "alice", 11, "top up")
	require.ErrorIs(t, err, model.ErrValidation)

	err = s.WithTx(ctx, func(tx store.Tx) error {
		_, err := l.Credit(ctx, tx, "alice", 10, model.KindGrant, model.Ref{})
		return err
	})
	require.NoError(t, err)

	acct, err := l.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), acct.Balance)
}
