package commitment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StreakStake/internal/ledger"
	"StreakStake/internal/model"
	"StreakStake/internal/recovery"
	"StreakStake/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	store    *store.SQLStore
	ledger   *ledger.Ledger
	missions *recovery.Manager
	mgr      *Manager
	clock    *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	l := ledger.New(s, ledger.WithClock(clock.Now))
	missions := recovery.NewManager(s, l, 0, nil)
	return &env{store: s, ledger: l, missions: missions, mgr: NewManager(s, l, missions, nil), clock: clock}
}

func (e *env) open(t *testing.T, id string, balance int64) {
	t.Helper()
	_, err := e.ledger.OpenAccount(context.Background(), id, balance, "UTC")
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, id string) int64 {
	t.Helper()
	acct, err := e.ledger.Account(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func (e *env) audit(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		report, err := e.ledger.Audit(context.Background(), id)
		require.NoError(t, err, "audit %s", id)
		assert.True(t, report.Balanced)
	}
}

// succeed runs a contract of the given duration to a successful end.
func (e *env) succeed(t *testing.T, owner string, days int, stake int64) model.Contract {
	t.Helper()
	ctx := context.Background()
	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: owner, DurationDays: days, StakeAmount: stake})
	require.NoError(t, err)
	e.clock.Advance(time.Duration(days) * 24 * time.Hour)
	settled, err := e.mgr.SettleSuccess(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, settled)
	return c
}

func TestCreate_SuccessPaysStakeAndBonus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)

	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 7, StakeAmount: 50})
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, c.Status)
	assert.Equal(t, c.StartDate.AddDate(0, 0, 7), c.EndDate)
	assert.Equal(t, int64(50), e.balance(t, "alice"))

	e.clock.Advance(7 * 24 * time.Hour)
	settled, err := e.mgr.SettleSuccess(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, settled)

	acct, err := e.ledger.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(115), acct.Balance)
	assert.Equal(t, 1, acct.SuccessStreak)
	assert.Equal(t, 0, acct.FailureCount)

	got, err := e.mgr.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, got.Status)
	require.NotNil(t, got.SettledAt)
	e.audit(t, "alice")
}

func TestSettleSuccess_BeforeEndDateRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)
	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 3, StakeAmount: 10})
	require.NoError(t, err)

	e.clock.Advance(2 * 24 * time.Hour)
	settled, err := e.mgr.SettleSuccess(ctx, c.ID)
	require.ErrorIs(t, err, model.ErrStateConflict)
	assert.False(t, settled)
	assert.Equal(t, int64(90), e.balance(t, "alice"))
}

func TestSettleFailure_FirstFailureThenRecovery(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)

	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 7, StakeAmount: 50})
	require.NoError(t, err)

	e.clock.Advance(36 * time.Hour)
	settled, err := e.mgr.EvaluateDailyOutcome(ctx, c.ID, model.CheckInMissing)
	require.NoError(t, err)
	require.True(t, settled)

	acct, err := e.ledger.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.Balance)
	assert.Equal(t, 1, acct.FailureCount)
	assert.Equal(t, 0, acct.SuccessStreak)

	hist, err := e.ledger.History(ctx, "alice")
	require.NoError(t, err)
	last := hist[len(hist)-1]
	assert.Equal(t, model.KindPenaltyLoss, last.Kind)
	assert.Equal(t, int64(50), last.Forfeited)
	assert.Zero(t, last.Amount)

	mission, err := e.store.GetMissionByContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), mission.LostTokens)
	assert.Equal(t, model.MissionOpen, mission.Status)

	credited, err := e.missions.Complete(ctx, recovery.CompleteRequest{
		MissionID:      mission.ID,
		CallerID:       "alice",
		ReflectionText: "I skipped the gym because I slept too late.",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), credited)
	assert.Equal(t, int64(65), e.balance(t, "alice"))
	e.audit(t, "alice")
}

func TestCreate_TierLockedLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)

	_, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 14, StakeAmount: 10})
	require.ErrorIs(t, err, model.ErrTierLocked)

	hist, err := e.ledger.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.Equal(t, int64(100), e.balance(t, "alice"))

	contracts, err := e.mgr.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestTierUnlockChain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 1000)

	unlocked, err := e.mgr.IsTierUnlocked(ctx, "alice", 14)
	require.NoError(t, err)
	assert.False(t, unlocked)

	e.succeed(t, "alice", 7, 10)
	unlocked, err = e.mgr.IsTierUnlocked(ctx, "alice", 14)
	require.NoError(t, err)
	assert.True(t, unlocked)
	unlocked, err = e.mgr.IsTierUnlocked(ctx, "alice", 30)
	require.NoError(t, err)
	assert.False(t, unlocked)

	_, err = e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 30, StakeAmount: 10})
	require.ErrorIs(t, err, model.ErrTierLocked)

	e.succeed(t, "alice", 14, 10)
	view, err := e.mgr.AccountView(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 7, 14, 30}, view.UnlockedTiers)
	assert.Equal(t, 2, view.SuccessStreak)

	_, err = e.mgr.IsTierUnlocked(ctx, "alice", 7)
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = e.mgr.IsTierUnlocked(ctx, "nobody", 14)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSettleFailure_SecondFailureHalvesPenalty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)

	first, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 50})
	require.NoError(t, err)
	_, err = e.mgr.SettleFailure(ctx, first.ID)
	require.NoError(t, err)

	second, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 3, StakeAmount: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, second.FailureCountAtCreation)
	settled, err := e.mgr.EvaluateDailyOutcome(ctx, second.ID, model.CheckInDefeat)
	require.NoError(t, err)
	require.True(t, settled)

	acct, err := e.ledger.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, acct.FailureCount)
	// 100 - 50 (lost) - 20 (escrow) + 10 (refund)
	assert.Equal(t, int64(40), acct.Balance)

	mission, err := e.store.GetMissionByContract(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), mission.LostTokens)
	e.audit(t, "alice")
}

func TestPenaltyNeverIncreases(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 10000)

	var forfeited []int64
	for i := 0; i < 4; i++ {
		c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 100})
		require.NoError(t, err)
		_, err = e.mgr.SettleFailure(ctx, c.ID)
		require.NoError(t, err)

		hist, err := e.ledger.History(ctx, "alice")
		require.NoError(t, err)
		for _, txn := range hist {
			if txn.Kind == model.KindPenaltyLoss && txn.RelatedContractID == c.ID {
				forfeited = append(forfeited, txn.Forfeited)
			}
		}
	}
	assert.Equal(t, []int64{100, 50, 25, 25}, forfeited)
	e.audit(t, "alice")
}

func TestCreate_StakeBounds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 101)

	_, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 51})
	require.ErrorIs(t, err, model.ErrStakeTooHigh)

	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.StakeAmount)
	assert.Equal(t, int64(51), e.balance(t, "alice"))
}

func TestCreate_ConcurrentStakeBound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 50})
			if err != nil {
				assert.ErrorIs(t, err, model.ErrStakeTooHigh)
				return
			}
			mu.Lock()
			created++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, int64(50), e.balance(t, "alice"))
	active, err := e.mgr.Active(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	e.audit(t, "alice")
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"bad duration", CreateRequest{OwnerID: "alice", DurationDays: 5, StakeAmount: 10}, model.ErrValidation},
		{"zero stake", CreateRequest{OwnerID: "alice", DurationDays: 1}, model.ErrValidation},
		{"no owner", CreateRequest{DurationDays: 1, StakeAmount: 10}, model.ErrValidation},
		{"self ally", CreateRequest{OwnerID: "alice", AllyID: "alice", DurationDays: 1, StakeAmount: 10}, model.ErrValidation},
		{"ally stake without ally", CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 10, AllyStakeAmount: 5}, model.ErrValidation},
		{"unknown owner", CreateRequest{OwnerID: "ghost", DurationDays: 1, StakeAmount: 10}, model.ErrNotFound},
		{"unknown ally", CreateRequest{OwnerID: "alice", AllyID: "ghost", DurationDays: 1, StakeAmount: 10, AllyStakeAmount: 5}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.mgr.Create(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(100), e.balance(t, "alice"))
}

func TestCreate_AllyInsufficientFundsRollsBackOwnerDebit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)
	e.open(t, "bob", 5)

	_, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", AllyID: "bob", DurationDays: 1, StakeAmount: 20, AllyStakeAmount: 10})
	require.ErrorIs(t, err, model.ErrInsufficientFunds)
	assert.Equal(t, int64(100), e.balance(t, "alice"))
	assert.Equal(t, int64(5), e.balance(t, "bob"))

	active, err := e.mgr.Active(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAlly_SuccessAndFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 200)
	e.open(t, "bob", 100)

	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", AllyID: "bob", DurationDays: 1, StakeAmount: 40, AllyStakeAmount: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(70), e.balance(t, "bob"))
	e.clock.Advance(24 * time.Hour)
	_, err = e.mgr.SettleSuccess(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(204), e.balance(t, "alice"))
	assert.Equal(t, int64(103), e.balance(t, "bob"))

	c, err = e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", AllyID: "bob", DurationDays: 1, StakeAmount: 40, AllyStakeAmount: 30})
	require.NoError(t, err)
	_, err = e.mgr.SettleFailure(ctx, c.ID)
	require.NoError(t, err)
	// First failure forfeits every stake in full.
	assert.Equal(t, int64(164), e.balance(t, "alice"))
	assert.Equal(t, int64(73), e.balance(t, "bob"))

	bob, err := e.ledger.Account(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, bob.FailureCount)
	e.audit(t, "alice", "bob")
}

func TestSettlement_IsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)
	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 20})
	require.NoError(t, err)

	settled, err := e.mgr.SettleFailure(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, settled)

	e.clock.Advance(48 * time.Hour)
	for i := 0; i < 2; i++ {
		settled, err = e.mgr.SettleFailure(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, settled)
		settled, err = e.mgr.SettleSuccess(ctx, c.ID)
		require.NoError(t, err)
		assert.False(t, settled)
	}

	acct, err := e.ledger.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, acct.FailureCount)
	assert.Equal(t, int64(80), acct.Balance)
	missions, err := e.missions.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, missions, 1)
}

func TestConcurrentSettlement_OneWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)
	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 1, StakeAmount: 20})
	require.NoError(t, err)
	e.clock.Advance(24 * time.Hour)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var settled bool
			var err error
			if i%2 == 0 {
				settled, err = e.mgr.SettleSuccess(ctx, c.ID)
			} else {
				settled, err = e.mgr.SettleFailure(ctx, c.ID)
			}
			assert.NoError(t, err)
			if settled {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	e.audit(t, "alice")
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)
	e.open(t, "bob", 100)
	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", AllyID: "bob", DurationDays: 3, StakeAmount: 30, AllyStakeAmount: 10})
	require.NoError(t, err)

	err = e.mgr.Cancel(ctx, c.ID, "bob")
	require.ErrorIs(t, err, model.ErrUnauthorized)

	require.NoError(t, e.mgr.Cancel(ctx, c.ID, "alice"))
	assert.Equal(t, int64(100), e.balance(t, "alice"))
	assert.Equal(t, int64(100), e.balance(t, "bob"))

	err = e.mgr.Cancel(ctx, c.ID, "alice")
	require.ErrorIs(t, err, model.ErrStateConflict)

	settled, err := e.mgr.SettleFailure(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, settled)

	got, err := e.mgr.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	e.audit(t, "alice", "bob")
}

func TestEvaluateDailyOutcome(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.open(t, "alice", 100)
	c, err := e.mgr.Create(ctx, CreateRequest{OwnerID: "alice", DurationDays: 3, StakeAmount: 10})
	require.NoError(t, err)

	settled, err := e.mgr.EvaluateDailyOutcome(ctx, c.ID, model.CheckInVictory)
	require.NoError(t, err)
	assert.False(t, settled)

	_, err = e.mgr.EvaluateDailyOutcome(ctx, c.ID, model.CheckInStatus("meh"))
	require.ErrorIs(t, err, model.ErrValidation)

	active, err := e.mgr.Active(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = e.mgr.EvaluateDailyOutcome(ctx, "missing-contract", model.CheckInDefeat)
	require.True(t, errors.Is(err, model.ErrNotFound))
}
