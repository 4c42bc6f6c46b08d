package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"StreakStake/internal/model"
)

// queries runs statements against either the pool or an open transaction.
// Statements are written with ? placeholders and rebound per driver.
type queries struct {
	q        sqlx.ExtContext
	lockRows bool
}

func (s queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s queries) sel(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q, dest, s.q.Rebind(query), args...)
}

func (s queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.q.Rebind(query), args...)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, model.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

func millis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// --- accounts ---------------------------------------------------------------

const accountColumns = `id, balance, initial_balance, failure_count, success_streak, timezone, version, created_at, updated_at`

type accountRow struct {
	ID             string `db:"id"`
	Balance        int64  `db:"balance"`
	InitialBalance int64  `db:"initial_balance"`
	FailureCount   int    `db:"failure_count"`
	SuccessStreak  int    `db:"success_streak"`
	Timezone       string `db:"timezone"`
	Version        int64  `db:"version"`
	CreatedAt      int64  `db:"created_at"`
	UpdatedAt      int64  `db:"updated_at"`
}

func (r accountRow) model() model.Account {
	return model.Account{
		ID:             r.ID,
		Balance:        r.Balance,
		InitialBalance: r.InitialBalance,
		FailureCount:   r.FailureCount,
		SuccessStreak:  r.SuccessStreak,
		Timezone:       r.Timezone,
		Version:        r.Version,
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
	}
}

func (s queries) GetAccount(ctx context.Context, id string) (model.Account, error) {
	var row accountRow
	if err := s.get(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id); err != nil {
		return model.Account{}, notFound(err, "account", id)
	}
	return row.model(), nil
}

func (t *sqlTx) LockAccount(ctx context.Context, id string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	if t.lockRows {
		query += ` FOR UPDATE`
	}
	var row accountRow
	if err := t.get(ctx, &row, query, id); err != nil {
		return model.Account{}, notFound(err, "account", id)
	}
	return row.model(), nil
}

func (t *sqlTx) CreateAccount(ctx context.Context, a model.Account) error {
	_, err := t.exec(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Balance, a.InitialBalance, a.FailureCount, a.SuccessStreak, a.Timezone,
		a.Version, millis(a.CreatedAt), millis(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", a.ID, err)
	}
	return nil
}

func (t *sqlTx) UpdateAccount(ctx context.Context, a *model.Account) error {
	res, err := t.exec(ctx, `UPDATE accounts
		SET balance = ?, failure_count = ?, success_streak = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		a.Balance, a.FailureCount, a.SuccessStreak, millis(a.UpdatedAt), a.ID, a.Version,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update account %s: %w", a.ID, err)
	} else if n == 0 {
		return fmt.Errorf("account %s changed since version %d: %w", a.ID, a.Version, model.ErrStateConflict)
	}
	a.Version++
	return nil
}

// --- contracts --------------------------------------------------------------

const contractColumns = `id, owner_id, ally_id, start_date, end_date, duration_days, stake_amount,
	ally_stake_amount, status, failure_count_at_creation, created_at, settled_at`

type contractRow struct {
	ID                     string         `db:"id"`
	OwnerID                string         `db:"owner_id"`
	AllyID                 sql.NullString `db:"ally_id"`
	StartDate              int64          `db:"start_date"`
	EndDate                int64          `db:"end_date"`
	DurationDays           int            `db:"duration_days"`
	StakeAmount            int64          `db:"stake_amount"`
	AllyStakeAmount        int64          `db:"ally_stake_amount"`
	Status                 string         `db:"status"`
	FailureCountAtCreation int            `db:"failure_count_at_creation"`
	CreatedAt              int64          `db:"created_at"`
	SettledAt              sql.NullInt64  `db:"settled_at"`
}

func (r contractRow) model() model.Contract {
	return model.Contract{
		ID:                     r.ID,
		OwnerID:                r.OwnerID,
		AllyID:                 r.AllyID.String,
		StartDate:              fromMillis(r.StartDate),
		EndDate:                fromMillis(r.EndDate),
		DurationDays:           r.DurationDays,
		StakeAmount:            r.StakeAmount,
		AllyStakeAmount:        r.AllyStakeAmount,
		Status:                 model.ContractStatus(r.Status),
		FailureCountAtCreation: r.FailureCountAtCreation,
		CreatedAt:              fromMillis(r.CreatedAt),
		SettledAt:              fromNullMillis(r.SettledAt),
	}
}

func contractsFrom(rows []contractRow) []model.Contract {
	out := make([]model.Contract, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

func (s queries) GetContract(ctx context.Context, id string) (model.Contract, error) {
	var row contractRow
	if err := s.get(ctx, &row, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id); err != nil {
		return model.Contract{}, notFound(err, "contract", id)
	}
	return row.model(), nil
}

func (s queries) ListContractsByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE owner_id = ?`
	args := []any{ownerID}
	if activeOnly {
		query += ` AND status = ?`
		args = append(args, string(model.StatusActive))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	var rows []contractRow
	if err := s.sel(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list contracts for %s: %w", ownerID, err)
	}
	return contractsFrom(rows), nil
}

func (s queries) ListActiveContracts(ctx context.Context) ([]model.Contract, error) {
	var rows []contractRow
	if err := s.sel(ctx, &rows, `SELECT `+contractColumns+` FROM contracts
		WHERE status = ? ORDER BY end_date, id`, string(model.StatusActive)); err != nil {
		return nil, fmt.Errorf("list active contracts: %w", err)
	}
	return contractsFrom(rows), nil
}

func (s queries) HasSucceededContract(ctx context.Context, ownerID string, durationDays int) (bool, error) {
	var n int
	if err := s.get(ctx, &n, `SELECT COUNT(*) FROM contracts
		WHERE owner_id = ? AND status = ? AND duration_days = ?`,
		ownerID, string(model.StatusSucceeded), durationDays); err != nil {
		return false, fmt.Errorf("count succeeded contracts: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) InsertContract(ctx context.Context, c model.Contract) error {
	_, err := t.exec(ctx, `INSERT INTO contracts (`+contractColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.OwnerID, nullString(c.AllyID), millis(c.StartDate), millis(c.EndDate), c.DurationDays,
		c.StakeAmount, c.AllyStakeAmount, string(c.Status), c.FailureCountAtCreation,
		millis(c.CreatedAt), nullMillis(c.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("insert contract %s: %w", c.ID, err)
	}
	return nil
}

func (t *sqlTx) TransitionContract(ctx context.Context, id string, from, to model.ContractStatus, at time.Time) error {
	res, err := t.exec(ctx, `UPDATE contracts SET status = ?, settled_at = ? WHERE id = ? AND status = ?`,
		string(to), millis(at), id, string(from))
	if err != nil {
		return fmt.Errorf("transition contract %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition contract %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("contract %s is not %s: %w", id, from, model.ErrStateConflict)
	}
	return nil
}

// --- transactions -----------------------------------------------------------

const transactionColumns = `id, account_id, seq, amount, kind, forfeited, related_contract_id,
	related_mission_id, note, created_at`

type transactionRow struct {
	ID                string         `db:"id"`
	AccountID         string         `db:"account_id"`
	Seq               int64          `db:"seq"`
	Amount            int64          `db:"amount"`
	Kind              string         `db:"kind"`
	Forfeited         int64          `db:"forfeited"`
	RelatedContractID sql.NullString `db:"related_contract_id"`
	RelatedMissionID  sql.NullString `db:"related_mission_id"`
	Note              string         `db:"note"`
	CreatedAt         int64          `db:"created_at"`
}

func (s queries) ListTransactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	var rows []transactionRow
	if err := s.sel(ctx, &rows, `SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? ORDER BY seq`, accountID); err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", accountID, err)
	}
	out := make([]model.Transaction, len(rows))
	for i, r := range rows {
		out[i] = model.Transaction{
			ID:                r.ID,
			AccountID:         r.AccountID,
			Amount:            r.Amount,
			Kind:              model.TxKind(r.Kind),
			Forfeited:         r.Forfeited,
			RelatedContractID: r.RelatedContractID.String,
			RelatedMissionID:  r.RelatedMissionID.String,
			Note:              r.Note,
			Timestamp:         fromMillis(r.CreatedAt),
		}
	}
	return out, nil
}

func (s queries) SumTransactions(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	if err := s.get(ctx, &sum, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = ?`,
		accountID); err != nil {
		return 0, fmt.Errorf("sum transactions for %s: %w", accountID, err)
	}
	return sum, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	var seq int64
	if err := t.get(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions WHERE account_id = ?`,
		txn.AccountID); err != nil {
		return fmt.Errorf("next ledger seq for %s: %w", txn.AccountID, err)
	}
	_, err := t.exec(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		txn.ID, txn.AccountID, seq, txn.Amount, string(txn.Kind), txn.Forfeited,
		nullString(txn.RelatedContractID), nullString(txn.RelatedMissionID), txn.Note, millis(txn.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", txn.ID, err)
	}
	return nil
}

// --- recovery missions ------------------------------------------------------

const missionColumns = `id, contract_id, owner_id, lost_tokens, status, reflection_text, mood, energy,
	credited_tokens, created_at, completed_at, expires_at`

type missionRow struct {
	ID             string        `db:"id"`
	ContractID     string        `db:"contract_id"`
	OwnerID        string        `db:"owner_id"`
	LostTokens     int64         `db:"lost_tokens"`
	Status         string        `db:"status"`
	ReflectionText string        `db:"reflection_text"`
	Mood           string        `db:"mood"`
	Energy         int           `db:"energy"`
	CreditedTokens int64         `db:"credited_tokens"`
	CreatedAt      int64         `db:"created_at"`
	CompletedAt    sql.NullInt64 `db:"completed_at"`
	ExpiresAt      int64         `db:"expires_at"`
}

func (r missionRow) model() model.RecoveryMission {
	return model.RecoveryMission{
		ID:             r.ID,
		ContractID:     r.ContractID,
		OwnerID:        r.OwnerID,
		LostTokens:     r.LostTokens,
		Status:         model.MissionStatus(r.Status),
		ReflectionText: r.ReflectionText,
		Mood:           r.Mood,
		Energy:         r.Energy,
		CreditedTokens: r.CreditedTokens,
		CreatedAt:      fromMillis(r.CreatedAt),
		CompletedAt:    fromNullMillis(r.CompletedAt),
		ExpiresAt:      fromMillis(r.ExpiresAt),
	}
}

func missionsFrom(rows []missionRow) []model.RecoveryMission {
	out := make([]model.RecoveryMission, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}

func (s queries) GetMission(ctx context.Context, id string) (model.RecoveryMission, error) {
	var row missionRow
	if err := s.get(ctx, &row, `SELECT `+missionColumns+` FROM recovery_missions WHERE id = ?`, id); err != nil {
		return model.RecoveryMission{}, notFound(err, "mission", id)
	}
	return row.model(), nil
}

func (s queries) GetMissionByContract(ctx context.Context, contractID string) (model.RecoveryMission, error) {
	var row missionRow
	if err := s.get(ctx, &row, `SELECT `+missionColumns+` FROM recovery_missions WHERE contract_id = ?`,
		contractID); err != nil {
		return model.RecoveryMission{}, notFound(err, "mission for contract", contractID)
	}
	return row.model(), nil
}

func (s queries) ListMissionsByOwner(ctx context.Context, ownerID string) ([]model.RecoveryMission, error) {
	var rows []missionRow
	if err := s.sel(ctx, &rows, `SELECT `+missionColumns+` FROM recovery_missions
		WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID); err != nil {
		return nil, fmt.Errorf("list missions for %s: %w", ownerID, err)
	}
	return missionsFrom(rows), nil
}

func (s queries) ListOpenMissions(ctx context.Context) ([]model.RecoveryMission, error) {
	var rows []missionRow
	if err := s.sel(ctx, &rows, `SELECT `+missionColumns+` FROM recovery_missions
		WHERE status = ? ORDER BY expires_at, id`, string(model.MissionOpen)); err != nil {
		return nil, fmt.Errorf("list open missions: %w", err)
	}
	return missionsFrom(rows), nil
}

func (t *sqlTx) InsertMission(ctx context.Context, m model.RecoveryMission) error {
	if _, err := t.GetMissionByContract(ctx, m.ContractID); err == nil {
		return fmt.Errorf("contract %s already has a mission: %w", m.ContractID, model.ErrStateConflict)
	} else if !errors.Is(err, model.ErrNotFound) {
		return err
	}
	_, err := t.exec(ctx, `INSERT INTO recovery_missions (`+missionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ContractID, m.OwnerID, m.LostTokens, string(m.Status), m.ReflectionText, m.Mood, m.Energy,
		m.CreditedTokens, millis(m.CreatedAt), nullMillis(m.CompletedAt), millis(m.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert mission %s: %w", m.ID, err)
	}
	return nil
}

func (t *sqlTx) CompleteMission(ctx context.Context, m model.RecoveryMission) error {
	res, err := t.exec(ctx, `UPDATE recovery_missions
		SET status = ?, reflection_text = ?, mood = ?, energy = ?, credited_tokens = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.MissionCompleted), m.ReflectionText, m.Mood, m.Energy, m.CreditedTokens,
		nullMillis(m.CompletedAt), m.ID, string(model.MissionOpen),
	)
	if err != nil {
		return fmt.Errorf("complete mission %s: %w", m.ID, err)
	}
	return expectOne(res, "mission "+m.ID+" is not open")
}

func (t *sqlTx) ExpireMission(ctx context.Context, id string) error {
	res, err := t.exec(ctx, `UPDATE recovery_missions SET status = ? WHERE id = ? AND status = ?`,
		string(model.MissionExpired), id, string(model.MissionOpen))
	if err != nil {
		return fmt.Errorf("expire mission %s: %w", id, err)
	}
	return expectOne(res, "mission "+id+" is not open")
}

func expectOne(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", msg, model.ErrStateConflict)
	}
	return nil
}

// --- check-ins --------------------------------------------------------------

type checkInRow struct {
	OwnerID    string `db:"owner_id"`
	Day        string `db:"day"`
	Status     string `db:"status"`
	Mood       string `db:"mood"`
	Energy     int    `db:"energy"`
	Note       string `db:"note"`
	RecordedAt int64  `db:"recorded_at"`
}

func (s queries) GetCheckIn(ctx context.Context, ownerID, day string) (model.CheckIn, error) {
	var row checkInRow
	if err := s.get(ctx, &row, `SELECT owner_id, day, status, mood, energy, note, recorded_at
		FROM check_ins WHERE owner_id = ? AND day = ?`, ownerID, day); err != nil {
		return model.CheckIn{}, notFound(err, "check-in", ownerID+"/"+day)
	}
	return model.CheckIn{
		OwnerID:    row.OwnerID,
		Day:        row.Day,
		Status:     model.CheckInStatus(row.Status),
		Mood:       row.Mood,
		Energy:     row.Energy,
		Note:       row.Note,
		RecordedAt: fromMillis(row.RecordedAt),
	}, nil
}

func (t *sqlTx) UpsertCheckIn(ctx context.Context, c model.CheckIn) error {
	_, err := t.exec(ctx, `INSERT INTO check_ins (owner_id, day, status, mood, energy, note, recorded_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (owner_id, day) DO UPDATE SET
			status = excluded.status, mood = excluded.mood, energy = excluded.energy,
			note = excluded.note, recorded_at = excluded.recorded_at`,
		c.OwnerID, c.Day, string(c.Status), c.Mood, c.Energy, c.Note, millis(c.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert check-in %s/%s: %w", c.OwnerID, c.Day, err)
	}
	return nil
}
