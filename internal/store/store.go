package store

import (
	"context"
	"time"

	"StreakStake/internal/model"
)

// Reader holds the queries that can run either on the pool or inside a transaction.
type Reader interface {
	GetAccount(ctx context.Context, id string) (model.Account, error)
	GetContract(ctx context.Context, id string) (model.Contract, error)
	ListContractsByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]model.Contract, error)
	ListActiveContracts(ctx context.Context) ([]model.Contract, error)
	HasSucceededContract(ctx context.Context, ownerID string, durationDays int) (bool, error)
	ListTransactions(ctx context.Context, accountID string) ([]model.Transaction, error)
	SumTransactions(ctx context.Context, accountID string) (int64, error)
	GetMission(ctx context.Context, id string) (model.RecoveryMission, error)
	GetMissionByContract(ctx context.Context, contractID string) (model.RecoveryMission, error)
	ListMissionsByOwner(ctx context.Context, ownerID string) ([]model.RecoveryMission, error)
	ListOpenMissions(ctx context.Context) ([]model.RecoveryMission, error)
	GetCheckIn(ctx context.Context, ownerID, day string) (model.CheckIn, error)
}

// Tx is a single atomic unit of work. Nothing it writes is visible to other
// readers until the enclosing WithTx returns nil.
type Tx interface {
	Reader

	// LockAccount reads an account and holds its row lock until commit.
	LockAccount(ctx context.Context, id string) (model.Account, error)
	CreateAccount(ctx context.Context, acct model.Account) error
	// UpdateAccount writes balance and counters if acct.Version still matches
	// the stored row, then bumps the version. A mismatch is ErrStateConflict.
	UpdateAccount(ctx context.Context, acct *model.Account) error
	InsertTransaction(ctx context.Context, txn *model.Transaction) error

	InsertContract(ctx context.Context, c model.Contract) error
	// TransitionContract moves a contract out of from; ErrStateConflict if it
	// is no longer in that state.
	TransitionContract(ctx context.Context, id string, from, to model.ContractStatus, at time.Time) error

	InsertMission(ctx context.Context, m model.RecoveryMission) error
	CompleteMission(ctx context.Context, m model.RecoveryMission) error
	ExpireMission(ctx context.Context, id string) error

	UpsertCheckIn(ctx context.Context, c model.CheckIn) error
}

// Store is the durable home of accounts, contracts, ledger entries,
// missions and mirrored check-ins.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
