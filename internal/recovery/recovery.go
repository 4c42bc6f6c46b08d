package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"StreakStake/internal/calculator"
	"StreakStake/internal/ledger"
	"StreakStake/internal/metrics"
	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// DefaultTTL is how long a mission stays open after the failure.
const DefaultTTL = 7 * 24 * time.Hour

// MinReflectionLength is the shortest reflection accepted, in characters.
const MinReflectionLength = 10

// Manager creates and resolves recovery missions.
type Manager struct {
	store  store.Store
	ledger *ledger.Ledger
	ttl    time.Duration
	log    *logrus.Entry
}

// NewManager creates a Manager. ttl <= 0 selects DefaultTTL.
func NewManager(s store.Store, l *ledger.Ledger, ttl time.Duration, log *logrus.Entry) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.WithField("component", "recovery")
	}
	return &Manager{store: s, ledger: l, ttl: ttl, log: log}
}

// CreateMission opens the mission for a failed contract inside the caller's
// settlement transaction.
func (m *Manager) CreateMission(ctx context.Context, tx store.Tx, c model.Contract, lostTokens int64) (model.RecoveryMission, error) {
	now := m.ledger.Now()
	mission := model.RecoveryMission{
		ID:         uuid.NewString(),
		ContractID: c.ID,
		OwnerID:    c.OwnerID,
		LostTokens: lostTokens,
		Status:     model.MissionOpen,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := tx.InsertMission(ctx, mission); err != nil {
		return model.RecoveryMission{}, err
	}
	return mission, nil
}

// CompleteRequest carries the reflection the owner submits. Mood and energy
// are free-form inputs from the client and are stored as given.
type CompleteRequest struct {
	MissionID      string
	CallerID       string
	ReflectionText string
	Mood           string
	Energy         int
}

// Complete resolves an open mission and credits 30% of the lost tokens.
func (m *Manager) Complete(ctx context.Context, req CompleteRequest) (int64, error) {
	reflection := strings.TrimSpace(req.ReflectionText)
	if utf8.RuneCountInString(reflection) < MinReflectionLength {
		return 0, fmt.Errorf("reflection must be at least %d characters: %w", MinReflectionLength, model.ErrValidation)
	}

	var credited int64
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		mission, err := tx.GetMission(ctx, req.MissionID)
		if err != nil {
			return err
		}
		if mission.OwnerID != req.CallerID {
			return fmt.Errorf("mission %s belongs to another account: %w", mission.ID, model.ErrUnauthorized)
		}
		now := m.ledger.Now()
		switch {
		case mission.Status == model.MissionCompleted:
			return fmt.Errorf("mission %s already completed: %w", mission.ID, model.ErrStateConflict)
		case mission.Status == model.MissionExpired, mission.Overdue(now):
			return fmt.Errorf("mission %s expired at %s: %w", mission.ID, mission.ExpiresAt.Format(time.RFC3339), model.ErrExpired)
		}

		credited = calculator.RecoveryCredit(mission.LostTokens)
		if _, err := m.ledger.Credit(ctx, tx, mission.OwnerID, credited, model.KindRecoveryCredit, model.Ref{
			ContractID: mission.ContractID,
			MissionID:  mission.ID,
		}); err != nil {
			return err
		}

		mission.ReflectionText = reflection
		mission.Mood = req.Mood
		mission.Energy = req.Energy
		mission.CreditedTokens = credited
		mission.CompletedAt = &now
		return tx.CompleteMission(ctx, mission)
	})
	if err != nil {
		return 0, err
	}

	metrics.MissionCompleted()
	m.log.WithField("mission_id", req.MissionID).WithField("account_id", req.CallerID).
		WithField("credited", credited).Info("recovery mission completed")
	return credited, nil
}

// ExpireOverdue closes every open mission past its deadline and returns how
// many it closed. A mission completed concurrently is skipped.
func (m *Manager) ExpireOverdue(ctx context.Context) (int, error) {
	open, err := m.store.ListOpenMissions(ctx)
	if err != nil {
		return 0, err
	}
	now := m.ledger.Now()
	expired := 0
	for _, mission := range open {
		if !mission.Overdue(now) {
			continue
		}
		err := m.store.WithTx(ctx, func(tx store.Tx) error {
			return tx.ExpireMission(ctx, mission.ID)
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, model.ErrStateConflict):
		default:
			return expired, fmt.Errorf("expire mission %s: %w", mission.ID, err)
		}
	}
	if expired > 0 {
		m.log.WithField("count", expired).Info("recovery missions expired")
	}
	return expired, nil
}

// Get returns one mission.
func (m *Manager) Get(ctx context.Context, id string) (model.RecoveryMission, error) {
	return m.store.GetMission(ctx, id)
}

// ListByOwner returns an owner's missions, newest first.
func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]model.RecoveryMission, error) {
	return m.store.ListMissionsByOwner(ctx, ownerID)
}
