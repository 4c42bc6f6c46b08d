package checkin

import (
	"context"
	"errors"
	"sync"

	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// Source answers what the owner recorded for one local day. A day with no
// record is reported as CheckInMissing, not as an error.
type Source interface {
	Outcome(ctx context.Context, ownerID, day string) (model.CheckInStatus, error)
	Name() string
}

// StoreSource reads outcomes pushed into the local check_ins table.
type StoreSource struct {
	Reader store.Reader
}

// NewStoreSource creates a Source over the store.
func NewStoreSource(r store.Reader) *StoreSource {
	return &StoreSource{Reader: r}
}

func (s *StoreSource) Name() string { return "store" }

func (s *StoreSource) Outcome(ctx context.Context, ownerID, day string) (model.CheckInStatus, error) {
	ci, err := s.Reader.GetCheckIn(ctx, ownerID, day)
	if errors.Is(err, model.ErrNotFound) {
		return model.CheckInMissing, nil
	}
	if err != nil {
		return "", err
	}
	return ci.Status, nil
}

// MockSource returns controllable outcomes for development and testing.
// Days not set explicitly report Default, or victory when Default is empty.
type MockSource struct {
	Default model.CheckInStatus

	mu       sync.Mutex
	outcomes map[string]model.CheckInStatus
	Err      error
}

func (m *MockSource) Name() string { return "mock" }

// Set records the outcome for one owner and day.
func (m *MockSource) Set(ownerID, day string, status model.CheckInStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]model.CheckInStatus)
	}
	m.outcomes[ownerID+"/"+day] = status
}

func (m *MockSource) Outcome(_ context.Context, ownerID, day string) (model.CheckInStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if s, ok := m.outcomes[ownerID+"/"+day]; ok {
		return s, nil
	}
	if m.Default != "" {
		return m.Default, nil
	}
	return model.CheckInVictory, nil
}
