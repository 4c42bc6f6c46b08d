package model

import "time"

// MissionStatus is the state of a recovery mission.
type MissionStatus string

const (
	MissionOpen      MissionStatus = "open"
	MissionCompleted MissionStatus = "completed"
	MissionExpired   MissionStatus = "expired"
)

// RecoveryMission lets the owner of a failed contract win back part of the
// lost stake by submitting a reflection before ExpiresAt.
type RecoveryMission struct {
	ID             string        `json:"id"`
	ContractID     string        `json:"contract_id"`
	OwnerID        string        `json:"owner_id"`
	LostTokens     int64         `json:"lost_tokens"`
	Status         MissionStatus `json:"status"`
	ReflectionText string        `json:"reflection_text,omitempty"`
	Mood           string        `json:"mood,omitempty"`
	Energy         int           `json:"energy,omitempty"`
	CreditedTokens int64         `json:"credited_tokens"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

// Overdue reports whether the completion window has closed at now.
func (m RecoveryMission) Overdue(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
