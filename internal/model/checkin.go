package model

import "time"

// CheckInStatus is the owner's outcome for one local day.
type CheckInStatus string

const (
	CheckInVictory CheckInStatus = "victory"
	CheckInDefeat  CheckInStatus = "defeat"
	// CheckInMissing means nothing was recorded for the day.
	CheckInMissing CheckInStatus = "missing"
)

// Valid reports whether s can be recorded by a client.
func (s CheckInStatus) Valid() bool {
	return s == CheckInVictory || s == CheckInDefeat
}

// CheckIn is a daily outcome reported by the check-in service.
type CheckIn struct {
	OwnerID    string        `json:"owner_id"`
	Day        string        `json:"day"`
	Status     CheckInStatus `json:"status"`
	Mood       string        `json:"mood,omitempty"`
	Energy     int           `json:"energy,omitempty"`
	Note       string        `json:"note,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
