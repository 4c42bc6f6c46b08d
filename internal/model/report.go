package model

import "time"

// SweepReport summarises one run of the resolution job.
type SweepReport struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Examined        int           `json:"examined"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Deferred        int           `json:"deferred"`
	Errors          int           `json:"errors"`
	MissionsExpired int           `json:"missions_expired"`
}

// Changed reports whether the sweep settled, expired or failed anything.
func (r SweepReport) Changed() bool {
	return r.Succeeded+r.Failed+r.MissionsExpired+r.Errors > 0
}
