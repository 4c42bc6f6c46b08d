package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// Recorder stores outcomes pushed by the Check-in service into the local
// check_ins table, where StoreSource reads them back.
type Recorder struct {
	store store.Store
	now   func() time.Time
	log   *logrus.Entry
}

// NewRecorder creates a Recorder. now may be nil.
func NewRecorder(s store.Store, now func() time.Time, log *logrus.Entry) *Recorder {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.WithField("component", "checkin")
	}
	return &Recorder{store: s, now: now, log: log}
}

// Record validates and upserts one day's outcome. A later record for the
// same day replaces the earlier one. Days after the owner's local today
// are rejected.
func (r *Recorder) Record(ctx context.Context, ci model.CheckIn) (model.CheckIn, error) {
	ci.OwnerID = strings.TrimSpace(ci.OwnerID)
	if ci.OwnerID == "" {
		return model.CheckIn{}, fmt.Errorf("owner_id is required: %w", model.ErrValidation)
	}
	if !ci.Status.Valid() {
		return model.CheckIn{}, fmt.Errorf("status %q must be victory or defeat: %w", ci.Status, model.ErrValidation)
	}
	day, err := time.Parse(model.DayLayout, ci.Day)
	if err != nil {
		return model.CheckIn{}, fmt.Errorf("day %q: %w", ci.Day, model.ErrValidation)
	}

	now := r.now().UTC().Truncate(time.Millisecond)
	err = r.store.WithTx(ctx, func(tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, ci.OwnerID)
		if err != nil {
			return err
		}
		today := model.DayOf(now, acct.Location())
		if day.Format(model.DayLayout) > today {
			return fmt.Errorf("day %s is after %s: %w", ci.Day, today, model.ErrValidation)
		}
		ci.RecordedAt = now
		return tx.UpsertCheckIn(ctx, ci)
	})
	if err != nil {
		return model.CheckIn{}, err
	}
	r.log.WithField("account_id", ci.OwnerID).WithField("day", ci.Day).
		WithField("status", ci.Status).Debug("check-in recorded")
	return ci, nil
}
