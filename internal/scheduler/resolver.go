package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"StreakStake/internal/checkin"
	"StreakStake/internal/metrics"
	"StreakStake/internal/model"
	"StreakStake/internal/store"
)

// Settler applies terminal transitions to contracts.
type Settler interface {
	SettleSuccess(ctx context.Context, contractID string) (bool, error)
	EvaluateDailyOutcome(ctx context.Context, contractID string, status model.CheckInStatus) (bool, error)
}

// MissionExpirer closes overdue recovery missions.
type MissionExpirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Defaults for the resolver.
const (
	DefaultContractTimeout = 10 * time.Second
	DefaultRetryBase       = time.Minute
	maxRetryDelay          = 6 * time.Hour
)

type retryState struct {
	attempts int
	next     time.Time
}

// Resolver settles every active contract whose outcome is known. Each run
// is idempotent: already settled contracts are skipped by the settlement
// compare-and-swap, and a contract that errors is retried on a later run.
type Resolver struct {
	store     store.Reader
	contracts Settler
	missions  MissionExpirer
	source    checkin.Source
	now       func() time.Time
	timeout   time.Duration
	retryBase time.Duration
	log       *logrus.Entry

	mu      sync.Mutex
	retries map[string]retryState
	last    model.SweepReport
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithContractTimeout bounds the work spent on a single contract.
func WithContractTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetryBase sets the first back-off delay after a contract errors.
func WithRetryBase(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.retryBase = d
		}
	}
}

// WithLogger sets the component logger.
func WithLogger(log *logrus.Entry) ResolverOption {
	return func(r *Resolver) { r.log = log }
}

// NewResolver creates a Resolver.
func NewResolver(s store.Reader, contracts Settler, missions MissionExpirer, source checkin.Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     s,
		contracts: contracts,
		missions:  missions,
		source:    source,
		now:       time.Now,
		timeout:   DefaultContractTimeout,
		retryBase: DefaultRetryBase,
		log:       logrus.WithField("component", "resolver"),
		retries:   make(map[string]retryState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce performs one sweep. Only a failure to list active contracts is
// returned as an error; per-contract errors are counted in the report and
// the contract is retried with exponential back-off.
func (r *Resolver) RunOnce(ctx context.Context) (model.SweepReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.now()
	report := model.SweepReport{StartedAt: start}

	active, err := r.store.ListActiveContracts(ctx)
	if err != nil {
		return report, fmt.Errorf("list active contracts: %w", err)
	}

	for _, c := range active {
		if ctx.Err() != nil {
			break
		}
		now := r.now()
		if st, ok := r.retries[c.ID]; ok && now.Before(st.next) {
			report.Deferred++
			continue
		}
		report.Examined++

		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		outcome, err := r.resolve(cctx, c, now)
		cancel()

		if err != nil {
			report.Errors++
			r.backoff(c.ID, now, err)
			continue
		}
		delete(r.retries, c.ID)
		switch outcome {
		case model.StatusSucceeded:
			report.Succeeded++
		case model.StatusFailed:
			report.Failed++
		}
	}
	r.prune(active)

	if n, err := r.missions.ExpireOverdue(ctx); err != nil {
		report.Errors++
		r.log.WithError(err).Error("expire overdue missions")
	} else {
		report.MissionsExpired = n
	}

	report.Duration = r.now().Sub(start)
	metrics.ObserveSweep(report.Duration, report.Errors)
	r.last = report

	r.log.WithFields(logrus.Fields{
		"examined":         report.Examined,
		"succeeded":        report.Succeeded,
		"failed":           report.Failed,
		"deferred":         report.Deferred,
		"errors":           report.Errors,
		"missions_expired": report.MissionsExpired,
	}).Info("resolution sweep finished")
	return report, nil
}

// LastReport returns the report of the most recent sweep.
func (r *Resolver) LastReport() model.SweepReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// resolve walks the contract's local days in order. Every finished day must
// hold a victory; the current day only matters once it holds a defeat. The
// first bad day fails the contract. With every day clean, the end date
// reached and the last local day over, the contract succeeds. An empty
// status means nothing changed.
func (r *Resolver) resolve(ctx context.Context, c model.Contract, now time.Time) (model.ContractStatus, error) {
	owner, err := r.store.GetAccount(ctx, c.OwnerID)
	if err != nil {
		return "", err
	}

	days := model.ContractDays(c, owner.Location())
	for _, day := range days {
		if now.Before(day.Start) {
			break
		}
		status, err := r.source.Outcome(ctx, c.OwnerID, day.Day)
		if err != nil {
			return "", fmt.Errorf("check-in %s: %w", day.Day, err)
		}
		finished := !now.Before(day.End)
		if status == model.CheckInVictory || (!finished && status != model.CheckInDefeat) {
			continue
		}
		settled, err := r.contracts.EvaluateDailyOutcome(ctx, c.ID, status)
		if err != nil {
			return "", err
		}
		if settled {
			r.log.WithField("contract_id", c.ID).WithField("day", day.Day).
				WithField("status", status).Info("contract failed on check-in")
			return model.StatusFailed, nil
		}
		return "", nil
	}

	// A fall-back DST day is 25h long, so the last local day can outlast EndDate.
	if now.Before(c.EndDate) || (len(days) > 0 && now.Before(days[len(days)-1].End)) {
		return "", nil
	}
	settled, err := r.contracts.SettleSuccess(ctx, c.ID)
	if err != nil || !settled {
		return "", err
	}
	return model.StatusSucceeded, nil
}

func (r *Resolver) backoff(contractID string, now time.Time, err error) {
	st := r.retries[contractID]
	st.attempts++
	delay := r.retryBase
	for i := 1; i < st.attempts && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	st.next = now.Add(delay)
	r.retries[contractID] = st
	r.log.WithError(err).WithField("contract_id", contractID).
		WithField("attempt", st.attempts).WithField("retry_in", delay).
		Warn("contract resolution failed")
}

// prune forgets back-off state of contracts that are no longer active.
func (r *Resolver) prune(active []model.Contract) {
	if len(r.retries) == 0 {
		return
	}
	ids := make(map[string]bool, len(active))
	for _, c := range active {
		ids[c.ID] = true
	}
	for id := range r.retries {
		if !ids[id] {
			delete(r.retries, id)
		}
	}
}
