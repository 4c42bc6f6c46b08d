package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"StreakStake/internal/model"
	"StreakStake/internal/notifier"
	"StreakStake/internal/store"
)

// DefaultResolutionCron runs the sweep five minutes past every hour, so each
// timezone's midnight is picked up within the hour.
const DefaultResolutionCron = "0 5 * * * *"

// Alerter delivers ops messages. *notifier.TelegramNotifier implements it.
type Alerter interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler drives the resolution job from cron and from ops commands.
type Scheduler struct {
	Cron     *cron.Cron
	Resolver *Resolver
	Store    store.Reader
	Alerter  Alerter
	Ctx      context.Context

	log   *logrus.Entry
	entry cron.EntryID
}

// NewScheduler creates a new Scheduler. alerter may be nil.
func NewScheduler(ctx context.Context, res *Resolver, s store.Reader, alerter Alerter, log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.WithField("component", "scheduler")
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		Resolver: res,
		Store:    s,
		Alerter:  alerter,
		Ctx:      ctx,
		log:      log,
	}
}

// RegisterAll registers the resolution sweep.
func (s *Scheduler) RegisterAll(resolutionCron string) error {
	if resolutionCron == "" {
		resolutionCron = DefaultResolutionCron
	}
	id, err := s.Cron.AddFunc(resolutionCron, s.sweepTask)
	if err != nil {
		return fmt.Errorf("register resolution task: %w", err)
	}
	s.entry = id
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes the sweep immediately (manual trigger / run on start).
func (s *Scheduler) RunNow(ctx context.Context) (model.SweepReport, error) {
	report, err := s.Resolver.RunOnce(ctx)
	if err != nil {
		s.log.WithError(err).Error("resolution sweep")
		s.trySend(fmt.Sprintf("❌ Resolution sweep failed: %v", err))
		return report, err
	}
	if report.Changed() {
		s.trySend(notifier.FormatSweepReport(report))
	}
	return report, nil
}

func (s *Scheduler) sweepTask() {
	_, _ = s.RunNow(s.Ctx)
}

// NextRun reports when the sweep fires next, or zero when not scheduled.
func (s *Scheduler) NextRun() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.Cron.Entry(s.entry).Next
}

// HandleCommand processes an ops command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/sweep":
		report, err := s.Resolver.RunOnce(s.Ctx)
		if err != nil {
			return fmt.Sprintf("❌ Resolution sweep failed: %v", err)
		}
		return notifier.FormatSweepReport(report)
	case "/status":
		active, err := s.Store.ListActiveContracts(s.Ctx)
		if err != nil {
			return fmt.Sprintf("❌ Status unavailable: %v", err)
		}
		return notifier.FormatStatus(s.Resolver.LastReport(), len(active), s.NextRun())
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Alerter == nil {
		return
	}
	if err := s.Alerter.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.WithError(err).Error("send notification")
	}
}
