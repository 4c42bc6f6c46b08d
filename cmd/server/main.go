package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"

	"StreakStake/internal/api"
	"StreakStake/internal/checkin"
	"StreakStake/internal/commitment"
	"StreakStake/internal/config"
	"StreakStake/internal/ledger"
	"StreakStake/internal/notifier"
	"StreakStake/internal/recovery"
	"StreakStake/internal/scheduler"
	"StreakStake/internal/store"
)

func main() {
	cfgPath := config.DefaultPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("config validation")
	}
	setupLogging(cfg)
	log := logrus.WithField("component", "main")
	log.Info("StreakStake starting...")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.Driver == store.DriverSQLite {
		ensureDir(cfg.Database.DSN, log)
	}
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logrus.WithField("component", "store"))
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer st.Close()

	led := ledger.New(st,
		ledger.WithLogger(logrus.WithField("component", "ledger")),
		ledger.WithDefaultTimezone(cfg.Engine.DefaultTimezone),
	)
	missions := recovery.NewManager(st, led, cfg.Engine.MissionTTL, logrus.WithField("component", "recovery"))
	contracts := commitment.NewManager(st, led, missions, logrus.WithField("component", "commitment"))

	var source checkin.Source
	switch cfg.CheckIn.Source {
	case "http":
		source = checkin.NewHTTPSource(cfg.CheckIn.BaseURL, cfg.CheckIn.APIKey, cfg.Proxy, cfg.CheckIn.RPS)
	default:
		source = checkin.NewStoreSource(st)
	}
	log.WithField("source", source.Name()).Info("check-in source ready")

	resolver := scheduler.NewResolver(st, contracts, missions, source,
		scheduler.WithContractTimeout(cfg.Schedule.ContractTimeout),
		scheduler.WithRetryBase(cfg.Schedule.RetryBase),
		scheduler.WithLogger(logrus.WithField("component", "resolver")),
	)

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var alerter scheduler.Alerter
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		alerter = tn
	}

	sched := scheduler.NewScheduler(ctx, resolver, st, alerter, logrus.WithField("component", "scheduler"))
	if err := sched.RegisterAll(cfg.Schedule.ResolutionCron); err != nil {
		log.WithError(err).Fatal("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		log.Info("run_on_start enabled, executing resolution sweep now")
		go sched.RunNow(ctx)
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: (&api.Server{
			Ledger:     led,
			Contracts:  contracts,
			Missions:   missions,
			CheckIns:   checkin.NewRecorder(st, nil, logrus.WithField("component", "checkin")),
			Sweeper:    resolver,
			Health:     st,
			AdminToken: cfg.Server.AdminToken,
			RateRPS:    cfg.Server.RateLimitRPS,
			RateBurst:  cfg.Server.RateBurst,
			Log:        logrus.WithField("component", "api"),
		}).Router(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	cancel()
	log.Info("StreakStake stopped")
}

func setupLogging(cfg *config.Config) {
	if strings.EqualFold(cfg.Log.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.WithError(err).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// ensureDir creates the parent directory of a file-backed SQLite DSN.
func ensureDir(dsn string, log *logrus.Entry) {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.WithError(err).Warn("create database directory")
	}
}
