package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/db"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "noshow-worker")
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.WorkerSchedule).
		Dur("grace", cfg.NoShowGrace).
		Msg("no-show worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, "noshow-worker",
		db.WithMaxConns(cfg.PostgresMaxConns),
		db.WithStatementTimeout(cfg.StatementTimeout),
	)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// The sweep only changes status and never claims a slot, so it needs no
	// slot locker and no Redis connection.
	repo := appointment.NewPgRepository(pgPool, cfg.Location)
	svc := appointment.NewService(repo, repo, nil, nil, cfg, logger)

	cronLog := cronLogger{log: logger}
	scheduler := cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := scheduler.AddFunc(cfg.WorkerSchedule, func() { runOnce(rootCtx, svc, cfg.NoShowGrace, logger) }); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.WorkerSchedule).Msg("invalid worker schedule")
	}

	// Run once at startup
	runOnce(rootCtx, svc, cfg.NoShowGrace, logger)

	scheduler.Start()
	<-rootCtx.Done()

	logger.Info().Msg("shutdown signal received, stopping no-show worker")
	<-scheduler.Stop().Done()
}

func runOnce(ctx context.Context, svc *appointment.Service, grace time.Duration, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.MarkNoShows(runCtx, grace)
	if err != nil {
		logger.Error().Err(err).Msg("no-show run error")
		return
	}
	logger.Info().Int("marked", marked).Dur("took", time.Since(start)).Msg("no-show run complete")
}

// cronLogger routes the scheduler's own logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
