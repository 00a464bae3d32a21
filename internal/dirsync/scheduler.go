package dirsync

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSchedule runs the all-tenant sync daily at 02:00.
const DefaultSchedule = "0 2 * * *"

const scheduledFlightKey = "all-tenants"

var errMissingRunner = errors.New("sync runner is required")

// Runner is the orchestration entry point driven by the scheduler.
type Runner interface {
	RunSync(ctx context.Context, tenantID *string) ([]Summary, error)
}

// SchedulerConfig describes a Scheduler.
type SchedulerConfig struct {
	Runner     Runner
	Schedule   string
	RunOnStart bool
	Logger     *zap.Logger
}

// Scheduler triggers all-tenant runs on a cron schedule.
type Scheduler struct {
	runner     Runner
	cron       *cron.Cron
	runOnStart bool
	logger     *zap.Logger
	flight     singleflight.Group
	pending    sync.WaitGroup
	ctx        context.Context
}

// NewScheduler parses the schedule and registers the sync job.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errMissingRunner
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	scheduler := &Scheduler{
		runner:     cfg.Runner,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
		ctx:        context.Background(),
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	if _, err := scheduler.cron.AddFunc(schedule, scheduler.runScheduled); err != nil {
		return nil, err
	}
	return scheduler, nil
}

// Start launches the cron loop and, when configured, an immediate run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	if s.runOnStart {
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			s.runScheduled()
		}()
	}
	s.cron.Start()
	s.logger.Info("sync scheduler started")
}

// Stop halts the schedule and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.pending.Wait()
	s.logger.Info("sync scheduler stopped")
}

func (s *Scheduler) runScheduled() {
	_, err, shared := s.flight.Do(scheduledFlightKey, func() (interface{}, error) {
		return s.runner.RunSync(s.ctx, nil)
	})
	if shared {
		s.logger.Debug("scheduled sync joined an in-flight run")
	}
	if err != nil {
		s.logger.Error("scheduled sync failed", zap.Error(err))
	}
}
