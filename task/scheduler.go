package task

import (
	"context"

	cronlib "github.com/robfig/cron/v3"

	"github.com/ciris-ai/ciris-agent/telemetry"
)

// DefaultActivationSchedule activates pending tasks and counts the active
// ones still needing a seed Thought every five seconds.
const DefaultActivationSchedule = "@every 5s"

// Scheduler drives Manager's activation/seed cycle on a cron schedule,
// replacing a bare time.Ticker with robfig/cron/v3 (named in the
// domain-stack wiring) so the cadence is a configurable cron expression
// rather than a fixed Go duration, matching an internal/cron/scheduler.go
// shape (Config struct, Start/Stop on a context, one registered job per
// tick).
type Scheduler struct {
	cron   *cronlib.Cron
	tasks  *Manager
	logger telemetry.Logger
}

// SchedulerConfig configures NewScheduler.
type SchedulerConfig struct {
	Manager  *Manager
	Schedule string // cron expression; defaults to DefaultActivationSchedule
	OnTick   func(ctx context.Context, activated int, needingSeedCount int)
	Logger   telemetry.Logger
}

// NewScheduler builds a Scheduler that, on every tick, activates pending
// tasks and reports how many active tasks still need a seed Thought via
// OnTick. The scheduler itself creates no Thoughts and enqueues nothing.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultActivationSchedule
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NoOpLogger{}
	}

	s := &Scheduler{
		cron:   cronlib.New(),
		tasks:  cfg.Manager,
		logger: logger,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		ctx := context.Background()
		activated, err := s.tasks.ActivatePendingTasks(ctx)
		if err != nil {
			s.logger.Error("scheduler: activation tick failed", map[string]interface{}{"error": err.Error()})
			return
		}
		needingSeed, err := s.tasks.GetTasksNeedingSeed(ctx, 0)
		if err != nil {
			s.logger.Error("scheduler: seed scan failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if cfg.OnTick != nil {
			cfg.OnTick(ctx, activated, len(needingSeed))
		}
	})
	if err != nil {
		s.logger.Error("scheduler: invalid cron schedule, activation tick disabled", map[string]interface{}{"schedule": schedule, "error": err.Error()})
	}

	return s
}

// Start begins the cron scheduler in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron scheduler and blocks until the running job (if any)
// completes.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
