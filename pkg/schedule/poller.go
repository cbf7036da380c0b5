package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Poller periodically discovers due schedules and enqueues their
// executions. A schedule's next_run is advanced as soon as its task is
// enqueued, before the run completes, so a slow execution can never cause
// a duplicate enqueue on the following tick.
type Poller struct {
	schedules domain.ScheduleStore
	enqueuer  domain.TaskEnqueuer
	clock     *Clock
	interval  time.Duration
	log       logger.Logger

	ticking atomic.Bool
	now     func() time.Time
}

// NewPoller creates a scheduler poller
func NewPoller(schedules domain.ScheduleStore, enqueuer domain.TaskEnqueuer, clock *Clock, interval time.Duration, log logger.Logger) *Poller {
	return &Poller{
		schedules: schedules,
		enqueuer:  enqueuer,
		clock:     clock,
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// Start runs the tick loop until the context is cancelled
func (p *Poller) Start(ctx context.Context) {
	p.log.Info("🚀 starting schedule poller", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("🛑 schedule poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick processes one poll cycle. Overlapping ticks are a bug condition;
// if the previous tick is still running this one is skipped with a
// warning rather than run concurrently.
func (p *Poller) Tick(ctx context.Context) {
	if !p.ticking.CompareAndSwap(false, true) {
		p.log.Warn("poller tick still running, skipping this tick")
		return
	}
	defer p.ticking.Store(false)

	now := p.now().UTC()
	due, err := p.schedules.Due(ctx, now)
	if err != nil {
		p.log.Error("failed to query due schedules", "error", err)
		return
	}

	for i := range due {
		p.process(ctx, &due[i], now)
	}
}

// process handles one candidate schedule from the due query
func (p *Poller) process(ctx context.Context, schedule *models.ExportSchedule, now time.Time) {
	// A null next_run means the schedule was never evaluated (legacy rows,
	// manual inserts). Backfill it and only fire if the computed first run
	// is already due.
	if schedule.NextRun == nil {
		nextRun, err := p.clock.NextRun(schedule.ScheduleConfig, now)
		if err != nil {
			p.log.Error("failed to compute next run", "schedule_id", schedule.ID, "error", err)
			return
		}
		if nextRun == nil {
			// Nothing will ever fire (past its end date); disarm instead of
			// re-surfacing the null row on every tick.
			p.disarm(ctx, schedule)
			return
		}
		if err := p.schedules.SetNextRun(ctx, schedule.ID, nextRun); err != nil {
			p.log.Error("failed to persist next run", "schedule_id", schedule.ID, "error", err)
			return
		}
		if nextRun.After(now) {
			return
		}
		schedule.NextRun = nextRun
	}

	taskID, err := p.enqueuer.EnqueueScheduleRun(ctx, schedule.ID)
	if err != nil {
		p.log.Error("failed to enqueue schedule run", "schedule_id", schedule.ID, "error", err)
		return
	}

	nextRun, err := p.clock.Advance(schedule.ScheduleConfig, now)
	if err != nil {
		p.log.Error("failed to advance next run", "schedule_id", schedule.ID, "error", err)
		return
	}
	if nextRun == nil {
		// One-shot schedules and schedules past their end date have no
		// future run. Deactivation is what stops the due query from
		// returning the row again; a bare null next_run would be treated
		// as a backfill candidate on the next tick.
		p.disarm(ctx, schedule)
		p.log.Info("schedule completed",
			"schedule_id", schedule.ID,
			"task_id", taskID)
		return
	}
	if err := p.schedules.SetNextRun(ctx, schedule.ID, nextRun); err != nil {
		p.log.Error("failed to persist next run", "schedule_id", schedule.ID, "error", err)
		return
	}

	p.log.Info("schedule enqueued",
		"schedule_id", schedule.ID,
		"task_id", taskID,
		"next_run", nextRun)
}

// disarm deactivates a schedule that has no future run
func (p *Poller) disarm(ctx context.Context, schedule *models.ExportSchedule) {
	schedule.IsActive = false
	schedule.NextRun = nil
	if err := p.schedules.Update(ctx, schedule); err != nil {
		p.log.Error("failed to deactivate finished schedule", "schedule_id", schedule.ID, "error", err)
	}
}
