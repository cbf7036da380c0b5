package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	scheduleIDs []int
	failNext    bool
}

func (f *fakeEnqueuer) EnqueueScheduleRun(ctx context.Context, scheduleID int) (string, error) {
	if f.failNext {
		return "", fmt.Errorf("queue unavailable")
	}
	f.scheduleIDs = append(f.scheduleIDs, scheduleID)
	return fmt.Sprintf("task-%d-%d", scheduleID, len(f.scheduleIDs)), nil
}

func (f *fakeEnqueuer) EnqueueExportRun(ctx context.Context, exportID string) (string, error) {
	return "export-task-" + exportID, nil
}

func newTestPoller(store *memory.ScheduleStore, enqueuer *fakeEnqueuer, now time.Time) *Poller {
	p := NewPoller(store, enqueuer, NewClock(), time.Minute, logger.New("error"))
	p.now = func() time.Time { return now }
	return p
}

func dailyNineSchedule(t *testing.T, store *memory.ScheduleStore) *models.ExportSchedule {
	t.Helper()
	nextRun := mustTime(t, "2024-01-01T09:00:00Z")
	schedule := &models.ExportSchedule{
		ReportID: 1,
		OwnerID:  1,
		Name:     "daily revenue",
		ScheduleConfig: models.ScheduleConfig{
			Frequency:      models.FrequencyCustom,
			CronExpression: "0 9 * * *",
			Timezone:       "UTC",
		},
		IsActive: true,
		NextRun:  &nextRun,
	}
	require.NoError(t, store.Create(context.Background(), schedule))
	return schedule
}

func TestPollerEnqueuesDueScheduleOnce(t *testing.T) {
	store := memory.NewScheduleStore()
	schedule := dailyNineSchedule(t, store)
	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T09:00:01Z"))

	p.Tick(context.Background())

	require.Equal(t, []int{schedule.ID}, enqueuer.scheduleIDs)

	updated, err := store.GetByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.NextRun)
	assert.Equal(t, mustTime(t, "2024-01-02T09:00:00Z"), *updated.NextRun)

	// next_run advanced past the tick, so a second tick at the same instant
	// must not enqueue again
	p.Tick(context.Background())
	assert.Len(t, enqueuer.scheduleIDs, 1)
}

func TestPollerSkipsFutureSchedule(t *testing.T) {
	store := memory.NewScheduleStore()
	dailyNineSchedule(t, store)
	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T08:59:00Z"))

	p.Tick(context.Background())

	assert.Empty(t, enqueuer.scheduleIDs)
}

func TestPollerBackfillsNullNextRun(t *testing.T) {
	// A schedule with no next_run gets one computed and persisted, and does
	// not fire unless the computed run is already due.
	store := memory.NewScheduleStore()
	schedule := &models.ExportSchedule{
		ReportID: 1,
		OwnerID:  1,
		Name:     "backfill",
		ScheduleConfig: models.ScheduleConfig{
			Frequency:      models.FrequencyCustom,
			CronExpression: "0 9 * * *",
		},
		IsActive: true,
	}
	require.NoError(t, store.Create(context.Background(), schedule))

	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T08:00:00Z"))
	p.Tick(context.Background())

	assert.Empty(t, enqueuer.scheduleIDs)

	updated, err := store.GetByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.NextRun)
	assert.Equal(t, mustTime(t, "2024-01-01T09:00:00Z"), *updated.NextRun)
}

func TestPollerRunsImmediateScheduleExactlyOnce(t *testing.T) {
	// A one-shot schedule must fire on the tick it is due and then disarm;
	// repeated ticks must not enqueue it again.
	store := memory.NewScheduleStore()
	t0 := mustTime(t, "2024-01-01T09:00:00Z")
	schedule := &models.ExportSchedule{
		ReportID: 1,
		OwnerID:  1,
		Name:     "one shot",
		ScheduleConfig: models.ScheduleConfig{
			Frequency: models.FrequencyImmediate,
		},
		IsActive: true,
		NextRun:  &t0,
	}
	require.NoError(t, store.Create(context.Background(), schedule))

	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, t0)

	for i := 0; i < 5; i++ {
		tick := t0.Add(time.Duration(i) * time.Minute)
		p.now = func() time.Time { return tick }
		p.Tick(context.Background())
	}

	require.Equal(t, []int{schedule.ID}, enqueuer.scheduleIDs)

	updated, err := store.GetByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsActive, "one-shot schedule must deactivate after firing")
	assert.Nil(t, updated.NextRun)
}

func TestPollerDisarmsScheduleWithNullNextRunPastEndDate(t *testing.T) {
	// A null next_run whose config can never fire again must be
	// deactivated, not re-surfaced on every tick.
	store := memory.NewScheduleStore()
	end := mustTime(t, "2023-06-01T00:00:00Z")
	schedule := &models.ExportSchedule{
		ReportID: 1,
		OwnerID:  1,
		Name:     "expired",
		ScheduleConfig: models.ScheduleConfig{
			Frequency:      models.FrequencyCustom,
			CronExpression: "0 9 * * *",
			EndDate:        &end,
		},
		IsActive: true,
	}
	require.NoError(t, store.Create(context.Background(), schedule))

	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T09:00:01Z"))
	p.Tick(context.Background())

	assert.Empty(t, enqueuer.scheduleIDs)

	updated, err := store.GetByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
}

func TestPollerIgnoresPausedAndInactive(t *testing.T) {
	store := memory.NewScheduleStore()
	paused := dailyNineSchedule(t, store)
	paused.IsPaused = true
	require.NoError(t, store.Update(context.Background(), paused))

	inactive := dailyNineSchedule(t, store)
	inactive.IsActive = false
	require.NoError(t, store.Update(context.Background(), inactive))

	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T09:00:01Z"))
	p.Tick(context.Background())

	assert.Empty(t, enqueuer.scheduleIDs)
}

func TestPollerKeepsNextRunOnEnqueueFailure(t *testing.T) {
	// If the queue rejects the task, next_run stays due so the following
	// tick retries the enqueue.
	store := memory.NewScheduleStore()
	schedule := dailyNineSchedule(t, store)
	enqueuer := &fakeEnqueuer{failNext: true}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T09:00:01Z"))

	p.Tick(context.Background())

	updated, err := store.GetByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.NextRun)
	assert.Equal(t, mustTime(t, "2024-01-01T09:00:00Z"), *updated.NextRun)

	enqueuer.failNext = false
	p.Tick(context.Background())
	assert.Equal(t, []int{schedule.ID}, enqueuer.scheduleIDs)
}

func TestPollerOverlapGuard(t *testing.T) {
	store := memory.NewScheduleStore()
	dailyNineSchedule(t, store)
	enqueuer := &fakeEnqueuer{}
	p := newTestPoller(store, enqueuer, mustTime(t, "2024-01-01T09:00:01Z"))

	p.ticking.Store(true)
	p.Tick(context.Background())
	assert.Empty(t, enqueuer.scheduleIDs, "overlapping tick must be skipped")

	p.ticking.Store(false)
	p.Tick(context.Background())
	assert.Len(t, enqueuer.scheduleIDs, 1)
}
