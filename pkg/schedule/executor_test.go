package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	failures int
	calls    int
}

func (g *fakeGenerator) Generate(ctx context.Context, reportID int, format models.ExportFormat, filters []models.QueryFilter, options map[string]interface{}) (*models.GeneratedFile, error) {
	g.calls++
	if g.calls <= g.failures {
		return nil, fmt.Errorf("database connection refused")
	}
	return &models.GeneratedFile{Filename: "report.csv", Size: 2048, RowCount: 42}, nil
}

type fakeDistributor struct {
	results map[string]models.ChannelResult
}

func (d *fakeDistributor) Dispatch(ctx context.Context, schedule *models.ExportSchedule, export *models.Export) map[string]models.ChannelResult {
	return d.results
}

type executorFixture struct {
	schedules  *memory.ScheduleStore
	executions *memory.ExecutionStore
	exports    *memory.ExportStore
	generator  *fakeGenerator
	executor   *Executor
	schedule   *models.ExportSchedule
}

func newExecutorFixture(t *testing.T, generator *fakeGenerator, distributor Distributor) *executorFixture {
	t.Helper()
	schedules := memory.NewScheduleStore()
	executions := memory.NewExecutionStore()
	exports := memory.NewExportStore()

	if distributor == nil {
		distributor = &fakeDistributor{results: map[string]models.ChannelResult{}}
	}

	schedule := &models.ExportSchedule{
		ReportID:     7,
		OwnerID:      3,
		Name:         "weekly sales",
		IsActive:     true,
		ExportConfig: models.ExportConfig{Format: models.FormatCSV},
	}
	require.NoError(t, schedules.Create(context.Background(), schedule))

	return &executorFixture{
		schedules:  schedules,
		executions: executions,
		exports:    exports,
		generator:  generator,
		executor:   NewExecutor(schedules, executions, exports, generator, distributor, 24*time.Hour, logger.New("error")),
		schedule:   schedule,
	}
}

func TestExecutorSuccess(t *testing.T) {
	f := newExecutorFixture(t, &fakeGenerator{}, nil)

	err := f.executor.Execute(context.Background(), f.schedule.ID, "task-1", 0)
	require.NoError(t, err)

	execution, err := f.executions.GetByTaskID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, execution.Status)
	assert.NotNil(t, execution.CompletedAt)
	require.NotEmpty(t, execution.ExportID)

	export, err := f.exports.GetByID(context.Background(), execution.ExportID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportCompleted, export.Status)
	assert.Equal(t, "report.csv", export.Filename)
	assert.Equal(t, int64(2048), export.FileSize)
	assert.Equal(t, 42, export.RowCount)

	updated, err := f.schedules.GetByID(context.Background(), f.schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.RunCount)
	assert.Equal(t, 1, updated.SuccessCount)
	assert.Equal(t, 0, updated.FailureCount)
	assert.NotNil(t, updated.LastRun)
}

func TestExecutorGenerationFailure(t *testing.T) {
	f := newExecutorFixture(t, &fakeGenerator{failures: 100}, nil)

	err := f.executor.Execute(context.Background(), f.schedule.ID, "task-1", 0)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeExportGeneration, domain.GetErrorCode(err))
	assert.True(t, domain.IsRetryable(err))

	execution, getErr := f.executions.GetByTaskID(context.Background(), "task-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.ExecutionFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "database connection refused")

	export, getErr := f.exports.GetByID(context.Background(), execution.ExportID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ExportFailed, export.Status)

	updated, getErr := f.schedules.GetByID(context.Background(), f.schedule.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 1, updated.FailureCount)
}

func TestExecutorRetriesReuseExecutionRow(t *testing.T) {
	// Three failed attempts then a success must leave a single execution
	// row with retry_count 3 and terminal status success.
	f := newExecutorFixture(t, &fakeGenerator{failures: 3}, nil)
	ctx := context.Background()

	for attempt := 0; attempt < 3; attempt++ {
		err := f.executor.Execute(ctx, f.schedule.ID, "task-1", attempt)
		require.Error(t, err)
	}
	require.NoError(t, f.executor.Execute(ctx, f.schedule.ID, "task-1", 3))

	all, total, err := f.executions.ListBySchedule(ctx, f.schedule.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.ExecutionSuccess, all[0].Status)
	assert.Equal(t, 3, all[0].RetryCount)
	assert.Empty(t, all[0].ErrorMessage)

	updated, err := f.schedules.GetByID(ctx, f.schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.RunCount)
	assert.Equal(t, 1, updated.SuccessCount)
	assert.Equal(t, 3, updated.FailureCount)
}

func TestExecutorChannelFailureDoesNotFailRun(t *testing.T) {
	// Export succeeded but email bounced: the run is success, the channel
	// outcome is recorded.
	distributor := &fakeDistributor{results: map[string]models.ChannelResult{
		models.ChannelLocal: {Status: models.ChannelStatusSuccess},
		models.ChannelEmail: {Status: models.ChannelStatusFailed, Detail: "smtp timeout"},
	}}
	f := newExecutorFixture(t, &fakeGenerator{}, distributor)

	err := f.executor.Execute(context.Background(), f.schedule.ID, "task-1", 0)
	require.NoError(t, err)

	execution, err := f.executions.GetByTaskID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, execution.Status)
	assert.Equal(t, models.ChannelStatusFailed, execution.DistributionResults[models.ChannelEmail].Status)
	assert.Equal(t, models.ChannelStatusSuccess, execution.DistributionResults[models.ChannelLocal].Status)
}

func TestExecutorMissingSchedule(t *testing.T) {
	f := newExecutorFixture(t, &fakeGenerator{}, nil)

	err := f.executor.Execute(context.Background(), 999, "task-x", 0)
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}
