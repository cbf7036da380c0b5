package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Distributor fans an export out to the schedule's configured channels and
// reports each channel's outcome independently.
type Distributor interface {
	Dispatch(ctx context.Context, schedule *models.ExportSchedule, export *models.Export) map[string]models.ChannelResult
}

// Executor runs one schedule end to end: execution record, export
// generation, distribution, statistics. It is invoked from worker tasks
// and may be retried; retries reuse the execution row found by task id.
type Executor struct {
	schedules  domain.ScheduleStore
	executions domain.ExecutionStore
	exports    domain.ExportStore
	generator  domain.ExportGenerator
	dispatcher Distributor
	exportTTL  time.Duration
	log        logger.Logger
}

// NewExecutor creates a schedule executor
func NewExecutor(schedules domain.ScheduleStore, executions domain.ExecutionStore, exports domain.ExportStore, generator domain.ExportGenerator, dispatcher Distributor, exportTTL time.Duration, log logger.Logger) *Executor {
	return &Executor{
		schedules:  schedules,
		executions: executions,
		exports:    exports,
		generator:  generator,
		dispatcher: dispatcher,
		exportTTL:  exportTTL,
		log:        log,
	}
}

// Execute runs one schedule attempt. retryCount is the attempt number the
// task layer reports, zero for the first delivery.
func (e *Executor) Execute(ctx context.Context, scheduleID int, taskID string, retryCount int) error {
	schedule, err := e.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		// Deleted between enqueue and execution; nothing to retry.
		e.log.Warn("schedule vanished before execution", "schedule_id", scheduleID, "task_id", taskID)
		return err
	}

	execution, err := e.beginExecution(ctx, schedule, taskID, retryCount)
	if err != nil {
		return err
	}

	export, err := e.generateExport(ctx, schedule)
	if err != nil {
		e.finishExecution(ctx, schedule, execution, export, nil, err)
		return err
	}

	results := e.dispatcher.Dispatch(ctx, schedule, export)
	e.finishExecution(ctx, schedule, execution, export, results, nil)
	return nil
}

// beginExecution writes the audit row before any real work happens, so a
// crash mid-run still leaves a trace. Retries reuse the existing row.
func (e *Executor) beginExecution(ctx context.Context, schedule *models.ExportSchedule, taskID string, retryCount int) (*models.ScheduleExecution, error) {
	execution, err := e.executions.GetByTaskID(ctx, taskID)
	if err == nil {
		execution.Status = models.ExecutionRunning
		execution.RetryCount = retryCount
		execution.ErrorMessage = ""
		if err := e.executions.Update(ctx, execution); err != nil {
			return nil, err
		}
		return execution, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	execution = &models.ScheduleExecution{
		ScheduleID: schedule.ID,
		StartedAt:  time.Now().UTC(),
		Status:     models.ExecutionRunning,
		TaskID:     taskID,
		RetryCount: retryCount,
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		return nil, err
	}
	return execution, nil
}

// generateExport creates the export record and materializes the file
func (e *Executor) generateExport(ctx context.Context, schedule *models.ExportSchedule) (*models.Export, error) {
	now := time.Now().UTC()
	export := &models.Export{
		ID:        uuid.New().String(),
		ReportID:  schedule.ReportID,
		UserID:    schedule.OwnerID,
		Format:    schedule.ExportConfig.Format,
		Status:    models.ExportProcessing,
		ExpiresAt: now.Add(e.exportTTL),
		CreatedAt: now,
	}
	if err := e.exports.Create(ctx, export); err != nil {
		return nil, err
	}

	file, err := e.generator.Generate(ctx, schedule.ReportID, schedule.ExportConfig.Format, nil, schedule.ExportConfig.Options)
	if err != nil {
		export.Status = models.ExportFailed
		export.ErrorMessage = err.Error()
		if updateErr := e.exports.Update(ctx, export); updateErr != nil {
			e.log.Error("failed to mark export failed", "export_id", export.ID, "error", updateErr)
		}
		// Validation failures keep their code so the task layer can skip
		// pointless retries.
		if domain.IsValidation(err) || domain.IsNotFound(err) {
			return export, err
		}
		return export, domain.NewExportGenerationError(err)
	}

	completed := time.Now().UTC()
	export.Status = models.ExportCompleted
	export.Filename = file.Filename
	export.FileSize = file.Size
	export.RowCount = file.RowCount
	export.CompletedAt = &completed
	if err := e.exports.Update(ctx, export); err != nil {
		return export, err
	}
	return export, nil
}

// finishExecution records the terminal state and schedule statistics. The
// execution succeeds when the export itself succeeded; per-channel
// distribution failures are tracked separately and never fail the run.
func (e *Executor) finishExecution(ctx context.Context, schedule *models.ExportSchedule, execution *models.ScheduleExecution, export *models.Export, results map[string]models.ChannelResult, runErr error) {
	now := time.Now().UTC()
	execution.CompletedAt = &now
	execution.DistributionResults = results
	if export != nil {
		execution.ExportID = export.ID
	}

	success := runErr == nil
	if success {
		execution.Status = models.ExecutionSuccess
	} else {
		execution.Status = models.ExecutionFailed
		execution.ErrorMessage = runErr.Error()
	}

	if err := e.executions.Update(ctx, execution); err != nil {
		e.log.Error("failed to finalize execution", "execution_id", execution.ID, "error", err)
	}
	if err := e.schedules.RecordRun(ctx, schedule.ID, success, now); err != nil {
		e.log.Error("failed to record run statistics", "schedule_id", schedule.ID, "error", err)
	}

	if success {
		e.log.Info("schedule executed",
			"schedule_id", schedule.ID,
			"execution_id", execution.ID,
			"export_id", execution.ExportID)
	} else {
		e.log.Error("schedule execution failed",
			"schedule_id", schedule.ID,
			"execution_id", execution.ID,
			"retry_count", execution.RetryCount,
			"error", runErr)
	}
}
