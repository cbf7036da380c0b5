package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/jordanlanch/reportdb/pkg/deadletter"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/export"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metrics"
	"github.com/jordanlanch/reportdb/pkg/schedule"
)

// Handlers wires queue tasks to the services that run them
type Handlers struct {
	executor *schedule.Executor
	exports  *export.Service
	dlq      *deadletter.Store
	log      logger.Logger
}

// NewHandlers creates the worker task handlers
func NewHandlers(executor *schedule.Executor, exports *export.Service, dlq *deadletter.Store, log logger.Logger) *Handlers {
	return &Handlers{executor: executor, exports: exports, dlq: dlq, log: log}
}

// Register attaches the handlers to the worker mux
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScheduleExecute, h.HandleScheduleExecute)
	mux.HandleFunc(TypeExportGenerate, h.HandleExportGenerate)
}

// Retry metadata readers, replaceable in tests where no asynq server
// populates the context.
var (
	taskIDFromContext     = asynq.GetTaskID
	retryCountFromContext = asynq.GetRetryCount
	maxRetryFromContext   = asynq.GetMaxRetry
)

// HandleScheduleExecute runs one scheduled report execution
func (h *Handlers) HandleScheduleExecute(ctx context.Context, task *asynq.Task) error {
	var payload ScheduleExecutePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid schedule payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := taskIDFromContext(ctx)
	retryCount, _ := retryCountFromContext(ctx)

	err := h.executor.Execute(ctx, payload.ScheduleID, taskID, retryCount)
	if err == nil {
		metrics.ScheduleExecutions.WithLabelValues("success").Inc()
	} else {
		metrics.ScheduleExecutions.WithLabelValues("failed").Inc()
	}
	return h.finish(ctx, task, taskID, retryCount, err)
}

// HandleExportGenerate runs one ad-hoc export generation
func (h *Handlers) HandleExportGenerate(ctx context.Context, task *asynq.Task) error {
	var payload ExportGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid export payload: %v: %w", err, asynq.SkipRetry)
	}

	taskID, _ := taskIDFromContext(ctx)
	retryCount, _ := retryCountFromContext(ctx)

	err := h.exports.Process(ctx, payload.ExportID)
	return h.finish(ctx, task, taskID, retryCount, err)
}

// finish maps a service error to the queue's retry semantics. The
// dead-letter queue holds work an operator can requeue: retryable
// failures land there once the budget is spent, infrastructure-class
// non-retryable ones at once. Validation-class failures are caller
// mistakes; requeueing cannot fix them, so they only skip the ladder.
func (h *Handlers) finish(ctx context.Context, task *asynq.Task, taskID string, retryCount int, err error) error {
	if err == nil {
		return nil
	}

	if domain.IsValidation(err) || domain.IsNotFound(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	maxRetry, _ := maxRetryFromContext(ctx)
	final := retryCount >= maxRetry || !domain.IsRetryable(err)

	if final {
		h.recordDeadLetter(ctx, task, taskID, retryCount, err)
		metrics.DeadLetteredTasks.WithLabelValues(task.Type()).Inc()
	}
	if !domain.IsRetryable(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	metrics.TaskRetries.WithLabelValues(task.Type()).Inc()
	return err
}

func (h *Handlers) recordDeadLetter(ctx context.Context, task *asynq.Task, taskID string, retryCount int, taskErr error) {
	if h.dlq == nil {
		return
	}
	args := DecodeArgs(task.Payload())
	if err := h.dlq.Record(ctx, task.Type(), taskID, args, task.Payload(), taskErr, retryCount); err != nil {
		h.log.Error("failed to write dead-letter entry", "task_id", taskID, "error", err)
	}
}
