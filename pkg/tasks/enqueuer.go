package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/jordanlanch/reportdb/pkg/logger"
)

// EnqueuerConfig tunes task submission
type EnqueuerConfig struct {
	ScheduleMaxRetry int
	ExportMaxRetry   int
	SoftTimeout      time.Duration
	HardDeadline     time.Duration
}

// Enqueuer submits tasks through asynq. It implements
// domain.TaskEnqueuer.
type Enqueuer struct {
	client *asynq.Client
	cfg    EnqueuerConfig
	log    logger.Logger
}

// NewEnqueuer creates a task enqueuer on top of an asynq client
func NewEnqueuer(client *asynq.Client, cfg EnqueuerConfig, log logger.Logger) *Enqueuer {
	return &Enqueuer{client: client, cfg: cfg, log: log}
}

// EnqueueScheduleRun submits one schedule execution. The task id is
// generated here so the execution row and the dead-letter entry share it.
func (e *Enqueuer) EnqueueScheduleRun(ctx context.Context, scheduleID int) (string, error) {
	task, err := NewScheduleExecuteTask(scheduleID)
	if err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.MaxRetry(e.cfg.ScheduleMaxRetry),
		asynq.Timeout(e.cfg.SoftTimeout),
		asynq.Deadline(time.Now().Add(e.cfg.HardDeadline)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue schedule run: %w", err)
	}

	e.log.Info("schedule run enqueued", "schedule_id", scheduleID, "task_id", info.ID, "queue", info.Queue)
	return info.ID, nil
}

// EnqueueExportRun submits one ad-hoc export generation
func (e *Enqueuer) EnqueueExportRun(ctx context.Context, exportID string) (string, error) {
	task, err := NewExportGenerateTask(exportID)
	if err != nil {
		return "", err
	}

	taskID := uuid.New().String()
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.MaxRetry(e.cfg.ExportMaxRetry),
		asynq.Timeout(e.cfg.SoftTimeout),
		asynq.Deadline(time.Now().Add(e.cfg.HardDeadline)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue export run: %w", err)
	}

	e.log.Info("export run enqueued", "export_id", exportID, "task_id", info.ID, "queue", info.Queue)
	return info.ID, nil
}
