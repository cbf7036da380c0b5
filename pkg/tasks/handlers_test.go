package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/reportdb/pkg/cache"
	"github.com/jordanlanch/reportdb/pkg/deadletter"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
)

func setupHandlers(t *testing.T) (*Handlers, *deadletter.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := &cache.Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })

	dlq := deadletter.NewStore(client, 30*24*time.Hour, 100, logger.New("error"))
	return NewHandlers(nil, nil, dlq, logger.New("error")), dlq
}

func withMaxRetry(t *testing.T, max int) {
	t.Helper()
	orig := maxRetryFromContext
	maxRetryFromContext = func(context.Context) (int, bool) { return max, true }
	t.Cleanup(func() { maxRetryFromContext = orig })
}

func TestFinishDeadLettersExhaustedRetries(t *testing.T) {
	h, dlq := setupHandlers(t)
	withMaxRetry(t, 5)
	task := asynq.NewTask(TypeScheduleExecute, []byte(`{"schedule_id":42}`))

	runErr := domain.NewExportGenerationError(errors.New("disk full"))
	err := h.finish(context.Background(), task, "task-exhausted", 5, runErr)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry),
		"exhausted failure is final through the queue, not skipped")

	entry, err := dlq.Get(context.Background(), "task-exhausted")
	require.NoError(t, err)
	assert.Equal(t, TypeScheduleExecute, entry.TaskName)
	assert.Equal(t, 5, entry.RetryCount)
	assert.Contains(t, entry.Error, "disk full")
}

func TestFinishRetryableWithinBudgetNotDeadLettered(t *testing.T) {
	h, dlq := setupHandlers(t)
	withMaxRetry(t, 5)
	task := asynq.NewTask(TypeScheduleExecute, []byte(`{"schedule_id":42}`))

	runErr := domain.NewExportGenerationError(errors.New("connection reset"))
	err := h.finish(context.Background(), task, "task-retrying", 2, runErr)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "retryable failure must re-queue")

	_, err = dlq.Get(context.Background(), "task-retrying")
	assert.True(t, domain.IsNotFound(err), "entry must not exist before the budget is spent")
}

func TestFinishValidationErrorSkipsRetryAndDeadLetter(t *testing.T) {
	h, dlq := setupHandlers(t)
	withMaxRetry(t, 5)
	task := asynq.NewTask(TypeScheduleExecute, []byte(`{"schedule_id":42}`))

	for name, runErr := range map[string]error{
		"unknown field":  domain.NewUnknownFieldError(7),
		"bad config":     domain.NewInvalidScheduleConfigError("cron expression \"nope\" is not valid", nil),
		"vanished owner": domain.NewNotFoundError("schedule"),
	} {
		err := h.finish(context.Background(), task, "task-"+name, 0, runErr)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, asynq.SkipRetry), name)

		_, err = dlq.Get(context.Background(), "task-"+name)
		assert.True(t, domain.IsNotFound(err), "%s must never reach the dead-letter queue", name)
	}
}

func TestFinishNonRetryableInfrastructureFailureDeadLettersAtOnce(t *testing.T) {
	h, dlq := setupHandlers(t)
	withMaxRetry(t, 5)
	task := asynq.NewTask(TypeExportGenerate, []byte(`{"export_id":"exp-1"}`))

	runErr := domain.NewPathTraversalError("../../etc/passwd")
	err := h.finish(context.Background(), task, "task-traversal", 0, runErr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	entry, err := dlq.Get(context.Background(), "task-traversal")
	require.NoError(t, err)
	assert.Equal(t, TypeExportGenerate, entry.TaskName)
	assert.Equal(t, 0, entry.RetryCount)
}

func TestFinishSuccessIsTerminal(t *testing.T) {
	h, dlq := setupHandlers(t)
	withMaxRetry(t, 5)
	task := asynq.NewTask(TypeScheduleExecute, []byte(`{"schedule_id":42}`))

	require.NoError(t, h.finish(context.Background(), task, "task-ok", 3, nil))

	_, err := dlq.Get(context.Background(), "task-ok")
	assert.True(t, domain.IsNotFound(err))
}
