package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ExecutionStore persists schedule run history in postgres
type ExecutionStore struct {
	db *sql.DB
}

// NewExecutionStore creates a postgres execution store
func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

var executionColumns = []string{
	"id", "schedule_id", "started_at", "completed_at", "status",
	"export_id", "error_message", "distribution_results", "retry_count", "task_id",
}

// Create persists a new execution row and assigns its id
func (s *ExecutionStore) Create(ctx context.Context, execution *models.ScheduleExecution) error {
	results, err := encodeJSON(execution.DistributionResults)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Insert("schedule_executions").
		Columns("schedule_id", "started_at", "completed_at", "status",
			"export_id", "error_message", "distribution_results", "retry_count", "task_id").
		Values(execution.ScheduleID, execution.StartedAt, execution.CompletedAt, execution.Status,
			execution.ExportID, execution.ErrorMessage, results, execution.RetryCount, execution.TaskID).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building execution insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&execution.ID); err != nil {
		return fmt.Errorf("failed inserting execution: %w", err)
	}
	return nil
}

// Update persists execution changes
func (s *ExecutionStore) Update(ctx context.Context, execution *models.ScheduleExecution) error {
	results, err := encodeJSON(execution.DistributionResults)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Update("schedule_executions").
		Set("completed_at", execution.CompletedAt).
		Set("status", execution.Status).
		Set("export_id", execution.ExportID).
		Set("error_message", execution.ErrorMessage).
		Set("distribution_results", results).
		Set("retry_count", execution.RetryCount).
		Where(sq.Eq{"id": execution.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building execution update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed updating execution: %w", err)
	}
	return requireRow(res, "execution")
}

// GetByID returns one execution by id
func (s *ExecutionStore) GetByID(ctx context.Context, id int) (*models.ScheduleExecution, error) {
	return s.getWhere(ctx, sq.Eq{"id": id})
}

// GetByTaskID returns the execution bound to a queue task id. Retries of
// the same task reuse the row they find here.
func (s *ExecutionStore) GetByTaskID(ctx context.Context, taskID string) (*models.ScheduleExecution, error) {
	return s.getWhere(ctx, sq.Eq{"task_id": taskID})
}

func (s *ExecutionStore) getWhere(ctx context.Context, cond sq.Eq) (*models.ScheduleExecution, error) {
	query, args, err := psql.
		Select(executionColumns...).
		From("schedule_executions").
		Where(cond).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building execution query: %w", err)
	}

	execution, err := scanExecution(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("execution")
	}
	return execution, err
}

// ListBySchedule returns a schedule's run history newest first
func (s *ExecutionStore) ListBySchedule(ctx context.Context, scheduleID, limit, offset int) ([]models.ScheduleExecution, int, error) {
	countQuery, countArgs, err := psql.
		Select("count(*)").From("schedule_executions").Where(sq.Eq{"schedule_id": scheduleID}).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building execution count: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed counting executions: %w", err)
	}

	builder := psql.
		Select(executionColumns...).
		From("schedule_executions").
		Where(sq.Eq{"schedule_id": scheduleID}).
		OrderBy("started_at DESC", "id DESC").
		Offset(uint64(offset))
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building execution list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed listing executions: %w", err)
	}
	defer rows.Close()

	var executions []models.ScheduleExecution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		executions = append(executions, *execution)
	}
	return executions, total, rows.Err()
}

func scanExecution(row rowScanner) (*models.ScheduleExecution, error) {
	var e models.ScheduleExecution
	var results []byte
	if err := row.Scan(&e.ID, &e.ScheduleID, &e.StartedAt, &e.CompletedAt, &e.Status,
		&e.ExportID, &e.ErrorMessage, &results, &e.RetryCount, &e.TaskID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed scanning execution: %w", err)
	}
	if err := decodeJSON(results, &e.DistributionResults); err != nil {
		return nil, err
	}
	return &e, nil
}
