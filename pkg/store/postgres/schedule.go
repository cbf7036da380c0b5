package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ScheduleStore persists export schedules in postgres. Config blobs live
// in JSONB; timing and counter columns are first-class so the due query
// and counter updates stay cheap.
type ScheduleStore struct {
	db *sql.DB
}

// NewScheduleStore creates a postgres schedule store
func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

var scheduleColumns = []string{
	"id", "report_id", "owner_id", "name",
	"schedule_config", "distribution_config", "export_config",
	"is_active", "is_paused", "next_run", "last_run",
	"run_count", "success_count", "failure_count",
	"created_at", "updated_at",
}

// Create persists a new schedule and assigns its id
func (s *ScheduleStore) Create(ctx context.Context, schedule *models.ExportSchedule) error {
	scheduleCfg, distCfg, exportCfg, err := encodeScheduleConfigs(schedule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query, args, err := psql.
		Insert("export_schedules").
		Columns("report_id", "owner_id", "name",
			"schedule_config", "distribution_config", "export_config",
			"is_active", "is_paused", "next_run", "created_at", "updated_at").
		Values(schedule.ReportID, schedule.OwnerID, schedule.Name,
			scheduleCfg, distCfg, exportCfg,
			schedule.IsActive, schedule.IsPaused, schedule.NextRun, now, now).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building schedule insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&schedule.ID); err != nil {
		return fmt.Errorf("failed inserting schedule: %w", err)
	}
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	return nil
}

// GetByID returns a schedule by id
func (s *ScheduleStore) GetByID(ctx context.Context, id int) (*models.ExportSchedule, error) {
	query, args, err := psql.
		Select(scheduleColumns...).
		From("export_schedules").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building schedule query: %w", err)
	}

	schedule, err := scanSchedule(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("schedule")
	}
	return schedule, err
}

// Update persists schedule changes
func (s *ScheduleStore) Update(ctx context.Context, schedule *models.ExportSchedule) error {
	scheduleCfg, distCfg, exportCfg, err := encodeScheduleConfigs(schedule)
	if err != nil {
		return err
	}

	schedule.UpdatedAt = time.Now().UTC()
	query, args, err := psql.
		Update("export_schedules").
		Set("name", schedule.Name).
		Set("schedule_config", scheduleCfg).
		Set("distribution_config", distCfg).
		Set("export_config", exportCfg).
		Set("is_active", schedule.IsActive).
		Set("is_paused", schedule.IsPaused).
		Set("next_run", schedule.NextRun).
		Set("updated_at", schedule.UpdatedAt).
		Where(sq.Eq{"id": schedule.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building schedule update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed updating schedule: %w", err)
	}
	return requireRow(res, "schedule")
}

// Delete removes the schedule; execution history cascades
func (s *ScheduleStore) Delete(ctx context.Context, id int) error {
	query, args, err := psql.Delete("export_schedules").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed building schedule delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed deleting schedule: %w", err)
	}
	return requireRow(res, "schedule")
}

// ListByOwner returns the owner's schedules newest first
func (s *ScheduleStore) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]models.ExportSchedule, int, error) {
	countQuery, countArgs, err := psql.
		Select("count(*)").From("export_schedules").Where(sq.Eq{"owner_id": ownerID}).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building schedule count: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed counting schedules: %w", err)
	}

	builder := psql.
		Select(scheduleColumns...).
		From("export_schedules").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("id DESC").
		Offset(uint64(offset))
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building schedule list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed listing schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.ExportSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, total, rows.Err()
}

// Due returns active, unpaused schedules whose next_run is at or before
// now, or null. The null case lets the poller backfill schedules created
// before next_run bookkeeping existed.
func (s *ScheduleStore) Due(ctx context.Context, now time.Time) ([]models.ExportSchedule, error) {
	query, args, err := psql.
		Select(scheduleColumns...).
		From("export_schedules").
		Where(sq.Eq{"is_active": true}).
		Where(sq.Eq{"is_paused": false}).
		Where(sq.Or{
			sq.LtOrEq{"next_run": now},
			sq.Eq{"next_run": nil},
		}).
		OrderBy("next_run NULLS LAST").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building due query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed querying due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.ExportSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

// SetNextRun updates only the next_run column
func (s *ScheduleStore) SetNextRun(ctx context.Context, id int, nextRun *time.Time) error {
	query, args, err := psql.
		Update("export_schedules").
		Set("next_run", nextRun).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building next_run update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed updating next_run: %w", err)
	}
	return requireRow(res, "schedule")
}

// RecordRun applies run counters and last_run in one atomic update
func (s *ScheduleStore) RecordRun(ctx context.Context, id int, success bool, lastRun time.Time) error {
	builder := psql.
		Update("export_schedules").
		Set("run_count", sq.Expr("run_count + 1")).
		Set("last_run", lastRun).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})
	if success {
		builder = builder.Set("success_count", sq.Expr("success_count + 1"))
	} else {
		builder = builder.Set("failure_count", sq.Expr("failure_count + 1"))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed building run record update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed recording run: %w", err)
	}
	return requireRow(res, "schedule")
}

func scanSchedule(row rowScanner) (*models.ExportSchedule, error) {
	var sch models.ExportSchedule
	var scheduleCfg, distCfg, exportCfg []byte
	if err := row.Scan(&sch.ID, &sch.ReportID, &sch.OwnerID, &sch.Name,
		&scheduleCfg, &distCfg, &exportCfg,
		&sch.IsActive, &sch.IsPaused, &sch.NextRun, &sch.LastRun,
		&sch.RunCount, &sch.SuccessCount, &sch.FailureCount,
		&sch.CreatedAt, &sch.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed scanning schedule: %w", err)
	}

	if err := decodeJSON(scheduleCfg, &sch.ScheduleConfig); err != nil {
		return nil, err
	}
	if err := decodeJSON(distCfg, &sch.DistributionConfig); err != nil {
		return nil, err
	}
	if err := decodeJSON(exportCfg, &sch.ExportConfig); err != nil {
		return nil, err
	}
	return &sch, nil
}

func encodeScheduleConfigs(schedule *models.ExportSchedule) ([]byte, []byte, []byte, error) {
	scheduleCfg, err := json.Marshal(schedule.ScheduleConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed encoding schedule config: %w", err)
	}
	distCfg, err := json.Marshal(schedule.DistributionConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed encoding distribution config: %w", err)
	}
	exportCfg, err := json.Marshal(schedule.ExportConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed encoding export config: %w", err)
	}
	return scheduleCfg, distCfg, exportCfg, nil
}
