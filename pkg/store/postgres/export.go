package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ExportStore persists export records in postgres
type ExportStore struct {
	db *sql.DB
}

// NewExportStore creates a postgres export store
func NewExportStore(db *sql.DB) *ExportStore {
	return &ExportStore{db: db}
}

var exportColumns = []string{
	"id", "report_id", "user_id", "format", "status", "filename",
	"file_size", "row_count", "parameters", "error_message",
	"expires_at", "created_at", "completed_at",
}

// Create persists a new export record
func (s *ExportStore) Create(ctx context.Context, export *models.Export) error {
	params, err := encodeJSON(export.Parameters)
	if err != nil {
		return err
	}

	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now().UTC()
	}
	query, args, err := psql.
		Insert("exports").
		Columns(exportColumns...).
		Values(export.ID, export.ReportID, export.UserID, export.Format, export.Status,
			export.Filename, export.FileSize, export.RowCount, params,
			export.ErrorMessage, export.ExpiresAt, export.CreatedAt, export.CompletedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building export insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed inserting export: %w", err)
	}
	return nil
}

// Update persists export changes
func (s *ExportStore) Update(ctx context.Context, export *models.Export) error {
	params, err := encodeJSON(export.Parameters)
	if err != nil {
		return err
	}

	query, args, err := psql.
		Update("exports").
		Set("status", export.Status).
		Set("filename", export.Filename).
		Set("file_size", export.FileSize).
		Set("row_count", export.RowCount).
		Set("parameters", params).
		Set("error_message", export.ErrorMessage).
		Set("expires_at", export.ExpiresAt).
		Set("completed_at", export.CompletedAt).
		Where(sq.Eq{"id": export.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building export update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed updating export: %w", err)
	}
	return requireRow(res, "export")
}

// GetByID returns one export by id
func (s *ExportStore) GetByID(ctx context.Context, id string) (*models.Export, error) {
	query, args, err := psql.
		Select(exportColumns...).
		From("exports").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building export query: %w", err)
	}

	export, err := scanExport(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("export")
	}
	return export, err
}

// ListByUser returns the user's exports newest first
func (s *ExportStore) ListByUser(ctx context.Context, userID, limit, offset int) ([]models.Export, int, error) {
	countQuery, countArgs, err := psql.
		Select("count(*)").From("exports").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building export count: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed counting exports: %w", err)
	}

	builder := psql.
		Select(exportColumns...).
		From("exports").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Offset(uint64(offset))
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building export list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed listing exports: %w", err)
	}
	defer rows.Close()

	var exports []models.Export
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, 0, err
		}
		exports = append(exports, *export)
	}
	return exports, total, rows.Err()
}

// ListExpired returns terminal exports past their expiry
func (s *ExportStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Export, error) {
	builder := psql.
		Select(exportColumns...).
		From("exports").
		Where(sq.Lt{"expires_at": now}).
		Where(sq.Eq{"status": []models.ExportStatus{models.ExportCompleted, models.ExportFailed}}).
		OrderBy("expires_at")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building expired export query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed listing expired exports: %w", err)
	}
	defer rows.Close()

	var exports []models.Export
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, *export)
	}
	return exports, rows.Err()
}

// Delete removes an export record
func (s *ExportStore) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete("exports").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed building export delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed deleting export: %w", err)
	}
	return requireRow(res, "export")
}

func scanExport(row rowScanner) (*models.Export, error) {
	var e models.Export
	var params []byte
	if err := row.Scan(&e.ID, &e.ReportID, &e.UserID, &e.Format, &e.Status, &e.Filename,
		&e.FileSize, &e.RowCount, &params, &e.ErrorMessage,
		&e.ExpiresAt, &e.CreatedAt, &e.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed scanning export: %w", err)
	}
	if err := decodeJSON(params, &e.Parameters); err != nil {
		return nil, err
	}
	return &e, nil
}
