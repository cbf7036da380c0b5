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

// ReportStore persists report definitions in postgres. List-valued
// columns (field ids, filters, ordering) are stored as JSONB.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a postgres report store
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

var reportColumns = []string{
	"id", "name", "description", "owner_id", "field_ids",
	"filters", "group_by", "order_by", "created_at", "updated_at",
}

// Create persists a new report and assigns its id
func (s *ReportStore) Create(ctx context.Context, report *models.Report) error {
	fieldIDs, filters, groupBy, orderBy, err := encodeReportLists(report)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query, args, err := psql.
		Insert("reports").
		Columns("name", "description", "owner_id", "field_ids", "filters", "group_by", "order_by", "created_at", "updated_at").
		Values(report.Name, report.Description, report.OwnerID, fieldIDs, filters, groupBy, orderBy, now, now).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building report insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&report.ID); err != nil {
		return fmt.Errorf("failed inserting report: %w", err)
	}
	report.CreatedAt = now
	report.UpdatedAt = now
	return nil
}

// GetByID returns a report by id
func (s *ReportStore) GetByID(ctx context.Context, id int) (*models.Report, error) {
	query, args, err := psql.
		Select(reportColumns...).
		From("reports").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building report query: %w", err)
	}

	report, err := scanReport(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError("report")
	}
	return report, err
}

// Update persists report changes
func (s *ReportStore) Update(ctx context.Context, report *models.Report) error {
	fieldIDs, filters, groupBy, orderBy, err := encodeReportLists(report)
	if err != nil {
		return err
	}

	report.UpdatedAt = time.Now().UTC()
	query, args, err := psql.
		Update("reports").
		Set("name", report.Name).
		Set("description", report.Description).
		Set("field_ids", fieldIDs).
		Set("filters", filters).
		Set("group_by", groupBy).
		Set("order_by", orderBy).
		Set("updated_at", report.UpdatedAt).
		Where(sq.Eq{"id": report.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed building report update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed updating report: %w", err)
	}
	return requireRow(res, "report")
}

// Delete removes a report; schedules referencing it cascade
func (s *ReportStore) Delete(ctx context.Context, id int) error {
	query, args, err := psql.Delete("reports").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed building report delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed deleting report: %w", err)
	}
	return requireRow(res, "report")
}

// ListByOwner returns the owner's reports newest first
func (s *ReportStore) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]models.Report, int, error) {
	countQuery, countArgs, err := psql.
		Select("count(*)").From("reports").Where(sq.Eq{"owner_id": ownerID}).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building report count: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed counting reports: %w", err)
	}

	builder := psql.
		Select(reportColumns...).
		From("reports").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("id DESC").
		Offset(uint64(offset))
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed building report list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed listing reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *report)
	}
	return reports, total, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var fieldIDs, filters, groupBy, orderBy []byte
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.OwnerID,
		&fieldIDs, &filters, &groupBy, &orderBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed scanning report: %w", err)
	}

	if err := decodeJSON(fieldIDs, &r.FieldIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(filters, &r.Filters); err != nil {
		return nil, err
	}
	if err := decodeJSON(groupBy, &r.GroupBy); err != nil {
		return nil, err
	}
	if err := decodeJSON(orderBy, &r.OrderBy); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeReportLists(report *models.Report) ([]byte, []byte, []byte, []byte, error) {
	fieldIDs, err := json.Marshal(report.FieldIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed encoding field ids: %w", err)
	}
	filters, err := encodeJSON(report.Filters)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	groupBy, err := encodeJSON(report.GroupBy)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	orderBy, err := encodeJSON(report.OrderBy)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return fieldIDs, filters, groupBy, orderBy, nil
}

// encodeJSON marshals v, mapping empty values to SQL NULL
func encodeJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed encoding json column: %w", err)
	}
	if string(data) == "null" || string(data) == "[]" || string(data) == "{}" {
		return nil, nil
	}
	return data, nil
}

// decodeJSON unmarshals a nullable JSONB column
func decodeJSON(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed decoding json column: %w", err)
	}
	return nil
}

// requireRow converts a zero-row write into a not found error
func requireRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed reading affected rows: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError(resource)
	}
	return nil
}
