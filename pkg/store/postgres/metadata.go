package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jordanlanch/reportdb/pkg/models"
)

// psql builds queries with postgres placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// MetadataStore reads the metadata catalog from postgres. All lookups are
// batched; one request resolves in at most three round trips.
type MetadataStore struct {
	db *sql.DB
}

// NewMetadataStore creates a postgres metadata store
func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

// FieldsByIDs returns all fields among ids in one query
func (s *MetadataStore) FieldsByIDs(ctx context.Context, ids []int) ([]models.Field, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := psql.
		Select("id", "column_name", "display_name", "table_id", "is_dimension",
			"default_aggregation", "is_calculated", "calculation_formula",
			"is_restricted", "required_role", "required_permissions").
		From("fields").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building fields query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed querying fields: %w", err)
	}
	defer rows.Close()

	var fields []models.Field
	for rows.Next() {
		var f models.Field
		var formula, perms []byte
		if err := rows.Scan(&f.ID, &f.ColumnName, &f.DisplayName, &f.TableID,
			&f.IsDimension, &f.DefaultAggregation, &f.IsCalculated, &formula,
			&f.IsRestricted, &f.RequiredRole, &perms); err != nil {
			return nil, fmt.Errorf("failed scanning field: %w", err)
		}
		if len(formula) > 0 {
			f.CalculationFormula = json.RawMessage(formula)
		}
		if len(perms) > 0 {
			if err := json.Unmarshal(perms, &f.RequiredPermissions); err != nil {
				return nil, fmt.Errorf("failed decoding field permissions: %w", err)
			}
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// TablesByIDs returns all tables among ids in one query
func (s *MetadataStore) TablesByIDs(ctx context.Context, ids []int) ([]models.DataTable, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := psql.
		Select("id", "table_name", "schema_name", "data_source_id", "alias").
		From("data_tables").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building tables query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed querying tables: %w", err)
	}
	defer rows.Close()

	var tables []models.DataTable
	for rows.Next() {
		var t models.DataTable
		if err := rows.Scan(&t.ID, &t.TableName, &t.SchemaName, &t.DataSourceID, &t.Alias); err != nil {
			return nil, fmt.Errorf("failed scanning table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// RelationshipsForFields returns every relationship touching any of
// fieldIDs, in id order so join planning stays deterministic.
func (s *MetadataStore) RelationshipsForFields(ctx context.Context, fieldIDs []int) ([]models.FieldRelationship, error) {
	if len(fieldIDs) == 0 {
		return nil, nil
	}

	query, args, err := psql.
		Select("id", "source_field_id", "target_field_id", "join_type").
		From("field_relationships").
		Where(sq.Or{
			sq.Eq{"source_field_id": fieldIDs},
			sq.Eq{"target_field_id": fieldIDs},
		}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed building relationships query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed querying relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.FieldRelationship
	for rows.Next() {
		var r models.FieldRelationship
		if err := rows.Scan(&r.ID, &r.SourceFieldID, &r.TargetFieldID, &r.JoinType); err != nil {
			return nil, fmt.Errorf("failed scanning relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
