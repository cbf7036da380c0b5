package models

import "encoding/json"

// Aggregation is a SQL aggregate function applied to a measure column
type Aggregation string

const (
	AggregationSum           Aggregation = "sum"
	AggregationAvg           Aggregation = "avg"
	AggregationCount         Aggregation = "count"
	AggregationCountDistinct Aggregation = "count_distinct"
	AggregationMin           Aggregation = "min"
	AggregationMax           Aggregation = "max"
	AggregationStddev        Aggregation = "stddev"
	AggregationVariance      Aggregation = "variance"
)

// JoinType is the SQL join used to connect two tables
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
)

// Field is a queryable column registered in the metadata catalog.
// The ID is immutable once reports reference it.
type Field struct {
	ID                 int             `json:"id"`
	ColumnName         string          `json:"column_name"`
	DisplayName        string          `json:"display_name"`
	TableID            int             `json:"table_id"`
	IsDimension        bool            `json:"is_dimension"`
	DefaultAggregation Aggregation     `json:"default_aggregation,omitempty"`
	IsCalculated       bool            `json:"is_calculated"`
	CalculationFormula json.RawMessage `json:"calculation_formula,omitempty"`

	// Security attributes are owned by the RBAC subsystem; they are carried
	// here so access filtering can happen before query compilation.
	IsRestricted        bool     `json:"is_restricted"`
	RequiredRole        string   `json:"required_role,omitempty"`
	RequiredPermissions []string `json:"required_permissions,omitempty"`
}

// DataTable is a physical table a field belongs to
type DataTable struct {
	ID           int    `json:"id"`
	TableName    string `json:"table_name"`
	SchemaName   string `json:"schema_name,omitempty"`
	DataSourceID int    `json:"data_source_id"`
	Alias        string `json:"alias,omitempty"`
}

// QualifiedName returns the schema-qualified table name
func (t DataTable) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// FieldRelationship links two fields across tables for join planning
type FieldRelationship struct {
	ID            int      `json:"id"`
	SourceFieldID int      `json:"source_field_id"`
	TargetFieldID int      `json:"target_field_id"`
	JoinType      JoinType `json:"join_type"`
}

// ResolvedMetadata is everything the query compiler needs for one request:
// the requested fields, every table they belong to and every relationship
// touching any of them (plus fields pulled in only by relationships).
type ResolvedMetadata struct {
	Fields        map[int]Field
	Tables        map[int]DataTable
	Relationships []FieldRelationship
}

// FieldColumn returns the fully qualified column for a field, or "" if
// either the field or its table is unknown.
func (m *ResolvedMetadata) FieldColumn(fieldID int) string {
	f, ok := m.Fields[fieldID]
	if !ok {
		return ""
	}
	t, ok := m.Tables[f.TableID]
	if !ok {
		return ""
	}
	return t.QualifiedName() + "." + f.ColumnName
}
