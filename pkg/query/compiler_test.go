package query

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoTableMeta builds a catalog with orders and customers joined via
// orders.customer_id = customers.id.
func twoTableMeta() *models.ResolvedMetadata {
	return &models.ResolvedMetadata{
		Fields: map[int]models.Field{
			1: {ID: 1, ColumnName: "status", TableID: 1, IsDimension: true},
			2: {ID: 2, ColumnName: "amount", TableID: 1, DefaultAggregation: models.AggregationSum},
			3: {ID: 3, ColumnName: "name", TableID: 2, IsDimension: true},
			4: {ID: 4, ColumnName: "customer_id", TableID: 1, IsDimension: true},
			5: {ID: 5, ColumnName: "id", TableID: 2, IsDimension: true},
		},
		Tables: map[int]models.DataTable{
			1: {ID: 1, TableName: "orders"},
			2: {ID: 2, TableName: "customers"},
		},
		Relationships: []models.FieldRelationship{
			{ID: 1, SourceFieldID: 4, TargetFieldID: 5, JoinType: models.JoinLeft},
		},
	}
}

func TestCompileSingleTable(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1, 2},
		GroupBy:  []int{1},
	})
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "orders.status AS status")
	assert.Contains(t, compiled.SQL, "SUM(orders.amount) AS sum_amount")
	assert.Contains(t, compiled.SQL, "GROUP BY orders.status")
	assert.NotContains(t, compiled.SQL, "JOIN")
}

func TestCompileJoinsTwoTables(t *testing.T) {
	// Fields from two tables connected by one relationship produce exactly
	// one join using that relationship's columns.
	meta := twoTableMeta()
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1, 3},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(compiled.SQL, "JOIN"))
	assert.Contains(t, compiled.SQL, "LEFT JOIN customers ON orders.customer_id = customers.id")
}

func TestCompileParameterizesValues(t *testing.T) {
	// SQL metacharacters in filter values must appear only in Args, never
	// in the statement text.
	meta := twoTableMeta()
	compiler := NewCompiler()
	hostile := "a'; DROP TABLE x; --"

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1},
		Filters:  []models.QueryFilter{{FieldID: 1, Operator: models.OpEq, Value: hostile}},
	})
	require.NoError(t, err)

	assert.NotContains(t, compiled.SQL, hostile)
	assert.NotContains(t, compiled.SQL, "DROP TABLE")
	require.Len(t, compiled.Args, 1)
	assert.Equal(t, hostile, compiled.Args[0])
}

func TestCompileInBoundary(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	values := make([]interface{}, 0, 101)
	for i := 0; i < 100; i++ {
		values = append(values, fmt.Sprintf("v%d", i))
	}

	_, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1},
		Filters:  []models.QueryFilter{{FieldID: 1, Operator: models.OpIn, Value: values}},
	})
	assert.NoError(t, err, "100 values should compile")

	values = append(values, "v100")
	_, err = compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1},
		Filters:  []models.QueryFilter{{FieldID: 1, Operator: models.OpIn, Value: values}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeFilterTooLarge, domain.GetErrorCode(err))
}

func TestCompileLikeWrapsWildcards(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1},
		Filters:  []models.QueryFilter{{FieldID: 1, Operator: models.OpLike, Value: "pend"}},
	})
	require.NoError(t, err)

	require.Len(t, compiled.Args, 1)
	assert.Equal(t, "%pend%", compiled.Args[0])
}

func TestCompileUnknownField(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	_, err := compiler.Compile(meta, models.QueryRequest{FieldIDs: []int{99}})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeUnknownField, domain.GetErrorCode(err))
}

func TestCompileLimitClamp(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"over maximum", 50000, "LIMIT 10000"},
		{"zero uses maximum", 0, "LIMIT 10000"},
		{"within bounds", 25, "LIMIT 25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := compiler.Compile(meta, models.QueryRequest{
				FieldIDs: []int{1},
				Limit:    tt.limit,
			})
			require.NoError(t, err)
			assert.Contains(t, compiled.SQL, tt.want)
		})
	}
}

func TestCompileNegativeOffsetIgnored(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1},
		Offset:   -5,
	})
	require.NoError(t, err)
	assert.NotContains(t, compiled.SQL, "OFFSET")
}

func TestCompileCountStripsShape(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	req := models.QueryRequest{
		FieldIDs: []int{1, 3},
		Filters:  []models.QueryFilter{{FieldID: 1, Operator: models.OpEq, Value: "done"}},
		GroupBy:  []int{1},
		OrderBy:  []models.OrderClause{{FieldID: 1}},
		Limit:    10,
	}

	compiled, err := compiler.CompileCount(meta, req)
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "COUNT(*)")
	assert.Contains(t, compiled.SQL, "JOIN")
	assert.Contains(t, compiled.SQL, "WHERE")
	assert.NotContains(t, compiled.SQL, "GROUP BY")
	assert.NotContains(t, compiled.SQL, "ORDER BY")
	assert.NotContains(t, compiled.SQL, "LIMIT")
}

func TestCompileMeasureInGroupByTreatedAsDimension(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{2},
		GroupBy:  []int{2},
	})
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "orders.amount AS amount")
	assert.NotContains(t, compiled.SQL, "SUM(")
}

func TestCompileHaving(t *testing.T) {
	meta := twoTableMeta()
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{
		FieldIDs: []int{1, 2},
		GroupBy:  []int{1},
		Having:   []models.HavingCondition{{FieldID: 2, Operator: models.OpGt, Value: 1000}},
	})
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "HAVING SUM(orders.amount) >")
	assert.Contains(t, compiled.Args, 1000)
}

func TestCompileCalculatedField(t *testing.T) {
	meta := twoTableMeta()
	meta.Fields[6] = models.Field{
		ID: 6, ColumnName: "gross", TableID: 1, IsCalculated: true,
		CalculationFormula: []byte(`{"kind":"operator","operator":"*","operands":[{"kind":"field","field_id":2},{"kind":"literal","value":1.2}]}`),
	}
	compiler := NewCompiler()

	compiled, err := compiler.Compile(meta, models.QueryRequest{FieldIDs: []int{6}})
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "(orders.amount * $1) AS gross")
	assert.Contains(t, compiled.Args, 1.2)
}

type warnRecorder struct {
	warns []string
}

func (r *warnRecorder) Info(msg string, args ...any)   {}
func (r *warnRecorder) Error(msg string, args ...any)  {}
func (r *warnRecorder) Warn(msg string, args ...any)   { r.warns = append(r.warns, msg) }
func (r *warnRecorder) Debug(msg string, args ...any)  {}
func (r *warnRecorder) With(args ...any) logger.Logger { return r }

func TestCompileUnreachableTableCrossJoinsAndWarns(t *testing.T) {
	// Two tables with no relationship between them: the compiler degrades
	// to a cross join and says so in the log.
	meta := &models.ResolvedMetadata{
		Fields: map[int]models.Field{
			1: {ID: 1, ColumnName: "status", TableID: 1, IsDimension: true},
			2: {ID: 2, ColumnName: "region", TableID: 2, IsDimension: true},
		},
		Tables: map[int]models.DataTable{
			1: {ID: 1, TableName: "orders"},
			2: {ID: 2, TableName: "regions"},
		},
	}

	rec := &warnRecorder{}
	compiler := NewCompiler()
	compiler.log = rec

	compiled, err := compiler.Compile(meta, models.QueryRequest{FieldIDs: []int{1, 2}})
	require.NoError(t, err)

	assert.Contains(t, compiled.SQL, "CROSS JOIN regions")
	require.Len(t, rec.warns, 1)
	assert.Contains(t, rec.warns[0], "cross join")
}
