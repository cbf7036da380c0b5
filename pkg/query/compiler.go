package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Compiler limits. LIMIT is clamped, IN payloads are rejected: an
// oversized IN list multiplies parse and plan cost on the database side,
// so it fails loudly instead of being silently truncated.
const (
	MaxInValues = 100
	MaxLimit    = 10000
)

// Compiler emits parameterized SELECT and COUNT statements from a query
// request plus its resolved metadata. Identifiers (table and column names)
// come only from the metadata catalog; every user-supplied value is bound
// as a query parameter.
type Compiler struct {
	builder sq.StatementBuilderType
	log     logger.Logger
}

// NewCompiler creates a query compiler using dollar placeholders
func NewCompiler() *Compiler {
	return &Compiler{
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log:     logger.Default(),
	}
}

// Compile builds the full SELECT statement for the request
func (c *Compiler) Compile(meta *models.ResolvedMetadata, req models.QueryRequest) (*models.CompiledQuery, error) {
	return c.build(meta, req, false)
}

// CompileCount builds the pagination-count variant: identical FROM, JOIN
// and WHERE, with the select list replaced by COUNT(*) and no grouping,
// ordering or limits.
func (c *Compiler) CompileCount(meta *models.ResolvedMetadata, req models.QueryRequest) (*models.CompiledQuery, error) {
	return c.build(meta, req, true)
}

func (c *Compiler) build(meta *models.ResolvedMetadata, req models.QueryRequest, countOnly bool) (*models.CompiledQuery, error) {
	if len(req.FieldIDs) == 0 {
		return nil, domain.NewValidationError("query requires at least one field")
	}

	for _, id := range req.AllFieldIDs() {
		if _, ok := meta.Fields[id]; !ok {
			return nil, domain.NewUnknownFieldError(id)
		}
	}

	groupBy := make(map[int]bool, len(req.GroupBy))
	for _, id := range req.GroupBy {
		groupBy[id] = true
	}

	columns := make(map[int]string, len(meta.Fields))
	for id := range meta.Fields {
		columns[id] = meta.FieldColumn(id)
	}
	formulas := NewFormulaCompiler(columns)

	base := meta.Fields[req.FieldIDs[0]].TableID
	requiredTables := requiredTableIDs(meta, req)
	plan, err := PlanJoins(meta, base, requiredTables)
	if err != nil {
		return nil, err
	}

	var builder sq.SelectBuilder
	if countOnly {
		builder = c.builder.Select("COUNT(*)")
	} else {
		builder = c.builder.Select()
		for _, id := range req.FieldIDs {
			column, err := c.selectColumn(meta, formulas, id, groupBy[id])
			if err != nil {
				return nil, err
			}
			builder = builder.Column(column)
		}
	}

	builder = builder.From(plan.BaseTable.QualifiedName())
	for _, step := range plan.Steps {
		builder = builder.JoinClause(joinKeyword(step.JoinType) + " " + step.Clause())
	}
	// Unreachable tables degrade to a cross join instead of failing; the
	// legacy engine behaved this way and saved reports depend on it.
	if len(plan.Unjoined) > 0 {
		c.log.Warn("no join path to some tables, degrading to cross join",
			"plan", describePlan(plan),
			"unjoined_tables", len(plan.Unjoined))
	}
	for _, t := range plan.Unjoined {
		builder = builder.CrossJoin(t.QualifiedName())
	}

	for _, filter := range req.Filters {
		pred, err := c.predicate(meta.FieldColumn(filter.FieldID), filter)
		if err != nil {
			return nil, err
		}
		builder = builder.Where(pred)
	}

	if !countOnly {
		for _, id := range req.GroupBy {
			builder = builder.GroupBy(meta.FieldColumn(id))
		}

		for _, having := range req.Having {
			pred, err := c.havingPredicate(meta, having)
			if err != nil {
				return nil, err
			}
			builder = builder.Having(pred)
		}

		for _, order := range req.OrderBy {
			expr, err := c.orderExpr(meta, order.FieldID, groupBy[order.FieldID])
			if err != nil {
				return nil, err
			}
			if order.Desc {
				expr += " DESC"
			}
			builder = builder.OrderBy(expr)
		}

		limit := req.Limit
		if limit <= 0 || limit > MaxLimit {
			limit = MaxLimit
		}
		builder = builder.Limit(uint64(limit))

		if req.Offset > 0 {
			builder = builder.Offset(uint64(req.Offset))
		}
	}

	sqlText, args, err := builder.ToSql()
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to render query: %w", err))
	}

	return &models.CompiledQuery{SQL: sqlText, Args: args}, nil
}

// selectColumn renders one select-list entry. Dimensions pass through;
// measures are wrapped in the field's default aggregation unless the field
// is also grouped by, which makes it a dimension for this query.
func (c *Compiler) selectColumn(meta *models.ResolvedMetadata, formulas *FormulaCompiler, fieldID int, grouped bool) (interface{}, error) {
	field := meta.Fields[fieldID]
	alias := field.ColumnName

	if field.IsCalculated {
		node, err := ParseFormula(field.CalculationFormula)
		if err != nil {
			return nil, err
		}
		expr, args, err := formulas.Compile(node)
		if err != nil {
			return nil, err
		}
		return sq.Expr(expr+" AS "+alias, args...), nil
	}

	column := meta.FieldColumn(fieldID)
	if field.IsDimension || grouped || field.DefaultAggregation == "" {
		return column + " AS " + alias, nil
	}

	agg, err := aggregateExpr(field.DefaultAggregation, column)
	if err != nil {
		return nil, err
	}
	return agg + " AS " + string(field.DefaultAggregation) + "_" + alias, nil
}

// predicate builds one parameterized WHERE condition
func (c *Compiler) predicate(column string, filter models.QueryFilter) (sq.Sqlizer, error) {
	switch filter.Operator {
	case models.OpEq:
		return sq.Eq{column: filter.Value}, nil
	case models.OpNe:
		return sq.NotEq{column: filter.Value}, nil
	case models.OpLt:
		return sq.Lt{column: filter.Value}, nil
	case models.OpGt:
		return sq.Gt{column: filter.Value}, nil
	case models.OpLte:
		return sq.LtOrEq{column: filter.Value}, nil
	case models.OpGte:
		return sq.GtOrEq{column: filter.Value}, nil
	case models.OpIn, models.OpNotIn:
		values, err := filterValues(filter)
		if err != nil {
			return nil, err
		}
		if filter.Operator == models.OpIn {
			return sq.Eq{column: values}, nil
		}
		return sq.NotEq{column: values}, nil
	case models.OpBetween:
		values, ok := filter.Value.([]interface{})
		if !ok || len(values) != 2 {
			return nil, domain.NewValidationError("between filter requires exactly 2 values")
		}
		return sq.Expr(column+" BETWEEN ? AND ?", values[0], values[1]), nil
	case models.OpLike, models.OpNotLike:
		text, ok := filter.Value.(string)
		if !ok {
			return nil, domain.NewValidationError("like filter requires a string value")
		}
		pattern := "%" + text + "%"
		if filter.Operator == models.OpLike {
			return sq.Like{column: pattern}, nil
		}
		return sq.NotLike{column: pattern}, nil
	case models.OpIsNull:
		return sq.Eq{column: nil}, nil
	case models.OpIsNotNull:
		return sq.NotEq{column: nil}, nil
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("operator %q is not supported", filter.Operator))
	}
}

// filterValues validates an IN/NOT IN payload
func filterValues(filter models.QueryFilter) ([]interface{}, error) {
	values, ok := filter.Value.([]interface{})
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("%s filter requires a list of values", filter.Operator))
	}
	if len(values) == 0 {
		return nil, domain.NewValidationError(fmt.Sprintf("%s filter requires at least one value", filter.Operator))
	}
	if len(values) > MaxInValues {
		return nil, domain.NewFilterTooLargeError(len(values), MaxInValues)
	}
	return values, nil
}

// havingPredicate builds one aggregate-level predicate
func (c *Compiler) havingPredicate(meta *models.ResolvedMetadata, having models.HavingCondition) (sq.Sqlizer, error) {
	field := meta.Fields[having.FieldID]

	agg := having.Aggregation
	if agg == "" {
		agg = field.DefaultAggregation
	}
	if agg == "" {
		return nil, domain.NewValidationError(fmt.Sprintf("having condition on field %d requires an aggregation", having.FieldID))
	}

	expr, err := aggregateExpr(agg, meta.FieldColumn(having.FieldID))
	if err != nil {
		return nil, err
	}

	op, ok := comparisonSQL(having.Operator)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("operator %q is not supported in having", having.Operator))
	}

	return sq.Expr(expr+" "+op+" ?", having.Value), nil
}

// orderExpr renders one ORDER BY expression; measures not in group-by sort
// by their aggregated value.
func (c *Compiler) orderExpr(meta *models.ResolvedMetadata, fieldID int, grouped bool) (string, error) {
	field := meta.Fields[fieldID]
	column := meta.FieldColumn(fieldID)

	if field.IsDimension || grouped || field.DefaultAggregation == "" {
		return column, nil
	}
	return aggregateExpr(field.DefaultAggregation, column)
}

// aggregateExpr renders an aggregate call over a metadata column
func aggregateExpr(agg models.Aggregation, column string) (string, error) {
	switch agg {
	case models.AggregationSum:
		return "SUM(" + column + ")", nil
	case models.AggregationAvg:
		return "AVG(" + column + ")", nil
	case models.AggregationCount:
		return "COUNT(" + column + ")", nil
	case models.AggregationCountDistinct:
		return "COUNT(DISTINCT " + column + ")", nil
	case models.AggregationMin:
		return "MIN(" + column + ")", nil
	case models.AggregationMax:
		return "MAX(" + column + ")", nil
	case models.AggregationStddev:
		return "STDDEV(" + column + ")", nil
	case models.AggregationVariance:
		return "VARIANCE(" + column + ")", nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("aggregation %q is not supported", agg))
	}
}

// requiredTableIDs returns every table the request touches, base table's
// field first, preserving first-reference order.
func requiredTableIDs(meta *models.ResolvedMetadata, req models.QueryRequest) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, fieldID := range req.AllFieldIDs() {
		tableID := meta.Fields[fieldID].TableID
		if !seen[tableID] {
			seen[tableID] = true
			ids = append(ids, tableID)
		}
	}
	return ids
}

// comparisonSQL maps a having operator to its SQL form
func comparisonSQL(op string) (string, bool) {
	switch op {
	case models.OpEq:
		return "=", true
	case models.OpNe:
		return "<>", true
	case models.OpLt, models.OpGt, models.OpLte, models.OpGte:
		return op, true
	default:
		return "", false
	}
}

// describePlan is a debug helper used by logging callers
func describePlan(plan *JoinPlan) string {
	return strings.TrimSpace(plan.describe())
}
