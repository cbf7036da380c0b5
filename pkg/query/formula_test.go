package query

import (
	"testing"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFormulaCompiler() *FormulaCompiler {
	return NewFormulaCompiler(map[int]string{
		1: "orders.amount",
		2: "orders.quantity",
	})
}

// nestedNeg builds a chain of unary negations with the given total tree
// depth, literal leaf included.
func nestedNeg(depth int) *FormulaNode {
	node := FormulaNode{Kind: NodeLiteral, Value: 1}
	for i := 1; i < depth; i++ {
		node = FormulaNode{Kind: NodeOperator, Operator: "neg", Operands: []FormulaNode{node}}
	}
	return &node
}

func TestFormulaArithmetic(t *testing.T) {
	c := testFormulaCompiler()

	expr, args, err := c.Compile(&FormulaNode{
		Kind: NodeOperator, Operator: "*",
		Operands: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeLiteral, Value: 0.21},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "(orders.amount * ?)", expr)
	assert.Equal(t, []interface{}{0.21}, args)
}

func TestFormulaLiteralsAreParameters(t *testing.T) {
	c := testFormulaCompiler()
	hostile := "'; DELETE FROM orders; --"

	expr, args, err := c.Compile(&FormulaNode{
		Kind: NodeOperator, Operator: "=",
		Operands: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeLiteral, Value: hostile},
		},
	})
	require.NoError(t, err)

	assert.NotContains(t, expr, hostile)
	assert.Equal(t, []interface{}{hostile}, args)
}

func TestFormulaDepthBoundary(t *testing.T) {
	c := testFormulaCompiler()

	_, _, err := c.Compile(nestedNeg(MaxFormulaDepth))
	assert.NoError(t, err, "depth at the limit should compile")

	_, _, err = c.Compile(nestedNeg(MaxFormulaDepth + 1))
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeFormulaTooComplex, domain.GetErrorCode(err))
}

func TestFormulaUnknownFunctionRejected(t *testing.T) {
	c := testFormulaCompiler()

	_, _, err := c.Compile(&FormulaNode{
		Kind: NodeFunction, Function: "pg_sleep",
		Args: []FormulaNode{{Kind: NodeLiteral, Value: 10}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeValidation, domain.GetErrorCode(err))
}

func TestFormulaUnknownOperatorRejected(t *testing.T) {
	c := testFormulaCompiler()

	_, _, err := c.Compile(&FormulaNode{
		Kind: NodeOperator, Operator: "||",
		Operands: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeLiteral, Value: "x"},
		},
	})
	assert.Error(t, err)
}

func TestFormulaCastAllowList(t *testing.T) {
	c := testFormulaCompiler()

	expr, _, err := c.Compile(&FormulaNode{
		Kind: NodeFunction, Function: "cast",
		Args: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeLiteral, Value: "numeric"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "CAST(orders.amount AS NUMERIC)", expr)

	_, _, err = c.Compile(&FormulaNode{
		Kind: NodeFunction, Function: "cast",
		Args: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeLiteral, Value: "regclass"},
		},
	})
	assert.Error(t, err, "cast types outside the allow-list must fail")
}

func TestFormulaFunctionArity(t *testing.T) {
	c := testFormulaCompiler()

	_, _, err := c.Compile(&FormulaNode{
		Kind: NodeFunction, Function: "abs",
		Args: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeField, FieldID: 2},
		},
	})
	assert.Error(t, err)

	expr, _, err := c.Compile(&FormulaNode{
		Kind: NodeFunction, Function: "round",
		Args: []FormulaNode{
			{Kind: NodeField, FieldID: 1},
			{Kind: NodeLiteral, Value: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ROUND(orders.amount, ?)", expr)
}

func TestFormulaAggregation(t *testing.T) {
	c := testFormulaCompiler()

	expr, args, err := c.Compile(&FormulaNode{
		Kind:        NodeAggregation,
		Aggregation: models.AggregationSum,
		Arg:         &FormulaNode{Kind: NodeField, FieldID: 1},
		Filter: &FormulaNode{
			Kind: NodeOperator, Operator: ">",
			Operands: []FormulaNode{
				{Kind: NodeField, FieldID: 2},
				{Kind: NodeLiteral, Value: 0},
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "SUM(orders.amount) FILTER (WHERE (orders.quantity > ?))", expr)
	assert.Equal(t, []interface{}{0}, args)
}

func TestFormulaCountVariants(t *testing.T) {
	c := testFormulaCompiler()

	expr, _, err := c.Compile(&FormulaNode{Kind: NodeAggregation, Aggregation: models.AggregationCount})
	require.NoError(t, err)
	assert.Equal(t, "COUNT(*)", expr)

	expr, _, err = c.Compile(&FormulaNode{
		Kind:        NodeAggregation,
		Aggregation: models.AggregationCountDistinct,
		Arg:         &FormulaNode{Kind: NodeField, FieldID: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "COUNT(DISTINCT orders.amount)", expr)
}

func TestFormulaCase(t *testing.T) {
	c := testFormulaCompiler()

	expr, args, err := c.Compile(&FormulaNode{
		Kind: NodeCase,
		Whens: []WhenClause{{
			When: FormulaNode{
				Kind: NodeOperator, Operator: ">",
				Operands: []FormulaNode{
					{Kind: NodeField, FieldID: 1},
					{Kind: NodeLiteral, Value: 100},
				},
			},
			Then: FormulaNode{Kind: NodeLiteral, Value: "large"},
		}},
		Else: &FormulaNode{Kind: NodeLiteral, Value: "small"},
	})
	require.NoError(t, err)

	assert.Equal(t, "CASE WHEN (orders.amount > ?) THEN ? ELSE ? END", expr)
	assert.Equal(t, []interface{}{100, "large", "small"}, args)
}

func TestFormulaInOperandBounds(t *testing.T) {
	c := testFormulaCompiler()

	operands := []FormulaNode{{Kind: NodeField, FieldID: 1}}
	for i := 0; i < maxInOperands-1; i++ {
		operands = append(operands, FormulaNode{Kind: NodeLiteral, Value: i})
	}

	_, _, err := c.Compile(&FormulaNode{Kind: NodeOperator, Operator: "in", Operands: operands})
	assert.NoError(t, err)

	operands = append(operands, FormulaNode{Kind: NodeLiteral, Value: -1})
	_, _, err = c.Compile(&FormulaNode{Kind: NodeOperator, Operator: "in", Operands: operands})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeFilterTooLarge, domain.GetErrorCode(err))
}

func TestFormulaUnknownFieldInTree(t *testing.T) {
	c := testFormulaCompiler()

	_, _, err := c.Compile(&FormulaNode{Kind: NodeField, FieldID: 404})
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeUnknownField, domain.GetErrorCode(err))
}

func TestParseFormulaRejectsGarbage(t *testing.T) {
	_, err := ParseFormula([]byte("not json"))
	assert.Error(t, err)
}
