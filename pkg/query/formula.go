package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// NodeKind tags one variant of the formula expression tree
type NodeKind string

const (
	NodeField       NodeKind = "field"
	NodeLiteral     NodeKind = "literal"
	NodeOperator    NodeKind = "operator"
	NodeFunction    NodeKind = "function"
	NodeAggregation NodeKind = "aggregation"
	NodeCase        NodeKind = "case"
)

// FormulaNode is one node of a structured formula. Which fields are
// meaningful depends on Kind; everything else is ignored.
type FormulaNode struct {
	Kind NodeKind `json:"kind"`

	// NodeField
	FieldID int `json:"field_id,omitempty"`

	// NodeLiteral
	Value interface{} `json:"value,omitempty"`
	Cast  string      `json:"cast,omitempty"`

	// NodeOperator
	Operator string        `json:"operator,omitempty"`
	Operands []FormulaNode `json:"operands,omitempty"`

	// NodeFunction
	Function string        `json:"function,omitempty"`
	Args     []FormulaNode `json:"args,omitempty"`

	// NodeAggregation
	Aggregation models.Aggregation `json:"aggregation,omitempty"`
	Arg         *FormulaNode       `json:"arg,omitempty"`
	Filter      *FormulaNode       `json:"filter,omitempty"`

	// NodeCase
	Whens []WhenClause `json:"whens,omitempty"`
	Else  *FormulaNode `json:"else,omitempty"`
}

// WhenClause is one ordered condition→result pair of a case expression
type WhenClause struct {
	When FormulaNode `json:"when"`
	Then FormulaNode `json:"then"`
}

// Formula compilation limits
const (
	MaxFormulaDepth = 50
	maxInOperands   = 100
)

// operator arity classes; anything not listed is rejected
var unaryOperators = map[string]string{
	"not":         "NOT",
	"neg":         "-",
	"is null":     "IS NULL",
	"is not null": "IS NOT NULL",
}

var binaryOperators = map[string]string{
	"+": "+", "-": "-", "*": "*", "/": "/", "%": "%",
	"=": "=", "!=": "<>", "<": "<", ">": ">", "<=": "<=", ">=": ">=",
	"and": "AND", "or": "OR",
	"like": "LIKE", "not like": "NOT LIKE",
}

// functionArity maps each allow-listed function to its min/max argument
// count (max -1 means unbounded).
var functionArity = map[string][2]int{
	"abs":       {1, 1},
	"round":     {1, 2},
	"floor":     {1, 1},
	"ceiling":   {1, 1},
	"length":    {1, 1},
	"lower":     {1, 1},
	"upper":     {1, 1},
	"trim":      {1, 1},
	"concat":    {2, -1},
	"substring": {2, 3},
	"coalesce":  {2, -1},
	"cast":      {2, 2},
	"date_part": {2, 2},
	"date_trunc": {2, 2},
	"now":       {0, 0},
}

// castTypes is the allow-list of CAST target types; the type name is
// rendered into SQL so it must never come from free text.
var castTypes = map[string]string{
	"int": "INTEGER", "integer": "INTEGER", "bigint": "BIGINT",
	"float": "DOUBLE PRECISION", "double": "DOUBLE PRECISION",
	"numeric": "NUMERIC", "text": "TEXT", "varchar": "VARCHAR",
	"date": "DATE", "timestamp": "TIMESTAMP", "boolean": "BOOLEAN",
}

var aggregationSQL = map[models.Aggregation]string{
	models.AggregationSum:           "SUM",
	models.AggregationAvg:           "AVG",
	models.AggregationCount:         "COUNT",
	models.AggregationCountDistinct: "COUNT",
	models.AggregationMin:           "MIN",
	models.AggregationMax:           "MAX",
	models.AggregationStddev:        "STDDEV",
	models.AggregationVariance:      "VARIANCE",
}

// FormulaCompiler turns a structured formula tree into a parameterized SQL
// fragment. Field references resolve through the caller-supplied field →
// column mapping; literal values are always bound as parameters, so no
// user-controlled text ever reaches the SQL string.
type FormulaCompiler struct {
	columns map[int]string
}

// NewFormulaCompiler creates a compiler over the given field→column map
func NewFormulaCompiler(columns map[int]string) *FormulaCompiler {
	return &FormulaCompiler{columns: columns}
}

// ParseFormula decodes a stored calculation formula
func ParseFormula(raw json.RawMessage) (*FormulaNode, error) {
	var node FormulaNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, domain.NewValidationError("calculation formula is not valid JSON")
	}
	return &node, nil
}

// Compile validates and compiles the tree, returning the SQL fragment with
// `?` placeholders and its bound arguments. All validation (operand
// counts, function arity, field resolution, depth) happens here, at parse
// time, never at execution time.
func (c *FormulaCompiler) Compile(node *FormulaNode) (string, []interface{}, error) {
	return c.compile(node, 1)
}

func (c *FormulaCompiler) compile(node *FormulaNode, depth int) (string, []interface{}, error) {
	if depth > MaxFormulaDepth {
		return "", nil, domain.NewFormulaTooComplexError(MaxFormulaDepth)
	}
	if node == nil {
		return "", nil, domain.NewValidationError("formula node is missing")
	}

	switch node.Kind {
	case NodeField:
		return c.compileField(node)
	case NodeLiteral:
		return c.compileLiteral(node)
	case NodeOperator:
		return c.compileOperator(node, depth)
	case NodeFunction:
		return c.compileFunction(node, depth)
	case NodeAggregation:
		return c.compileAggregation(node, depth)
	case NodeCase:
		return c.compileCase(node, depth)
	default:
		return "", nil, domain.NewValidationError(fmt.Sprintf("unknown formula node kind %q", node.Kind))
	}
}

func (c *FormulaCompiler) compileField(node *FormulaNode) (string, []interface{}, error) {
	column, ok := c.columns[node.FieldID]
	if !ok {
		return "", nil, domain.NewUnknownFieldError(node.FieldID)
	}
	return column, nil, nil
}

func (c *FormulaCompiler) compileLiteral(node *FormulaNode) (string, []interface{}, error) {
	if node.Cast != "" {
		sqlType, ok := castTypes[strings.ToLower(node.Cast)]
		if !ok {
			return "", nil, domain.NewValidationError(fmt.Sprintf("cast type %q is not allowed", node.Cast))
		}
		return "CAST(? AS " + sqlType + ")", []interface{}{node.Value}, nil
	}
	return "?", []interface{}{node.Value}, nil
}

func (c *FormulaCompiler) compileOperator(node *FormulaNode, depth int) (string, []interface{}, error) {
	op := strings.ToLower(node.Operator)

	if sqlOp, ok := unaryOperators[op]; ok {
		if len(node.Operands) != 1 {
			return "", nil, domain.NewValidationError(fmt.Sprintf("operator %q takes exactly 1 operand, got %d", op, len(node.Operands)))
		}
		operand, args, err := c.compile(&node.Operands[0], depth+1)
		if err != nil {
			return "", nil, err
		}
		if op == "is null" || op == "is not null" {
			return "(" + operand + " " + sqlOp + ")", args, nil
		}
		return "(" + sqlOp + " " + operand + ")", args, nil
	}

	if op == "in" {
		return c.compileIn(node, depth)
	}

	if sqlOp, ok := binaryOperators[op]; ok {
		if len(node.Operands) != 2 {
			return "", nil, domain.NewValidationError(fmt.Sprintf("operator %q takes exactly 2 operands, got %d", op, len(node.Operands)))
		}
		left, leftArgs, err := c.compile(&node.Operands[0], depth+1)
		if err != nil {
			return "", nil, err
		}
		right, rightArgs, err := c.compile(&node.Operands[1], depth+1)
		if err != nil {
			return "", nil, err
		}
		return "(" + left + " " + sqlOp + " " + right + ")", append(leftArgs, rightArgs...), nil
	}

	return "", nil, domain.NewValidationError(fmt.Sprintf("operator %q is not allowed", node.Operator))
}

func (c *FormulaCompiler) compileIn(node *FormulaNode, depth int) (string, []interface{}, error) {
	if len(node.Operands) < 2 {
		return "", nil, domain.NewValidationError("operator \"in\" takes at least 2 operands")
	}
	if len(node.Operands) > maxInOperands {
		return "", nil, domain.NewFilterTooLargeError(len(node.Operands)-1, maxInOperands-1)
	}

	needle, args, err := c.compile(&node.Operands[0], depth+1)
	if err != nil {
		return "", nil, err
	}

	members := make([]string, 0, len(node.Operands)-1)
	for i := 1; i < len(node.Operands); i++ {
		expr, memberArgs, err := c.compile(&node.Operands[i], depth+1)
		if err != nil {
			return "", nil, err
		}
		members = append(members, expr)
		args = append(args, memberArgs...)
	}

	return "(" + needle + " IN (" + strings.Join(members, ", ") + "))", args, nil
}

func (c *FormulaCompiler) compileFunction(node *FormulaNode, depth int) (string, []interface{}, error) {
	name := strings.ToLower(node.Function)
	arity, ok := functionArity[name]
	if !ok {
		return "", nil, domain.NewValidationError(fmt.Sprintf("function %q is not allowed", node.Function))
	}
	if len(node.Args) < arity[0] || (arity[1] >= 0 && len(node.Args) > arity[1]) {
		return "", nil, domain.NewValidationError(fmt.Sprintf("function %q called with %d arguments", name, len(node.Args)))
	}

	// CAST renders its type argument as an identifier, not a parameter
	if name == "cast" {
		typeNode := node.Args[1]
		typeName, _ := typeNode.Value.(string)
		sqlType, ok := castTypes[strings.ToLower(typeName)]
		if !ok {
			return "", nil, domain.NewValidationError(fmt.Sprintf("cast type %q is not allowed", typeName))
		}
		expr, args, err := c.compile(&node.Args[0], depth+1)
		if err != nil {
			return "", nil, err
		}
		return "CAST(" + expr + " AS " + sqlType + ")", args, nil
	}

	var parts []string
	var args []interface{}
	for i := range node.Args {
		expr, argValues, err := c.compile(&node.Args[i], depth+1)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr)
		args = append(args, argValues...)
	}

	switch name {
	case "ceiling":
		return "CEILING(" + strings.Join(parts, ", ") + ")", args, nil
	case "now":
		return "NOW()", nil, nil
	default:
		return strings.ToUpper(name) + "(" + strings.Join(parts, ", ") + ")", args, nil
	}
}

func (c *FormulaCompiler) compileAggregation(node *FormulaNode, depth int) (string, []interface{}, error) {
	fn, ok := aggregationSQL[node.Aggregation]
	if !ok {
		return "", nil, domain.NewValidationError(fmt.Sprintf("aggregation %q is not allowed", node.Aggregation))
	}

	inner := "*"
	var args []interface{}
	if node.Arg != nil {
		expr, innerArgs, err := c.compile(node.Arg, depth+1)
		if err != nil {
			return "", nil, err
		}
		inner = expr
		args = innerArgs
	} else if node.Aggregation != models.AggregationCount {
		return "", nil, domain.NewValidationError(fmt.Sprintf("aggregation %q requires an argument", node.Aggregation))
	}

	if node.Aggregation == models.AggregationCountDistinct {
		inner = "DISTINCT " + inner
	}

	expr := fn + "(" + inner + ")"

	if node.Filter != nil {
		cond, filterArgs, err := c.compile(node.Filter, depth+1)
		if err != nil {
			return "", nil, err
		}
		expr += " FILTER (WHERE " + cond + ")"
		args = append(args, filterArgs...)
	}

	return expr, args, nil
}

func (c *FormulaCompiler) compileCase(node *FormulaNode, depth int) (string, []interface{}, error) {
	if len(node.Whens) == 0 {
		return "", nil, domain.NewValidationError("case expression requires at least one when clause")
	}

	var sb strings.Builder
	var args []interface{}
	sb.WriteString("CASE")

	for i := range node.Whens {
		cond, condArgs, err := c.compile(&node.Whens[i].When, depth+1)
		if err != nil {
			return "", nil, err
		}
		result, resultArgs, err := c.compile(&node.Whens[i].Then, depth+1)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHEN " + cond + " THEN " + result)
		args = append(args, condArgs...)
		args = append(args, resultArgs...)
	}

	if node.Else != nil {
		elseExpr, elseArgs, err := c.compile(node.Else, depth+1)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" ELSE " + elseExpr)
		args = append(args, elseArgs...)
	}

	sb.WriteString(" END")
	return sb.String(), args, nil
}
