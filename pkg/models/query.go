package models

// Filter operators accepted by the query compiler
const (
	OpEq        = "="
	OpNe        = "!="
	OpLt        = "<"
	OpGt        = ">"
	OpLte       = "<="
	OpGte       = ">="
	OpIn        = "in"
	OpNotIn     = "not in"
	OpBetween   = "between"
	OpLike      = "like"
	OpNotLike   = "not like"
	OpIsNull    = "is null"
	OpIsNotNull = "is not null"
)

// QueryFilter is one WHERE predicate against a metadata field
type QueryFilter struct {
	FieldID  int         `json:"field_id"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// HavingCondition is an aggregate-level predicate. Aggregation defaults to
// the field's default aggregation when empty.
type HavingCondition struct {
	FieldID     int         `json:"field_id"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Operator    string      `json:"operator"`
	Value       interface{} `json:"value"`
}

// OrderClause orders results by a requested field
type OrderClause struct {
	FieldID int  `json:"field_id"`
	Desc    bool `json:"desc"`
}

// QueryRequest is a validated ad-hoc query against the metadata catalog.
// Transient: never persisted. Every referenced field id must resolve.
type QueryRequest struct {
	FieldIDs []int             `json:"field_ids" validate:"required,min=1"`
	Filters  []QueryFilter     `json:"filters,omitempty"`
	GroupBy  []int             `json:"group_by,omitempty"`
	Having   []HavingCondition `json:"having,omitempty"`
	OrderBy  []OrderClause     `json:"order_by,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// AllFieldIDs returns every field id the request references, in request
// order, without duplicates.
func (r QueryRequest) AllFieldIDs() []int {
	seen := make(map[int]bool)
	var ids []int

	add := func(id int) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range r.FieldIDs {
		add(id)
	}
	for _, f := range r.Filters {
		add(f.FieldID)
	}
	for _, id := range r.GroupBy {
		add(id)
	}
	for _, h := range r.Having {
		add(h.FieldID)
	}
	for _, o := range r.OrderBy {
		add(o.FieldID)
	}

	return ids
}

// CompiledQuery is the output of the query compiler: parameterized SQL plus
// its bound arguments. Identifiers come only from resolved metadata; values
// only ever appear in Args.
type CompiledQuery struct {
	SQL  string
	Args []interface{}
}
