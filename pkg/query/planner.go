package query

import (
	"fmt"
	"strings"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// JoinStep is one edge of the join plan
type JoinStep struct {
	LeftTable   string
	JoinTable   string
	LeftColumn  string
	RightColumn string
	JoinType    models.JoinType
}

// Clause renders the ON condition of the step
func (s JoinStep) Clause() string {
	return fmt.Sprintf("%s ON %s.%s = %s.%s",
		s.JoinTable, s.LeftTable, s.LeftColumn, s.JoinTable, s.RightColumn)
}

// JoinPlan is the ordered join sequence connecting the tables a query
// touches. Unjoined holds required tables the relationship graph could not
// reach from the base table; the compiler degrades to a cross join for
// those rather than failing (observed legacy behavior, kept deliberately).
type JoinPlan struct {
	BaseTable models.DataTable
	Steps     []JoinStep
	Unjoined  []models.DataTable
}

// edge is one traversable relationship in the table-adjacency graph,
// indexed by table id rather than live pointers.
type edge struct {
	toTable     int
	leftFieldID int
	rightField  int
	joinType    models.JoinType
}

// PlanJoins computes a minimal ordered join sequence connecting every
// required table, via breadth-first search from the base table over the
// adjacency graph induced by the resolved relationships.
//
// Determinism: edges are visited in the order relationships were returned
// by the resolver, never re-sorted, so identical inputs always produce the
// same plan. A visited set keeps cyclic relationship graphs safe.
func PlanJoins(meta *models.ResolvedMetadata, baseTableID int, requiredTableIDs []int) (*JoinPlan, error) {
	base, ok := meta.Tables[baseTableID]
	if !ok {
		return nil, domain.NewInternalError(fmt.Errorf("base table %d not resolved", baseTableID))
	}

	required := make(map[int]bool, len(requiredTableIDs))
	for _, id := range requiredTableIDs {
		if id != baseTableID {
			required[id] = true
		}
	}

	plan := &JoinPlan{BaseTable: base}
	if len(required) == 0 {
		return plan, nil
	}

	// Relationships are symmetric for traversal: either side can be the
	// already-joined table.
	adjacency := make(map[int][]edge)
	for _, rel := range meta.Relationships {
		src, srcOK := meta.Fields[rel.SourceFieldID]
		dst, dstOK := meta.Fields[rel.TargetFieldID]
		if !srcOK || !dstOK {
			continue
		}
		adjacency[src.TableID] = append(adjacency[src.TableID], edge{
			toTable:     dst.TableID,
			leftFieldID: rel.SourceFieldID,
			rightField:  rel.TargetFieldID,
			joinType:    rel.JoinType,
		})
		adjacency[dst.TableID] = append(adjacency[dst.TableID], edge{
			toTable:     src.TableID,
			leftFieldID: rel.TargetFieldID,
			rightField:  rel.SourceFieldID,
			joinType:    rel.JoinType,
		})
	}

	visited := map[int]bool{baseTableID: true}
	queue := []int{baseTableID}
	remaining := len(required)

	for len(queue) > 0 && remaining > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range adjacency[current] {
			if visited[e.toTable] {
				continue
			}
			visited[e.toTable] = true
			queue = append(queue, e.toTable)

			leftField := meta.Fields[e.leftFieldID]
			rightField := meta.Fields[e.rightField]
			plan.Steps = append(plan.Steps, JoinStep{
				LeftTable:   meta.Tables[current].QualifiedName(),
				JoinTable:   meta.Tables[e.toTable].QualifiedName(),
				LeftColumn:  leftField.ColumnName,
				RightColumn: rightField.ColumnName,
				JoinType:    e.joinType,
			})

			if required[e.toTable] {
				remaining--
			}
		}
	}

	if remaining > 0 {
		for _, id := range requiredTableIDs {
			if required[id] && !visited[id] {
				plan.Unjoined = append(plan.Unjoined, meta.Tables[id])
			}
		}
	}

	// BFS records a step for every table it discovers; joins whose subtree
	// contains no required table are dead weight.
	plan.Steps = pruneDeadSteps(plan.Steps, meta, required)

	return plan, nil
}

// pruneDeadSteps drops join steps whose subtree contains no required
// table. Walks the step list backwards so parents of kept steps survive.
func pruneDeadSteps(steps []JoinStep, meta *models.ResolvedMetadata, required map[int]bool) []JoinStep {
	requiredNames := make(map[string]bool)
	for id := range required {
		if t, ok := meta.Tables[id]; ok {
			requiredNames[t.QualifiedName()] = true
		}
	}

	keep := make([]bool, len(steps))
	needed := make(map[string]bool)
	for k, v := range requiredNames {
		needed[k] = v
	}

	for i := len(steps) - 1; i >= 0; i-- {
		if needed[steps[i].JoinTable] {
			keep[i] = true
			needed[steps[i].LeftTable] = true
		}
	}

	var out []JoinStep
	for i, s := range steps {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

// joinKeyword maps a relationship join type to its SQL keyword
func joinKeyword(jt models.JoinType) string {
	switch jt {
	case models.JoinLeft:
		return "LEFT JOIN"
	case models.JoinRight:
		return "RIGHT JOIN"
	default:
		return "JOIN"
	}
}

// describe renders a short human-readable plan summary for logs
func (p *JoinPlan) describe() string {
	if len(p.Steps) == 0 {
		return p.BaseTable.QualifiedName()
	}
	parts := make([]string, 0, len(p.Steps)+1)
	parts = append(parts, p.BaseTable.QualifiedName())
	for _, s := range p.Steps {
		parts = append(parts, s.JoinTable)
	}
	return strings.Join(parts, " -> ")
}
