package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jordanlanch/reportdb/pkg/models"
)

// QueryRunner executes compiled report queries against the reporting
// database. Queries arrive fully parameterized; the runner adds only a
// statement timeout.
type QueryRunner struct {
	db      *sql.DB
	timeout time.Duration
}

// NewQueryRunner creates a runner with a per-query timeout
func NewQueryRunner(db *sql.DB, timeout time.Duration) *QueryRunner {
	return &QueryRunner{db: db, timeout: timeout}
}

// Run executes the query and returns rows as column name to value maps
func (r *QueryRunner) Run(ctx context.Context, query models.CompiledQuery) ([]map[string]interface{}, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rows, err := r.db.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed executing report query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed reading result columns: %w", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		targets := make([]interface{}, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed scanning result row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// lib/pq hands text columns back as []byte
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
