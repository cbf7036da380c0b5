package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metadata"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/query"
	"github.com/jordanlanch/reportdb/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	rows []map[string]interface{}
	last models.CompiledQuery
}

func (r *fakeRunner) Run(ctx context.Context, q models.CompiledQuery) ([]map[string]interface{}, error) {
	r.last = q
	return r.rows, nil
}

func newGeneratorFixture(t *testing.T, rows []map[string]interface{}) (*Generator, *fakeRunner, int) {
	t.Helper()

	catalog := memory.NewMetadataStore()
	catalog.AddTable(models.DataTable{ID: 1, TableName: "orders"})
	catalog.AddField(models.Field{ID: 1, ColumnName: "status", TableID: 1, IsDimension: true})
	catalog.AddField(models.Field{ID: 2, ColumnName: "amount", TableID: 1, DefaultAggregation: models.AggregationSum})

	reports := memory.NewReportStore()
	report := &models.Report{
		Name:     "Order totals",
		OwnerID:  1,
		FieldIDs: []int{1, 2},
		GroupBy:  []int{1},
	}
	require.NoError(t, reports.Create(context.Background(), report))

	runner := &fakeRunner{rows: rows}
	g := NewGenerator(reports, metadata.NewResolver(catalog), query.NewCompiler(), runner, t.TempDir(), logger.New("error"))
	return g, runner, report.ID
}

func TestGeneratorCSV(t *testing.T) {
	rows := []map[string]interface{}{
		{"status": "done", "sum_amount": 120.5},
		{"status": "open", "sum_amount": nil},
	}
	g, _, reportID := newGeneratorFixture(t, rows)

	file, err := g.Generate(context.Background(), reportID, models.FormatCSV, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, file.RowCount)
	assert.Greater(t, file.Size, int64(0))
	assert.Equal(t, file.Filename, filepath.Base(file.Filename))

	f, err := os.Open(filepath.Join(g.root, file.Filename))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"status", "sum_amount"}, records[0])
	assert.Equal(t, []string{"done", "120.5"}, records[1])
	assert.Equal(t, []string{"open", ""}, records[2])
}

func TestGeneratorExcel(t *testing.T) {
	g, _, reportID := newGeneratorFixture(t, []map[string]interface{}{
		{"status": "done", "sum_amount": 99.0},
	})

	file, err := g.Generate(context.Background(), reportID, models.FormatExcel, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ".xlsx", filepath.Ext(file.Filename))
	info, err := os.Stat(filepath.Join(g.root, file.Filename))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), file.Size)
}

func TestGeneratorFilenamesDoNotCollide(t *testing.T) {
	g, _, reportID := newGeneratorFixture(t, nil)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		file, err := g.Generate(context.Background(), reportID, models.FormatCSV, nil, nil)
		require.NoError(t, err)
		assert.False(t, seen[file.Filename], "filename %s reused", file.Filename)
		seen[file.Filename] = true
	}
}

func TestGeneratorAppendsFilters(t *testing.T) {
	g, runner, reportID := newGeneratorFixture(t, nil)

	extra := []models.QueryFilter{{FieldID: 1, Operator: models.OpEq, Value: "done"}}
	_, err := g.Generate(context.Background(), reportID, models.FormatCSV, extra, nil)
	require.NoError(t, err)

	assert.Contains(t, runner.last.SQL, "WHERE")
	assert.Contains(t, runner.last.Args, "done")
}

func TestGeneratorUnknownReport(t *testing.T) {
	g, _, _ := newGeneratorFixture(t, nil)

	_, err := g.Generate(context.Background(), 999, models.FormatCSV, nil, nil)
	assert.Error(t, err)
}
