package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metadata"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/jordanlanch/reportdb/pkg/query"
	"github.com/xuri/excelize/v2"
)

// Generator materializes report files under the export root. It implements
// domain.ExportGenerator: resolve the report, compile its query, run it and
// render the rows as CSV or Excel.
type Generator struct {
	reports  domain.ReportStore
	resolver *metadata.Resolver
	compiler *query.Compiler
	runner   domain.QueryRunner
	root     string
	log      logger.Logger
}

// NewGenerator creates an export generator writing under root
func NewGenerator(reports domain.ReportStore, resolver *metadata.Resolver, compiler *query.Compiler, runner domain.QueryRunner, root string, log logger.Logger) *Generator {
	os.MkdirAll(root, 0755)

	return &Generator{
		reports:  reports,
		resolver: resolver,
		compiler: compiler,
		runner:   runner,
		root:     root,
		log:      log,
	}
}

// Generate runs the report query and writes the result file. The returned
// filename is a bare name relative to the export root; callers never see a
// full path.
func (g *Generator) Generate(ctx context.Context, reportID int, format models.ExportFormat, filters []models.QueryFilter, options map[string]interface{}) (*models.GeneratedFile, error) {
	report, err := g.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}

	req := report.QueryRequest(filters, rowLimit(options))
	meta, err := g.resolver.Resolve(ctx, req.AllFieldIDs())
	if err != nil {
		return nil, err
	}

	compiled, err := g.compiler.Compile(meta, req)
	if err != nil {
		return nil, err
	}

	rows, err := g.runner.Run(ctx, *compiled)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	headers := columnAliases(meta, req)
	filename := exportFilename(reportID, format)
	path := filepath.Join(g.root, filename)

	switch format {
	case models.FormatCSV:
		err = writeCSV(path, headers, rows)
	case models.FormatExcel:
		err = writeExcel(path, report.Name, headers, rows)
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("format %q is not supported", format))
	}
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat generated file: %w", err)
	}

	g.log.Info("export generated",
		"report_id", reportID,
		"filename", filename,
		"rows", len(rows),
		"bytes", info.Size())

	return &models.GeneratedFile{Filename: filename, Size: info.Size(), RowCount: len(rows)}, nil
}

// exportFilename builds a collision-resistant name: concurrent exports of
// the same report at the same second still get distinct files.
func exportFilename(reportID int, format models.ExportFormat) string {
	ext := "csv"
	if format == models.FormatExcel {
		ext = "xlsx"
	}
	stamp := time.Now().UTC().Format("20060102-150405")
	return fmt.Sprintf("report-%d-%s-%s.%s", reportID, stamp, uuid.New().String()[:8], ext)
}

// rowLimit reads an optional row cap from export options
func rowLimit(options map[string]interface{}) int {
	raw, ok := options["limit"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// columnAliases mirrors the compiler's select-list aliases so file headers
// match the result columns.
func columnAliases(meta *models.ResolvedMetadata, req models.QueryRequest) []string {
	grouped := make(map[int]bool, len(req.GroupBy))
	for _, id := range req.GroupBy {
		grouped[id] = true
	}

	aliases := make([]string, 0, len(req.FieldIDs))
	for _, id := range req.FieldIDs {
		field := meta.Fields[id]
		if !field.IsCalculated && !field.IsDimension && !grouped[id] && field.DefaultAggregation != "" {
			aliases = append(aliases, string(field.DefaultAggregation)+"_"+field.ColumnName)
			continue
		}
		aliases = append(aliases, field.ColumnName)
	}
	return aliases
}

// writeCSV renders rows into a CSV file
func writeCSV(path string, headers []string, rows []map[string]interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(headers))
	for _, row := range rows {
		for i, column := range headers {
			record[i] = formatCell(row[column])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeExcel renders rows into an xlsx file
func writeExcel(path, sheetName string, headers []string, rows []map[string]interface{}) error {
	if sheetName == "" {
		sheetName = "Data"
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, row := range rows {
		for colIdx, column := range headers {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("failed to compute cell name: %w", err)
			}
			f.SetCellValue(sheetName, cell, row[column])
		}
	}

	for i := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to compute column name: %w", err)
		}
		f.SetColWidth(sheetName, col, col, 15)
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// formatCell renders one result value as CSV text
func formatCell(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case time.Time:
		return value.UTC().Format(time.RFC3339)
	case []byte:
		return string(value)
	case float64:
		return fmt.Sprintf("%g", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
