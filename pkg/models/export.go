package models

import "time"

// ExportFormat is the output file format
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatExcel ExportFormat = "excel"
)

// ExportStatus is the lifecycle state of an export
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
	ExportCancelled  ExportStatus = "cancelled"
)

// Export is one materialized report file. Filename is always a bare name
// relative to the export root, never a full path.
type Export struct {
	ID           string                 `json:"id"`
	ReportID     int                    `json:"report_id"`
	UserID       int                    `json:"user_id"`
	Format       ExportFormat           `json:"format"`
	Status       ExportStatus           `json:"status"`
	Filename     string                 `json:"filename,omitempty"`
	FileSize     int64                  `json:"file_size,omitempty"`
	RowCount     int                    `json:"row_count"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ExpiresAt    time.Time              `json:"expires_at"`
	CreatedAt    time.Time              `json:"created_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// ExportRequest creates an ad-hoc export of a report
type ExportRequest struct {
	ReportID int                    `json:"report_id" validate:"required"`
	Format   ExportFormat           `json:"format" validate:"required,oneof=csv excel"`
	Filters  []QueryFilter          `json:"filters,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// GeneratedFile is what the export generator hands back: a filename under
// the export root plus its size.
type GeneratedFile struct {
	Filename string
	Size     int64
	RowCount int
}
