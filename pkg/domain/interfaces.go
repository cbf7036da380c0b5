package domain

import (
	"context"
	"time"

	"github.com/jordanlanch/reportdb/pkg/models"
)

// MetadataStore defines batched data access for the metadata catalog.
// Every method takes the full id set in one call; per-id lookups are not
// part of this contract.
type MetadataStore interface {
	FieldsByIDs(ctx context.Context, ids []int) ([]models.Field, error)
	TablesByIDs(ctx context.Context, ids []int) ([]models.DataTable, error)
	RelationshipsForFields(ctx context.Context, fieldIDs []int) ([]models.FieldRelationship, error)
}

// ReportStore defines data access for report definitions
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id int) (*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	Delete(ctx context.Context, id int) error
	ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]models.Report, int, error)
}

// ScheduleStore defines data access for export schedules
type ScheduleStore interface {
	Create(ctx context.Context, schedule *models.ExportSchedule) error
	GetByID(ctx context.Context, id int) (*models.ExportSchedule, error)
	Update(ctx context.Context, schedule *models.ExportSchedule) error
	// Delete removes the schedule and cascades to its execution history.
	Delete(ctx context.Context, id int) error
	ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]models.ExportSchedule, int, error)
	// Due returns active, unpaused schedules whose next_run is at or before
	// now, or null.
	Due(ctx context.Context, now time.Time) ([]models.ExportSchedule, error)
	SetNextRun(ctx context.Context, id int, nextRun *time.Time) error
	// RecordRun atomically applies run_count+1, success/failure_count+1 and
	// last_run in one store-level update.
	RecordRun(ctx context.Context, id int, success bool, lastRun time.Time) error
}

// ExecutionStore defines data access for schedule execution history
type ExecutionStore interface {
	Create(ctx context.Context, execution *models.ScheduleExecution) error
	Update(ctx context.Context, execution *models.ScheduleExecution) error
	GetByID(ctx context.Context, id int) (*models.ScheduleExecution, error)
	GetByTaskID(ctx context.Context, taskID string) (*models.ScheduleExecution, error)
	ListBySchedule(ctx context.Context, scheduleID, limit, offset int) ([]models.ScheduleExecution, int, error)
}

// ExportStore defines data access for export records
type ExportStore interface {
	Create(ctx context.Context, export *models.Export) error
	Update(ctx context.Context, export *models.Export) error
	GetByID(ctx context.Context, id string) (*models.Export, error)
	ListByUser(ctx context.Context, userID, limit, offset int) ([]models.Export, int, error)
	// ListExpired returns exports whose expires_at is before now and whose
	// status is terminal.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Export, error)
	Delete(ctx context.Context, id string) error
}

// QueryRunner executes a compiled, parameterized query against the
// reporting database and returns rows as column→value maps.
type QueryRunner interface {
	Run(ctx context.Context, query models.CompiledQuery) ([]map[string]interface{}, error)
}

// ExportGenerator materializes a report into a file under the export root.
// External collaborator: the core only consumes this contract.
type ExportGenerator interface {
	Generate(ctx context.Context, reportID int, format models.ExportFormat, filters []models.QueryFilter, options map[string]interface{}) (*models.GeneratedFile, error)
}

// Mailer sends a single outbound email. Transport mechanics (SendGrid,
// SMTP) live behind this interface.
type Mailer interface {
	Send(ctx context.Context, msg OutboundEmail) error
}

// OutboundEmail is one message handed to the Mailer
type OutboundEmail struct {
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	Attachment  string // filename of the attachment, empty for link-only mail
	AttachedAt  string // full path of the file to attach
	DownloadURL string
}

// SendRateLimiter enforces request-per-hour budgets for email delivery.
// Backed by a shared store so limits hold across processes.
type SendRateLimiter interface {
	Allow(ctx context.Context, key string, perHour int) (bool, error)
}

// TaskEnqueuer submits work to the worker queue. The returned id
// identifies the task for dead-letter bookkeeping.
type TaskEnqueuer interface {
	EnqueueScheduleRun(ctx context.Context, scheduleID int) (taskID string, err error)
	EnqueueExportRun(ctx context.Context, exportID string) (taskID string, err error)
}

// AccessPolicy is the pre-computed field/table visibility for one caller,
// supplied by the RBAC collaborator before compilation. Nil means
// unrestricted.
type AccessPolicy struct {
	FieldIDs map[int]bool
	TableIDs map[int]bool
}

// AllowsField reports whether the policy permits the field
func (p *AccessPolicy) AllowsField(id int) bool {
	if p == nil || p.FieldIDs == nil {
		return true
	}
	return p.FieldIDs[id]
}

// AllowsTable reports whether the policy permits the table
func (p *AccessPolicy) AllowsTable(id int) bool {
	if p == nil || p.TableIDs == nil {
		return true
	}
	return p.TableIDs[id]
}
