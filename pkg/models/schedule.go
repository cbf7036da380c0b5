package models

import "time"

// Frequency is how often a schedule fires
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyCustom    Frequency = "custom"
)

// ScheduleConfig describes when a schedule fires. CronExpression is only
// consulted for FrequencyCustom; other frequencies map to fixed expressions.
type ScheduleConfig struct {
	Frequency      Frequency  `json:"frequency" validate:"required,oneof=immediate daily weekly monthly custom"`
	CronExpression string     `json:"cron_expression,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
}

// Channel kinds for distribution
const (
	ChannelLocal   = "local"
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// LocalChannelConfig delivers the export file under a base directory
type LocalChannelConfig struct {
	Directory       string `json:"directory,omitempty"`
	FilenamePattern string `json:"filename_pattern,omitempty"`
	DatePartition   bool   `json:"date_partition,omitempty"`
	Overwrite       bool   `json:"overwrite,omitempty"`
}

// EmailChannelConfig delivers the export as an attachment or download link
type EmailChannelConfig struct {
	Recipients []string `json:"recipients"`
	CC         []string `json:"cc,omitempty"`
	BCC        []string `json:"bcc,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body,omitempty"`
}

// WebhookChannelConfig notifies an HTTP endpoint that an export is ready
type WebhookChannelConfig struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// DistributionConfig maps each configured channel to its settings.
// A nil entry means the channel is not configured for the schedule.
type DistributionConfig struct {
	Local   *LocalChannelConfig   `json:"local,omitempty"`
	Email   *EmailChannelConfig   `json:"email,omitempty"`
	Webhook *WebhookChannelConfig `json:"webhook,omitempty"`
}

// Channels returns the kinds of every configured channel, in a fixed order
// so dispatch results are deterministic.
func (d DistributionConfig) Channels() []string {
	var kinds []string
	if d.Local != nil {
		kinds = append(kinds, ChannelLocal)
	}
	if d.Email != nil {
		kinds = append(kinds, ChannelEmail)
	}
	if d.Webhook != nil {
		kinds = append(kinds, ChannelWebhook)
	}
	return kinds
}

// ExportConfig describes the file the schedule produces
type ExportConfig struct {
	Format  ExportFormat           `json:"format" validate:"required,oneof=csv excel"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// ExportSchedule is a persisted configuration describing when and how a
// report export is automatically generated and delivered.
type ExportSchedule struct {
	ID                 int                `json:"id"`
	ReportID           int                `json:"report_id"`
	OwnerID            int                `json:"owner_id"`
	Name               string             `json:"name"`
	ScheduleConfig     ScheduleConfig     `json:"schedule_config"`
	DistributionConfig DistributionConfig `json:"distribution_config"`
	ExportConfig       ExportConfig       `json:"export_config"`
	IsActive           bool               `json:"is_active"`
	IsPaused           bool               `json:"is_paused"`
	NextRun            *time.Time         `json:"next_run,omitempty"`
	LastRun            *time.Time         `json:"last_run,omitempty"`
	RunCount           int                `json:"run_count"`
	SuccessCount       int                `json:"success_count"`
	FailureCount       int                `json:"failure_count"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// ExecutionStatus is the lifecycle state of one schedule run
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ChannelResult is the outcome of one distribution channel for one run
type ChannelResult struct {
	Status    string    `json:"status"` // success, failed, pending
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel result statuses
const (
	ChannelStatusSuccess = "success"
	ChannelStatusFailed  = "failed"
	ChannelStatusPending = "pending"
)

// ScheduleExecution is one concrete attempt to run a schedule. Rows are
// append-only history; after a terminal status only retry bookkeeping may
// touch them.
type ScheduleExecution struct {
	ID                  int                      `json:"id"`
	ScheduleID          int                      `json:"schedule_id"`
	StartedAt           time.Time                `json:"started_at"`
	CompletedAt         *time.Time               `json:"completed_at,omitempty"`
	Status              ExecutionStatus          `json:"status"`
	ExportID            string                   `json:"export_id,omitempty"`
	ErrorMessage        string                   `json:"error_message,omitempty"`
	DistributionResults map[string]ChannelResult `json:"distribution_results,omitempty"`
	RetryCount          int                      `json:"retry_count"`
	TaskID              string                   `json:"task_id,omitempty"`
}

// ScheduleCreateRequest creates a new export schedule
type ScheduleCreateRequest struct {
	ReportID           int                `json:"report_id" validate:"required"`
	Name               string             `json:"name" validate:"required,max=200"`
	ScheduleConfig     ScheduleConfig     `json:"schedule_config" validate:"required"`
	DistributionConfig DistributionConfig `json:"distribution_config"`
	ExportConfig       ExportConfig       `json:"export_config" validate:"required"`
}

// ScheduleUpdateRequest mutates an existing schedule. Nil fields are left
// unchanged; timing-related changes force a next_run recompute.
type ScheduleUpdateRequest struct {
	Name               *string             `json:"name,omitempty"`
	ScheduleConfig     *ScheduleConfig     `json:"schedule_config,omitempty"`
	DistributionConfig *DistributionConfig `json:"distribution_config,omitempty"`
	ExportConfig       *ExportConfig       `json:"export_config,omitempty"`
	IsActive           *bool               `json:"is_active,omitempty"`
	IsPaused           *bool               `json:"is_paused,omitempty"`
}
