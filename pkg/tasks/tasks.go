package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names as they appear on the queue and in the dead-letter
// store.
const (
	TypeScheduleExecute = "schedule:execute"
	TypeExportGenerate  = "export:generate"
)

// ScheduleExecutePayload carries one scheduled report run
type ScheduleExecutePayload struct {
	ScheduleID int `json:"schedule_id"`
}

// ExportGeneratePayload carries one ad-hoc export run
type ExportGeneratePayload struct {
	ExportID string `json:"export_id"`
}

// NewScheduleExecuteTask builds the queue task for a schedule run
func NewScheduleExecuteTask(scheduleID int) (*asynq.Task, error) {
	payload, err := json.Marshal(ScheduleExecutePayload{ScheduleID: scheduleID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode schedule payload: %w", err)
	}
	return asynq.NewTask(TypeScheduleExecute, payload), nil
}

// NewExportGenerateTask builds the queue task for an ad-hoc export
func NewExportGenerateTask(exportID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ExportGeneratePayload{ExportID: exportID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode export payload: %w", err)
	}
	return asynq.NewTask(TypeExportGenerate, payload), nil
}

// DecodeArgs unmarshals a task payload into a generic map for
// dead-letter storage. A payload that does not decode is stored as-is
// under "payload".
func DecodeArgs(payload []byte) map[string]interface{} {
	var args map[string]interface{}
	if err := json.Unmarshal(payload, &args); err != nil {
		return map[string]interface{}{"payload": string(payload)}
	}
	return args
}
