package schedule

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Service handles export schedule business logic
type Service struct {
	schedules  domain.ScheduleStore
	executions domain.ExecutionStore
	reports    domain.ReportStore
	clock      *Clock
	validate   *validator.Validate
	log        logger.Logger
}

// NewService creates a new schedule service
func NewService(schedules domain.ScheduleStore, executions domain.ExecutionStore, reports domain.ReportStore, clock *Clock, log logger.Logger) *Service {
	return &Service{
		schedules:  schedules,
		executions: executions,
		reports:    reports,
		clock:      clock,
		validate:   validator.New(),
		log:        log,
	}
}

// Create validates and persists a new schedule. The first next_run is
// computed immediately so the poller never sees a stale schedule.
func (s *Service) Create(ctx context.Context, ownerID int, req models.ScheduleCreateRequest) (*models.ExportSchedule, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if err := s.clock.Validate(req.ScheduleConfig); err != nil {
		return nil, err
	}
	if _, err := s.reports.GetByID(ctx, req.ReportID); err != nil {
		return nil, err
	}

	nextRun, err := s.clock.NextRun(req.ScheduleConfig, time.Now())
	if err != nil {
		return nil, err
	}

	schedule := &models.ExportSchedule{
		ReportID:           req.ReportID,
		OwnerID:            ownerID,
		Name:               req.Name,
		ScheduleConfig:     req.ScheduleConfig,
		DistributionConfig: req.DistributionConfig,
		ExportConfig:       req.ExportConfig,
		IsActive:           true,
		NextRun:            nextRun,
	}
	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, err
	}

	s.log.Info("schedule created",
		"schedule_id", schedule.ID,
		"report_id", schedule.ReportID,
		"next_run", schedule.NextRun)
	return schedule, nil
}

// Get returns a schedule owned by the caller
func (s *Service) Get(ctx context.Context, id, ownerID int) (*models.ExportSchedule, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.OwnerID != ownerID {
		return nil, domain.NewNotFoundError("schedule")
	}
	return schedule, nil
}

// Update applies a partial update. Changes touching timing (schedule
// config, activation, pause state) force a next_run recompute.
func (s *Service) Update(ctx context.Context, id, ownerID int, req models.ScheduleUpdateRequest) (*models.ExportSchedule, error) {
	schedule, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	timingChanged := false

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.ScheduleConfig != nil {
		if err := s.clock.Validate(*req.ScheduleConfig); err != nil {
			return nil, err
		}
		schedule.ScheduleConfig = *req.ScheduleConfig
		timingChanged = true
	}
	if req.DistributionConfig != nil {
		schedule.DistributionConfig = *req.DistributionConfig
	}
	if req.ExportConfig != nil {
		schedule.ExportConfig = *req.ExportConfig
	}
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
		timingChanged = true
	}
	if req.IsPaused != nil {
		schedule.IsPaused = *req.IsPaused
		timingChanged = true
	}

	if timingChanged {
		if schedule.IsActive && !schedule.IsPaused {
			nextRun, err := s.clock.NextRun(schedule.ScheduleConfig, time.Now())
			if err != nil {
				return nil, err
			}
			schedule.NextRun = nextRun
		} else {
			schedule.NextRun = nil
		}
	}

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// Delete removes a schedule and its execution history
func (s *Service) Delete(ctx context.Context, id, ownerID int) error {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return err
	}
	return s.schedules.Delete(ctx, id)
}

// List returns the caller's schedules with pagination
func (s *Service) List(ctx context.Context, ownerID, limit, offset int) ([]models.ExportSchedule, int, error) {
	return s.schedules.ListByOwner(ctx, ownerID, limit, offset)
}

// Pause stops a schedule from firing without losing its configuration
func (s *Service) Pause(ctx context.Context, id, ownerID int) (*models.ExportSchedule, error) {
	paused := true
	return s.Update(ctx, id, ownerID, models.ScheduleUpdateRequest{IsPaused: &paused})
}

// Resume reactivates a paused schedule and recomputes its next run
func (s *Service) Resume(ctx context.Context, id, ownerID int) (*models.ExportSchedule, error) {
	paused := false
	return s.Update(ctx, id, ownerID, models.ScheduleUpdateRequest{IsPaused: &paused})
}

// Executions returns the run history of a schedule owned by the caller
func (s *Service) Executions(ctx context.Context, scheduleID, ownerID, limit, offset int) ([]models.ScheduleExecution, int, error) {
	if _, err := s.Get(ctx, scheduleID, ownerID); err != nil {
		return nil, 0, err
	}
	return s.executions.ListBySchedule(ctx, scheduleID, limit, offset)
}
