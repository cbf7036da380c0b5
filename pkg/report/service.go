package report

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Service handles report definition business logic
type Service struct {
	reports  domain.ReportStore
	resolver domain.MetadataStore
	validate *validator.Validate
	log      logger.Logger
}

// NewService creates a new report service
func NewService(reports domain.ReportStore, resolver domain.MetadataStore, log logger.Logger) *Service {
	return &Service{
		reports:  reports,
		resolver: resolver,
		validate: validator.New(),
		log:      log,
	}
}

// Create validates and persists a new report definition. Field ids are
// checked against the metadata catalog up front so a broken report never
// reaches query compilation.
func (s *Service) Create(ctx context.Context, ownerID int, req models.ReportCreateRequest) (*models.Report, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if err := s.checkFields(ctx, req.FieldIDs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	report := &models.Report{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
		FieldIDs:    req.FieldIDs,
		Filters:     req.Filters,
		GroupBy:     req.GroupBy,
		OrderBy:     req.OrderBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	s.log.Info("report created", "report_id", report.ID, "owner_id", ownerID, "fields", len(report.FieldIDs))
	return report, nil
}

// Get returns a report owned by the caller
func (s *Service) Get(ctx context.Context, id, ownerID int) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.OwnerID != ownerID {
		return nil, domain.NewNotFoundError("report")
	}
	return report, nil
}

// Update applies a partial update; nil request fields are unchanged
func (s *Service) Update(ctx context.Context, id, ownerID int, req models.ReportUpdateRequest) (*models.Report, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	report, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		report.Name = *req.Name
	}
	if req.Description != nil {
		report.Description = *req.Description
	}
	if len(req.FieldIDs) > 0 {
		if err := s.checkFields(ctx, req.FieldIDs); err != nil {
			return nil, err
		}
		report.FieldIDs = req.FieldIDs
	}
	if req.Filters != nil {
		report.Filters = *req.Filters
	}
	if req.GroupBy != nil {
		report.GroupBy = *req.GroupBy
	}
	if req.OrderBy != nil {
		report.OrderBy = *req.OrderBy
	}
	report.UpdatedAt = time.Now().UTC()

	if err := s.reports.Update(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Delete removes a report owned by the caller
func (s *Service) Delete(ctx context.Context, id, ownerID int) error {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return err
	}
	s.log.Info("report deleted", "report_id", id, "owner_id", ownerID)
	return s.reports.Delete(ctx, id)
}

// List returns the caller's reports with pagination
func (s *Service) List(ctx context.Context, ownerID, limit, offset int) ([]models.Report, int, error) {
	return s.reports.ListByOwner(ctx, ownerID, limit, offset)
}

// checkFields confirms every referenced field id exists in the catalog
func (s *Service) checkFields(ctx context.Context, fieldIDs []int) error {
	fields, err := s.resolver.FieldsByIDs(ctx, fieldIDs)
	if err != nil {
		return err
	}

	known := make(map[int]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}
	for _, id := range fieldIDs {
		if !known[id] {
			return domain.NewUnknownFieldError(id)
		}
	}
	return nil
}
