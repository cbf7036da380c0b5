package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metrics"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// Service handles export record lifecycle: ad-hoc creation, background
// processing, download path resolution and expiry cleanup.
type Service struct {
	exports   domain.ExportStore
	generator domain.ExportGenerator
	enqueuer  domain.TaskEnqueuer
	root      string
	expiry    time.Duration
	validate  *validator.Validate
	log       logger.Logger
}

// NewService creates a new export service
func NewService(exports domain.ExportStore, generator domain.ExportGenerator, enqueuer domain.TaskEnqueuer, root string, expiry time.Duration, log logger.Logger) *Service {
	return &Service{
		exports:   exports,
		generator: generator,
		enqueuer:  enqueuer,
		root:      root,
		expiry:    expiry,
		validate:  validator.New(),
		log:       log,
	}
}

// Create registers an ad-hoc export and hands it to the worker queue
func (s *Service) Create(ctx context.Context, userID int, req models.ExportRequest) (*models.Export, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	now := time.Now().UTC()
	export := &models.Export{
		ID:       uuid.New().String(),
		ReportID: req.ReportID,
		UserID:   userID,
		Format:   req.Format,
		Status:   models.ExportPending,
		Parameters: map[string]interface{}{
			"filters": req.Filters,
			"options": req.Options,
		},
		ExpiresAt: now.Add(s.expiry),
		CreatedAt: now,
	}
	if err := s.exports.Create(ctx, export); err != nil {
		return nil, err
	}

	if _, err := s.enqueuer.EnqueueExportRun(ctx, export.ID); err != nil {
		export.Status = models.ExportFailed
		export.ErrorMessage = "failed to queue export"
		if updateErr := s.exports.Update(ctx, export); updateErr != nil {
			s.log.Error("failed to mark export failed", "export_id", export.ID, "error", updateErr)
		}
		return nil, err
	}

	return export, nil
}

// Process runs one queued export. Invoked from the worker; retried by the
// task layer on transient failure.
func (s *Service) Process(ctx context.Context, exportID string) error {
	export, err := s.exports.GetByID(ctx, exportID)
	if err != nil {
		return err
	}
	if export.Status == models.ExportCompleted {
		return nil
	}

	export.Status = models.ExportProcessing
	if err := s.exports.Update(ctx, export); err != nil {
		return err
	}

	filters, options := decodeParameters(export.Parameters)
	started := time.Now()
	file, err := s.generator.Generate(ctx, export.ReportID, export.Format, filters, options)
	metrics.ExportDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ExportsGenerated.WithLabelValues(string(export.Format), "failed").Inc()
		export.Status = models.ExportFailed
		export.ErrorMessage = err.Error()
		if updateErr := s.exports.Update(ctx, export); updateErr != nil {
			s.log.Error("failed to mark export failed", "export_id", export.ID, "error", updateErr)
		}
		if domain.IsValidation(err) || domain.IsNotFound(err) {
			return err
		}
		return domain.NewExportGenerationError(err)
	}
	metrics.ExportsGenerated.WithLabelValues(string(export.Format), "success").Inc()

	completed := time.Now().UTC()
	export.Status = models.ExportCompleted
	export.Filename = file.Filename
	export.FileSize = file.Size
	export.RowCount = file.RowCount
	export.CompletedAt = &completed
	return s.exports.Update(ctx, export)
}

// Get returns an export owned by the caller
func (s *Service) Get(ctx context.Context, userID int, exportID string) (*models.Export, error) {
	export, err := s.exports.GetByID(ctx, exportID)
	if err != nil {
		return nil, err
	}
	if export.UserID != userID {
		return nil, domain.NewNotFoundError("export")
	}
	return export, nil
}

// List returns the caller's exports with pagination
func (s *Service) List(ctx context.Context, userID, page, limit int) ([]models.Export, models.PaginationInfo, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	exports, total, err := s.exports.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, models.PaginationInfo{}, err
	}

	totalPages := (total + limit - 1) / limit
	return exports, models.PaginationInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// FilePath resolves the on-disk location of a completed export, verifying
// ownership, expiry and that the stored filename cannot escape the root.
func (s *Service) FilePath(ctx context.Context, userID int, exportID string) (string, error) {
	export, err := s.Get(ctx, userID, exportID)
	if err != nil {
		return "", err
	}
	return s.resolvePath(export)
}

// FilePathSigned resolves the location for a signed-link download, which
// carries no authenticated user.
func (s *Service) FilePathSigned(ctx context.Context, exportID string) (string, error) {
	export, err := s.exports.GetByID(ctx, exportID)
	if err != nil {
		return "", err
	}
	return s.resolvePath(export)
}

func (s *Service) resolvePath(export *models.Export) (string, error) {
	if export.Status != models.ExportCompleted {
		return "", domain.NewValidationError("export is not ready for download")
	}
	if time.Now().UTC().After(export.ExpiresAt) {
		return "", domain.NewValidationError("export has expired")
	}
	if export.Filename == "" {
		return "", domain.NewNotFoundError("export file")
	}
	return SafeJoin(s.root, export.Filename)
}

// DeleteExpired removes expired export rows and their files. Invoked by
// the hourly cleanup job.
func (s *Service) DeleteExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	expired, err := s.exports.ListExpired(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, export := range expired {
		if export.Filename != "" {
			path, err := SafeJoin(s.root, export.Filename)
			if err == nil {
				if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
					s.log.Warn("failed to remove export file", "export_id", export.ID, "error", rmErr)
				}
			}
		}
		if err := s.exports.Delete(ctx, export.ID); err != nil {
			s.log.Error("failed to delete expired export", "export_id", export.ID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.Info("expired exports cleaned", "count", removed)
	}
	return removed, nil
}

// SafeJoin joins a stored filename onto root and rejects any result that
// escapes it. Filenames are stored as bare names, so a separator or a
// dot-dot segment means the record was tampered with.
func SafeJoin(root, filename string) (string, error) {
	if filename != filepath.Base(filename) || filename == ".." || filename == "." {
		return "", domain.NewPathTraversalError(filename)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", domain.NewInternalError(err)
	}
	joined := filepath.Join(absRoot, filename)
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", domain.NewPathTraversalError(filename)
	}
	return joined, nil
}

// decodeParameters recovers the typed filter list from the stored
// parameter map. Parameters round-trip through JSON in the postgres store,
// so both typed and decoded shapes are handled.
func decodeParameters(params map[string]interface{}) ([]models.QueryFilter, map[string]interface{}) {
	if params == nil {
		return nil, nil
	}

	var filters []models.QueryFilter
	switch raw := params["filters"].(type) {
	case []models.QueryFilter:
		filters = raw
	case []interface{}:
		if encoded, err := json.Marshal(raw); err == nil {
			json.Unmarshal(encoded, &filters)
		}
	}

	options, _ := params["options"].(map[string]interface{})
	return filters, options
}
