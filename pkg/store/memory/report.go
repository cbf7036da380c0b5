package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ReportStore is an in-memory report definition store
type ReportStore struct {
	mu      sync.RWMutex
	reports map[int]models.Report
	nextID  int
}

// NewReportStore creates an empty in-memory report store
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[int]models.Report), nextID: 1}
}

// Create persists a new report and assigns its id
func (s *ReportStore) Create(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	report.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	s.reports[report.ID] = *report
	return nil
}

// GetByID returns a report by id
func (s *ReportStore) GetByID(ctx context.Context, id int) (*models.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return nil, domain.NewNotFoundError("report")
	}
	return &r, nil
}

// Update persists report changes
func (s *ReportStore) Update(ctx context.Context, report *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[report.ID]; !ok {
		return domain.NewNotFoundError("report")
	}
	report.UpdatedAt = time.Now().UTC()
	s.reports[report.ID] = *report
	return nil
}

// Delete removes a report
func (s *ReportStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[id]; !ok {
		return domain.NewNotFoundError("report")
	}
	delete(s.reports, id)
	return nil
}

// ListByOwner returns the owner's reports ordered by id descending
func (s *ReportStore) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]models.Report, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Report
	for _, r := range s.reports {
		if r.OwnerID == ownerID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
