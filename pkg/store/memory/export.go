package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ExportStore is an in-memory export record store
type ExportStore struct {
	mu      sync.RWMutex
	exports map[string]models.Export
}

// NewExportStore creates an empty in-memory export store
func NewExportStore() *ExportStore {
	return &ExportStore{exports: make(map[string]models.Export)}
}

// Create persists a new export record
func (s *ExportStore) Create(ctx context.Context, export *models.Export) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports[export.ID] = *export
	return nil
}

// Update persists export changes
func (s *ExportStore) Update(ctx context.Context, export *models.Export) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exports[export.ID]; !ok {
		return domain.NewNotFoundError("export")
	}
	s.exports[export.ID] = *export
	return nil
}

// GetByID returns an export by id
func (s *ExportStore) GetByID(ctx context.Context, id string) (*models.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exports[id]
	if !ok {
		return nil, domain.NewNotFoundError("export")
	}
	return &e, nil
}

// ListByUser returns a user's exports, newest first
func (s *ExportStore) ListByUser(ctx context.Context, userID, limit, offset int) ([]models.Export, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.Export
	for _, e := range s.exports {
		if e.UserID == userID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

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

// ListExpired returns terminal exports past their expiry
func (s *ExportStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Export
	for _, e := range s.exports {
		if !e.ExpiresAt.Before(now) {
			continue
		}
		switch e.Status {
		case models.ExportCompleted, models.ExportFailed, models.ExportCancelled:
			out = append(out, e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Delete removes an export record
func (s *ExportStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.exports[id]; !ok {
		return domain.NewNotFoundError("export")
	}
	delete(s.exports, id)
	return nil
}
