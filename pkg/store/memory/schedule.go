package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ScheduleStore is an in-memory schedule store with the same semantics as
// the postgres store, including cascade delete of execution history.
type ScheduleStore struct {
	mu         sync.RWMutex
	schedules  map[int]models.ExportSchedule
	nextID     int
	executions *ExecutionStore // for cascade delete, optional
}

// NewScheduleStore creates an empty in-memory schedule store
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[int]models.ExportSchedule), nextID: 1}
}

// WithExecutions wires an execution store for cascade deletes
func (s *ScheduleStore) WithExecutions(es *ExecutionStore) *ScheduleStore {
	s.executions = es
	return s
}

// Create persists a new schedule and assigns its id
func (s *ScheduleStore) Create(ctx context.Context, schedule *models.ExportSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule.ID = s.nextID
	s.nextID++
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	s.schedules[schedule.ID] = *schedule
	return nil
}

// GetByID returns a schedule by id
func (s *ScheduleStore) GetByID(ctx context.Context, id int) (*models.ExportSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, domain.NewNotFoundError("schedule")
	}
	return &sched, nil
}

// Update persists schedule changes
func (s *ScheduleStore) Update(ctx context.Context, schedule *models.ExportSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[schedule.ID]; !ok {
		return domain.NewNotFoundError("schedule")
	}
	schedule.UpdatedAt = time.Now().UTC()
	s.schedules[schedule.ID] = *schedule
	return nil
}

// Delete removes a schedule and its execution history
func (s *ScheduleStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return domain.NewNotFoundError("schedule")
	}
	delete(s.schedules, id)

	if s.executions != nil {
		s.executions.deleteBySchedule(id)
	}
	return nil
}

// ListByOwner returns the owner's schedules ordered by id descending
func (s *ScheduleStore) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]models.ExportSchedule, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.ExportSchedule
	for _, sched := range s.schedules {
		if sched.OwnerID == ownerID {
			all = append(all, sched)
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

// Due returns active, unpaused schedules with next_run <= now or null,
// ordered by id for deterministic processing.
func (s *ScheduleStore) Due(ctx context.Context, now time.Time) ([]models.ExportSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []models.ExportSchedule
	for _, sched := range s.schedules {
		if !sched.IsActive || sched.IsPaused {
			continue
		}
		if sched.NextRun == nil || !sched.NextRun.After(now) {
			due = append(due, sched)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// SetNextRun updates only the next_run column
func (s *ScheduleStore) SetNextRun(ctx context.Context, id int, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return domain.NewNotFoundError("schedule")
	}
	sched.NextRun = nextRun
	sched.UpdatedAt = time.Now().UTC()
	s.schedules[id] = sched
	return nil
}

// RecordRun atomically applies run statistics for one completed execution
func (s *ScheduleStore) RecordRun(ctx context.Context, id int, success bool, lastRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return domain.NewNotFoundError("schedule")
	}
	sched.RunCount++
	if success {
		sched.SuccessCount++
	} else {
		sched.FailureCount++
	}
	sched.LastRun = &lastRun
	sched.UpdatedAt = time.Now().UTC()
	s.schedules[id] = sched
	return nil
}
