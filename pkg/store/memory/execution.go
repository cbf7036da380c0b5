package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// ExecutionStore is an in-memory schedule execution history
type ExecutionStore struct {
	mu         sync.RWMutex
	executions map[int]models.ScheduleExecution
	nextID     int
}

// NewExecutionStore creates an empty in-memory execution store
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{executions: make(map[int]models.ScheduleExecution), nextID: 1}
}

// Create persists a new execution row and assigns its id
func (s *ExecutionStore) Create(ctx context.Context, execution *models.ScheduleExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	execution.ID = s.nextID
	s.nextID++
	s.executions[execution.ID] = *execution
	return nil
}

// Update persists execution changes
func (s *ExecutionStore) Update(ctx context.Context, execution *models.ScheduleExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[execution.ID]; !ok {
		return domain.NewNotFoundError("execution")
	}
	s.executions[execution.ID] = *execution
	return nil
}

// GetByID returns an execution by id
func (s *ExecutionStore) GetByID(ctx context.Context, id int) (*models.ScheduleExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, domain.NewNotFoundError("execution")
	}
	return &e, nil
}

// GetByTaskID returns the execution created for a worker task
func (s *ExecutionStore) GetByTaskID(ctx context.Context, taskID string) (*models.ScheduleExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.executions {
		if e.TaskID == taskID {
			out := e
			return &out, nil
		}
	}
	return nil, domain.NewNotFoundError("execution")
}

// ListBySchedule returns a schedule's executions, newest first
func (s *ExecutionStore) ListBySchedule(ctx context.Context, scheduleID, limit, offset int) ([]models.ScheduleExecution, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []models.ScheduleExecution
	for _, e := range s.executions {
		if e.ScheduleID == scheduleID {
			all = append(all, e)
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

// deleteBySchedule removes all executions for a schedule (cascade delete)
func (s *ExecutionStore) deleteBySchedule(scheduleID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.executions {
		if e.ScheduleID == scheduleID {
			delete(s.executions, id)
		}
	}
}
