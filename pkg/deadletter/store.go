package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordanlanch/reportdb/pkg/cache"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
)

// maxErrorLen bounds the stored error message
const maxErrorLen = 1000

// Entry is one dead-lettered task as stored at rest. Args are sanitized;
// the original payload is retained separately for operator requeue.
type Entry struct {
	TaskID     string                 `json:"task_id"`
	TaskName   string                 `json:"task_name"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Error      string                 `json:"error"`
	FailedAt   time.Time              `json:"failed_at"`
	RetryCount int                    `json:"retry_count"`
}

// Store is the redis-backed dead-letter queue. Layout:
//
//	dlq:task:<id>    hash of entry fields
//	dlq:by_time      zset scored by failure time, drives eviction
//	dlq:by_name:<n>  set of task ids per task name
//	dlq:orig:<id>    original un-sanitized payload, for requeue only
//
// Entries expire after the retention window; the collection is capped and
// evicts oldest-first when full.
type Store struct {
	client     *cache.Client
	retention  time.Duration
	maxEntries int
	log        logger.Logger
}

// NewStore creates a dead-letter store
func NewStore(client *cache.Client, retention time.Duration, maxEntries int, log logger.Logger) *Store {
	return &Store{client: client, retention: retention, maxEntries: maxEntries, log: log}
}

const (
	taskKeyPrefix = "dlq:task:"
	origKeyPrefix = "dlq:orig:"
	nameKeyPrefix = "dlq:by_name:"
	timeIndexKey  = "dlq:by_time"
)

// Record persists one final task failure. Args are sanitized and the
// error truncated before they touch storage; originalPayload is kept
// verbatim under its own key so an operator requeue re-submits exactly
// what was originally enqueued.
func (s *Store) Record(ctx context.Context, taskName, taskID string, args map[string]interface{}, originalPayload []byte, taskErr error, retryCount int) error {
	now := time.Now().UTC()
	sanitized := SanitizeArgs(args)

	argsJSON, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("failed to encode dead-letter args: %w", err)
	}

	taskKey := taskKeyPrefix + taskID
	pipe := s.client.Redis.TxPipeline()
	pipe.HSet(ctx, taskKey, map[string]interface{}{
		"task_name":   taskName,
		"args":        string(argsJSON),
		"error":       Truncate(taskErr.Error(), maxErrorLen),
		"failed_at":   now.Format(time.RFC3339Nano),
		"retry_count": retryCount,
	})
	pipe.Expire(ctx, taskKey, s.retention)
	pipe.ZAdd(ctx, timeIndexKey, redis.Z{Score: float64(now.UnixNano()), Member: taskID})
	pipe.SAdd(ctx, nameKeyPrefix+taskName, taskID)
	pipe.Expire(ctx, nameKeyPrefix+taskName, s.retention)
	if len(originalPayload) > 0 {
		pipe.Set(ctx, origKeyPrefix+taskID, originalPayload, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record dead-letter entry: %w", err)
	}

	s.log.Error("task dead-lettered",
		"task_name", taskName,
		"task_id", taskID,
		"retry_count", retryCount)

	return s.evictOldest(ctx)
}

// evictOldest trims the collection to maxEntries, oldest first
func (s *Store) evictOldest(ctx context.Context) error {
	total, err := s.client.Redis.ZCard(ctx, timeIndexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to size dead-letter index: %w", err)
	}
	if total <= int64(s.maxEntries) {
		return nil
	}

	excess := total - int64(s.maxEntries)
	oldest, err := s.client.Redis.ZRange(ctx, timeIndexKey, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("failed to list oldest dead-letter entries: %w", err)
	}

	for _, taskID := range oldest {
		if err := s.Delete(ctx, taskID); err != nil {
			s.log.Warn("failed to evict dead-letter entry", "task_id", taskID, "error", err)
		}
	}
	s.log.Info("dead-letter queue trimmed", "evicted", len(oldest))
	return nil
}

// Get returns one entry by task id
func (s *Store) Get(ctx context.Context, taskID string) (*Entry, error) {
	fields, err := s.client.Redis.HGetAll(ctx, taskKeyPrefix+taskID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load dead-letter entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.NewNotFoundError("dead-letter entry")
	}

	entry := &Entry{
		TaskID:   taskID,
		TaskName: fields["task_name"],
		Error:    fields["error"],
	}
	if raw := fields["args"]; raw != "" {
		json.Unmarshal([]byte(raw), &entry.Args)
	}
	if raw := fields["failed_at"]; raw != "" {
		entry.FailedAt, _ = time.Parse(time.RFC3339Nano, raw)
	}
	if raw := fields["retry_count"]; raw != "" {
		entry.RetryCount, _ = strconv.Atoi(raw)
	}
	return entry, nil
}

// ListByName returns up to limit entries for one task name, newest first
func (s *Store) ListByName(ctx context.Context, taskName string, limit int) ([]Entry, error) {
	ids, err := s.client.Redis.SMembers(ctx, nameKeyPrefix+taskName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-letter ids: %w", err)
	}

	var entries []Entry
	for _, id := range ids {
		entry, err := s.Get(ctx, id)
		if err != nil {
			if domain.IsNotFound(err) {
				// hash expired but the name index lagged behind
				s.client.Redis.SRem(ctx, nameKeyPrefix+taskName, id)
				continue
			}
			return nil, err
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FailedAt.After(entries[j].FailedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// OriginalPayload returns the retained un-sanitized payload plus the task
// name, for operator-driven requeue. Sanitization is for at-rest storage,
// not for execution.
func (s *Store) OriginalPayload(ctx context.Context, taskID string) (string, []byte, error) {
	entry, err := s.Get(ctx, taskID)
	if err != nil {
		return "", nil, err
	}

	payload, err := s.client.Redis.Get(ctx, origKeyPrefix+taskID).Bytes()
	if err != nil {
		return "", nil, domain.NewNotFoundError("dead-letter payload")
	}
	return entry.TaskName, payload, nil
}

// Delete removes an entry and all its index references
func (s *Store) Delete(ctx context.Context, taskID string) error {
	taskName, err := s.client.Redis.HGet(ctx, taskKeyPrefix+taskID, "task_name").Result()
	if err == nil && taskName != "" {
		s.client.Redis.SRem(ctx, nameKeyPrefix+taskName, taskID)
	}

	pipe := s.client.Redis.TxPipeline()
	pipe.Del(ctx, taskKeyPrefix+taskID, origKeyPrefix+taskID)
	pipe.ZRem(ctx, timeIndexKey, taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete dead-letter entry: %w", err)
	}
	return nil
}

// Sweep drops index references whose hashes already expired. Run from the
// maintenance cron.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	ids, err := s.client.Redis.ZRange(ctx, timeIndexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan dead-letter index: %w", err)
	}

	removed := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, taskKeyPrefix+id)
		if err != nil {
			return removed, err
		}
		if !exists {
			s.client.Redis.ZRem(ctx, timeIndexKey, id)
			removed++
		}
	}
	return removed, nil
}
