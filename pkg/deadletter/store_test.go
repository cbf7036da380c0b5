package deadletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/reportdb/pkg/cache"
	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
)

func setupStore(t *testing.T, maxEntries int) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := &cache.Client{Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })

	return NewStore(client, 30*24*time.Hour, maxEntries, logger.New("error")), mr
}

func TestRecordSanitizesSensitiveArgs(t *testing.T) {
	store, _ := setupStore(t, 100)
	ctx := context.Background()

	args := map[string]interface{}{
		"schedule_id":    42,
		"smtp_password":  "hunter2",
		"webhook_secret": "shhh",
		"nested": map[string]interface{}{
			"api_token": "abc123",
			"note":      "plain",
		},
	}
	err := store.Record(ctx, "schedule:execute", "task-1", args, []byte(`{"schedule_id":42}`), errors.New("boom"), 5)
	require.NoError(t, err)

	entry, err := store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "schedule:execute", entry.TaskName)
	assert.Equal(t, "boom", entry.Error)
	assert.Equal(t, 5, entry.RetryCount)
	assert.Equal(t, "[REDACTED]", entry.Args["smtp_password"])
	assert.Equal(t, "[REDACTED]", entry.Args["webhook_secret"])

	nested, ok := entry.Args["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", nested["api_token"])
	assert.Equal(t, "plain", nested["note"])

	raw := fmt.Sprintf("%v", entry.Args)
	assert.NotContains(t, raw, "hunter2")
	assert.NotContains(t, raw, "shhh")
	assert.NotContains(t, raw, "abc123")
}

func TestRecordTruncatesLongValues(t *testing.T) {
	store, _ := setupStore(t, 100)
	ctx := context.Background()

	long := strings.Repeat("x", 500)
	err := store.Record(ctx, "export:generate", "task-2",
		map[string]interface{}{"description": long},
		nil, errors.New(strings.Repeat("e", 2000)), 2)
	require.NoError(t, err)

	entry, err := store.Get(ctx, "task-2")
	require.NoError(t, err)

	desc := entry.Args["description"].(string)
	assert.Contains(t, desc, "...(truncated)")
	assert.Len(t, desc, maxStringLen+len("...(truncated)"))
	assert.Contains(t, entry.Error, "...(truncated)")
	assert.LessOrEqual(t, len(entry.Error), maxErrorLen+len("...(truncated)"))
}

func TestRecordSetsRetention(t *testing.T) {
	store, mr := setupStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "schedule:execute", "task-3", nil, []byte("{}"), errors.New("boom"), 1))

	ttl := mr.TTL("dlq:task:task-3")
	assert.Greater(t, ttl, 29*24*time.Hour)
	assert.Greater(t, mr.TTL("dlq:orig:task-3"), 29*24*time.Hour)

	mr.FastForward(31 * 24 * time.Hour)

	_, err := store.Get(ctx, "task-3")
	assert.True(t, domain.IsNotFound(err))
}

func TestEvictOldestBeyondCap(t *testing.T) {
	store, _ := setupStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("task-%d", i)
		require.NoError(t, store.Record(ctx, "schedule:execute", id, nil, nil, errors.New("boom"), 1))
		time.Sleep(time.Millisecond)
	}

	_, err := store.Get(ctx, "task-0")
	assert.True(t, domain.IsNotFound(err), "oldest entry is evicted")
	_, err = store.Get(ctx, "task-1")
	assert.True(t, domain.IsNotFound(err))

	for i := 2; i < 5; i++ {
		_, err := store.Get(ctx, fmt.Sprintf("task-%d", i))
		assert.NoError(t, err, "task-%d survives", i)
	}
}

func TestListByName(t *testing.T) {
	store, _ := setupStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "schedule:execute", "s-1", nil, nil, errors.New("a"), 1))
	time.Sleep(time.Millisecond)
	require.NoError(t, store.Record(ctx, "schedule:execute", "s-2", nil, nil, errors.New("b"), 1))
	require.NoError(t, store.Record(ctx, "export:generate", "e-1", nil, nil, errors.New("c"), 1))

	entries, err := store.ListByName(ctx, "schedule:execute", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s-2", entries[0].TaskID, "newest first")
	assert.Equal(t, "s-1", entries[1].TaskID)

	entries, err = store.ListByName(ctx, "export:generate", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e-1", entries[0].TaskID)
}

func TestOriginalPayloadForRequeue(t *testing.T) {
	store, _ := setupStore(t, 100)
	ctx := context.Background()

	payload := []byte(`{"schedule_id":7,"smtp_password":"hunter2"}`)
	require.NoError(t, store.Record(ctx, "schedule:execute", "task-7",
		map[string]interface{}{"smtp_password": "hunter2"},
		payload, errors.New("boom"), 5))

	name, got, err := store.OriginalPayload(ctx, "task-7")
	require.NoError(t, err)
	assert.Equal(t, "schedule:execute", name)
	assert.Equal(t, payload, got, "requeue uses the un-sanitized payload")
}

func TestDeleteRemovesAllKeys(t *testing.T) {
	store, mr := setupStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "schedule:execute", "task-9", nil, []byte("{}"), errors.New("boom"), 1))
	require.NoError(t, store.Delete(ctx, "task-9"))

	assert.False(t, mr.Exists("dlq:task:task-9"))
	assert.False(t, mr.Exists("dlq:orig:task-9"))

	entries, err := store.ListByName(ctx, "schedule:execute", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweepDropsExpiredIndexEntries(t *testing.T) {
	store, mr := setupStore(t, 100)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "schedule:execute", "task-10", nil, nil, errors.New("boom"), 1))

	// expire the hash while the zset index lingers
	mr.Del("dlq:task:task-10")

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestGetMissingEntry(t *testing.T) {
	store, _ := setupStore(t, 100)

	_, err := store.Get(context.Background(), "nope")
	assert.True(t, domain.IsNotFound(err))
}
