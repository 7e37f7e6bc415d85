package task

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetUpdate(t *testing.T) {
	store := NewStore(time.Hour)

	store.Put(&Task{ID: "t1", Status: StatusPending, Title: "Aniversário da Ana"})

	got, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	updated := store.Update("t1", func(task *Task) {
		task.Status = StatusCompleted
		task.AudioURLs = []string{"https://cdn.example.com/a.mp3"}
	})
	assert.True(t, updated)

	got, _ = store.Get("t1")
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Len(t, got.AudioURLs, 1)

	_, ok = store.Get("missing")
	assert.False(t, ok)
	assert.False(t, store.Update("missing", func(*Task) {}))
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store := NewStore(time.Hour)
	store.Put(&Task{ID: "t1", Status: StatusPending})

	got, _ := store.Get("t1")
	got.Status = StatusFailed

	fresh, _ := store.Get("t1")
	assert.Equal(t, StatusPending, fresh.Status)
}

func TestStore_CleanupRemovesOnlyFinishedExpiredTasks(t *testing.T) {
	store := NewStore(time.Hour)
	current := time.Now()
	store.now = func() time.Time { return current }

	store.Put(&Task{ID: "old-done", Status: StatusCompleted})
	store.Put(&Task{ID: "old-running", Status: StatusProcessing})

	current = current.Add(2 * time.Hour)
	store.Put(&Task{ID: "fresh-done", Status: StatusFailed})
	store.cleanup()

	_, ok := store.Get("old-done")
	assert.False(t, ok, "expired finished task should be removed")
	_, ok = store.Get("old-running")
	assert.True(t, ok, "running task is kept regardless of age")
	_, ok = store.Get("fresh-done")
	assert.True(t, ok, "finished task inside retention is kept")
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", n)
			store.Put(&Task{ID: id, Status: StatusPending})
			store.Update(id, func(task *Task) { task.Status = StatusCompleted })
			store.Get(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, store.Len())
}

func TestStore_StopIsIdempotent(t *testing.T) {
	store := NewStore(time.Hour)
	store.StartCleanup(time.Millisecond)
	store.Stop()
	store.Stop()
}
