package task

import (
	"sync"
	"time"

	"github.com/memora-music/server/internal/module/paywall"
)

// Status is the lifecycle state of a generation task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Gate snapshots the paywall state captured when generation started.
// It is consulted once, when the task completes, to settle usage.
type Gate struct {
	Identity            paywall.Identity
	Records             []paywall.UsageRecord
	FreeSongsUsed       int
	UsageResolved       bool
	Unlimited           bool
	CreditTransactionID string
}

// Task tracks one music generation request. Tasks live in process
// memory only and are lost on restart.
type Task struct {
	ID        string
	Status    Status
	Title     string
	Style     string
	Lyrics    string
	AudioURLs []string
	Error     string
	Settled   bool
	Gate      Gate
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is an in-memory task registry with periodic cleanup of
// finished tasks past the retention window.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	retention time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewStore creates a task store. Tasks older than retention are
// removed by the cleanup loop once started.
func NewStore(retention time.Duration) *Store {
	return &Store{
		tasks:     make(map[string]*Task),
		retention: retention,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Put registers a task.
func (s *Store) Put(t *Task) {
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// Get returns a copy of the task, if present.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Update applies fn to the stored task under the lock.
func (s *Store) Update(id string, fn func(*Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	fn(t)
	t.UpdatedAt = s.now()
	return true
}

// Len returns the number of stored tasks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// StartCleanup launches the periodic cleanup loop.
func (s *Store) StartCleanup(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanup()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the cleanup loop and waits for it to exit.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// cleanup removes finished tasks past retention. Running tasks are
// kept regardless of age.
func (s *Store) cleanup() {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.Status != StatusCompleted && t.Status != StatusFailed {
			continue
		}
		if t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
		}
	}
}
