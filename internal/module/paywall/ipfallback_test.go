package paywall

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackRecorder_Counts(t *testing.T) {
	rec := NewFallbackRecorder()

	rec.RecordAttempt(7)
	rec.RecordAttempt(7)
	rec.RecordHit(7)
	rec.RecordAttempt(14)

	snapshot := rec.Snapshot()
	assert.EqualValues(t, 3, snapshot.TotalAttempts)
	assert.EqualValues(t, 1, snapshot.TotalHits)

	require.Contains(t, snapshot.ByTTLDays, "7")
	assert.EqualValues(t, 2, snapshot.ByTTLDays["7"].Attempts)
	assert.EqualValues(t, 1, snapshot.ByTTLDays["7"].Hits)
	assert.EqualValues(t, 1, snapshot.ByTTLDays["14"].Attempts)

	require.Len(t, snapshot.ByDay, 1)
	for _, counts := range snapshot.ByDay {
		assert.EqualValues(t, 3, counts.Attempts)
		assert.EqualValues(t, 1, counts.Hits)
	}
}

func TestFallbackRecorder_SnapshotIsCopy(t *testing.T) {
	rec := NewFallbackRecorder()
	rec.RecordAttempt(7)

	snapshot := rec.Snapshot()
	snapshot.ByTTLDays["7"] = FallbackCounts{Attempts: 99}

	assert.EqualValues(t, 1, rec.Snapshot().ByTTLDays["7"].Attempts)
}

func TestFallbackRecorder_ConcurrentAccess(t *testing.T) {
	rec := NewFallbackRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.RecordAttempt(7)
			rec.RecordHit(7)
		}()
	}
	wg.Wait()

	snapshot := rec.Snapshot()
	assert.EqualValues(t, 50, snapshot.TotalAttempts)
	assert.EqualValues(t, 50, snapshot.TotalHits)
}
