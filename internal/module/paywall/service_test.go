package paywall

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memora-music/server/internal/shared/config"
)

func strPtr(s string) *string { return &s }

type usageUpdate struct {
	recordID   string
	count      int
	userID     *string
	lastUsedIP *string
}

type stubRepository struct {
	mu sync.Mutex

	records     []UsageRecord
	findErr     error
	findCalls   int
	byIP        *UsageRecord
	byIPErr     error
	byIPCalls   int
	updates     []usageUpdate
	setUsageErr error
	existing    *UsageRecord
	ensured     []UsageRecord
	ensureErr   error
}

func (r *stubRepository) FindByIdentity(_ context.Context, identity Identity) ([]UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.records, nil
}

func (r *stubRepository) FindRecentByIP(_ context.Context, ip string, _ time.Time) (*UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byIPCalls++
	return r.byIP, r.byIPErr
}

func (r *stubRepository) SetUsage(_ context.Context, recordID string, count int, userID, lastUsedIP *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, usageUpdate{recordID, count, userID, lastUsedIP})
	return r.setUsageErr
}

func (r *stubRepository) EnsureByDevice(_ context.Context, deviceID string, attrs UsageRecord) (*UsageRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensureErr != nil {
		return nil, false, r.ensureErr
	}
	if r.existing != nil {
		return r.existing, false, nil
	}
	r.ensured = append(r.ensured, attrs)
	created := attrs
	created.ID = "created-" + deviceID
	return &created, true, nil
}

func (r *stubRepository) ResetUsageByUserID(context.Context, string) (int64, error)   { return 0, nil }
func (r *stubRepository) ResetUsageByDeviceID(context.Context, string) (int64, error) { return 0, nil }
func (r *stubRepository) ResetUsageByIP(context.Context, string) (int64, error)       { return 0, nil }

type stubCreditStore struct {
	mu sync.Mutex

	credit       *Credit
	findErr      error
	findCalls    int
	consumptions []*CreditConsumption
	consumeErr   error
	consumeCalls int
}

func (s *stubCreditStore) FindActiveCredit(_ context.Context, _ string, _ []string) (*Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	return s.credit, s.findErr
}

func (s *stubCreditStore) ConsumeCredit(_ context.Context, _ string) (*CreditConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	var row *CreditConsumption
	if s.consumeCalls < len(s.consumptions) {
		row = s.consumptions[s.consumeCalls]
	}
	s.consumeCalls++
	return row, nil
}

func newTestService(repo *stubRepository, credits *stubCreditStore) *Service {
	return NewService(repo, credits, NewFallbackRecorder(), &config.PaywallConfig{
		FreeSongLimit:     1,
		IPFallbackTTLDays: 7,
		IPFallbackEnabled: true,
	}, zap.NewNop())
}

func TestResolveFreeUsage_EmptyIdentityIssuesNoQuery(t *testing.T) {
	repo := &stubRepository{}
	svc := newTestService(repo, &stubCreditStore{})

	usage, err := svc.ResolveFreeUsage(context.Background(), NewIdentity("", "1.2.3.4"))
	require.NoError(t, err)
	assert.Empty(t, usage.Records)
	assert.Nil(t, usage.Primary)
	assert.Zero(t, usage.MaxFreeSongs)
	assert.Zero(t, repo.findCalls)
}

func TestResolveFreeUsage_MaxAcrossRecords(t *testing.T) {
	repo := &stubRepository{records: []UsageRecord{
		{ID: "a", DeviceID: strPtr("dev-1"), FreeSongsUsed: 0},
		{ID: "b", DeviceID: strPtr("dev-2"), FreeSongsUsed: 2},
		{ID: "c", DeviceID: strPtr("dev-3"), FreeSongsUsed: 1},
	}}
	svc := newTestService(repo, &stubCreditStore{})

	usage, err := svc.ResolveFreeUsage(context.Background(), NewIdentity("", "", "dev-1", "dev-2", "dev-3"))
	require.NoError(t, err)
	assert.Equal(t, 2, usage.MaxFreeSongs)
	assert.Len(t, usage.Records, 3)
}

func TestResolveFreeUsage_PrimarySelection(t *testing.T) {
	now := time.Now()
	userRec := UsageRecord{ID: "u", UserID: strPtr("user-1"), UpdatedAt: now.Add(-time.Hour)}
	devRec := UsageRecord{ID: "d", DeviceID: strPtr("dev-1"), UpdatedAt: now.Add(-time.Minute)}
	staleRec := UsageRecord{ID: "s", DeviceID: strPtr("dev-other"), UpdatedAt: now}

	tests := []struct {
		name     string
		records  []UsageRecord
		identity Identity
		wantID   string
	}{
		{
			name:     "user record wins over device record",
			records:  []UsageRecord{devRec, userRec},
			identity: NewIdentity("user-1", "", "dev-1"),
			wantID:   "u",
		},
		{
			name:     "device record wins over most recent",
			records:  []UsageRecord{staleRec, devRec},
			identity: NewIdentity("", "", "dev-1"),
			wantID:   "d",
		},
		{
			name:     "most recently updated as last resort",
			records:  []UsageRecord{devRec, staleRec},
			identity: NewIdentity("user-2", "", "dev-unknown"),
			wantID:   "s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepository{records: tt.records}
			svc := newTestService(repo, &stubCreditStore{})

			usage, err := svc.ResolveFreeUsage(context.Background(), tt.identity)
			require.NoError(t, err)
			require.NotNil(t, usage.Primary)
			assert.Equal(t, tt.wantID, usage.Primary.ID)
		})
	}
}

func TestResolveFreeUsage_ErrorPropagates(t *testing.T) {
	repo := &stubRepository{findErr: errors.New("connection reset")}
	svc := newTestService(repo, &stubCreditStore{})

	_, err := svc.ResolveFreeUsage(context.Background(), NewIdentity("user-1", ""))
	assert.Error(t, err)
}

func TestHasUnlimitedAccess(t *testing.T) {
	t.Run("empty identity issues no query", func(t *testing.T) {
		credits := &stubCreditStore{credit: &Credit{TransactionID: "tx-1"}}
		svc := newTestService(&stubRepository{}, credits)

		has, credit := svc.HasUnlimitedAccess(context.Background(), NewIdentity("", "1.2.3.4"))
		assert.False(t, has)
		assert.Nil(t, credit)
		assert.Zero(t, credits.findCalls)
	})

	t.Run("active credit grants access", func(t *testing.T) {
		credits := &stubCreditStore{credit: &Credit{TransactionID: "tx-1", AvailableCredits: 1}}
		svc := newTestService(&stubRepository{}, credits)

		has, credit := svc.HasUnlimitedAccess(context.Background(), NewIdentity("user-1", ""))
		assert.True(t, has)
		require.NotNil(t, credit)
		assert.Equal(t, "tx-1", credit.TransactionID)
	})

	t.Run("no credit means no access", func(t *testing.T) {
		svc := newTestService(&stubRepository{}, &stubCreditStore{})
		has, _ := svc.HasUnlimitedAccess(context.Background(), NewIdentity("user-1", ""))
		assert.False(t, has)
	})

	t.Run("lookup error fails closed", func(t *testing.T) {
		credits := &stubCreditStore{findErr: errors.New("timeout")}
		svc := newTestService(&stubRepository{}, credits)

		has, credit := svc.HasUnlimitedAccess(context.Background(), NewIdentity("user-1", ""))
		assert.False(t, has)
		assert.Nil(t, credit)
	})
}

func TestConsumeCredit_SecondCallSoftFails(t *testing.T) {
	credits := &stubCreditStore{consumptions: []*CreditConsumption{
		{RemainingCredits: 0},
		nil,
	}}
	svc := newTestService(&stubRepository{}, credits)

	first, err := svc.ConsumeCredit(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := svc.ConsumeCredit(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Zero(t, second.RemainingCredits)
}

func TestConsumeCredit_StoreErrorPropagates(t *testing.T) {
	credits := &stubCreditStore{consumeErr: errors.New("proc failed")}
	svc := newTestService(&stubRepository{}, credits)

	_, err := svc.ConsumeCredit(context.Background(), "tx-1")
	assert.Error(t, err)
}

func TestSyncUsageRecords(t *testing.T) {
	repo := &stubRepository{}
	svc := newTestService(repo, &stubCreditStore{})

	records := []UsageRecord{
		{ID: "a", DeviceID: strPtr("dev-1"), UserID: strPtr("user-1")},
		{ID: "b", UserID: strPtr("user-1")}, // no device id, skipped
		{ID: "c", DeviceID: strPtr("dev-2")},
	}

	svc.SyncUsageRecords(records, 3, SyncOptions{UserID: "user-1", LastUsedIP: "1.2.3.4"})
	svc.Wait()

	require.Len(t, repo.updates, 2)
	byRecord := map[string]usageUpdate{}
	for _, u := range repo.updates {
		byRecord[u.recordID] = u
	}

	// Record already owned by user-1 keeps its user id untouched.
	a := byRecord["a"]
	assert.Equal(t, 3, a.count)
	assert.Nil(t, a.userID)
	require.NotNil(t, a.lastUsedIP)
	assert.Equal(t, "1.2.3.4", *a.lastUsedIP)

	// Unowned device record gets the user id attached.
	c := byRecord["c"]
	require.NotNil(t, c.userID)
	assert.Equal(t, "user-1", *c.userID)
}

func TestSyncUsageRecords_FailuresNotSurfaced(t *testing.T) {
	repo := &stubRepository{setUsageErr: errors.New("write failed")}
	svc := newTestService(repo, &stubCreditStore{})

	svc.SyncUsageRecords([]UsageRecord{{ID: "a", DeviceID: strPtr("dev-1")}}, 1, SyncOptions{})
	svc.Wait()

	assert.Len(t, repo.updates, 1)
}

func TestCreateUsageRecord(t *testing.T) {
	t.Run("creates for the first device id", func(t *testing.T) {
		repo := &stubRepository{}
		svc := newTestService(repo, &stubCreditStore{})

		err := svc.CreateUsageRecord(context.Background(), NewIdentity("user-1", "1.2.3.4", "dev-1", "guest-1"), 1)
		require.NoError(t, err)

		require.Len(t, repo.ensured, 1)
		attrs := repo.ensured[0]
		require.NotNil(t, attrs.DeviceID)
		assert.Equal(t, "dev-1", *attrs.DeviceID)
		require.NotNil(t, attrs.UserID)
		assert.Equal(t, "user-1", *attrs.UserID)
		require.NotNil(t, attrs.LastUsedIP)
		assert.Equal(t, "1.2.3.4", *attrs.LastUsedIP)
		assert.Equal(t, 1, attrs.FreeSongsUsed)
		assert.Equal(t, 1, attrs.Creations)
		assert.Empty(t, repo.updates)
	})

	t.Run("identity without device id is skipped", func(t *testing.T) {
		repo := &stubRepository{}
		svc := newTestService(repo, &stubCreditStore{})

		err := svc.CreateUsageRecord(context.Background(), NewIdentity("user-1", "1.2.3.4"), 1)
		require.NoError(t, err)
		assert.Empty(t, repo.ensured)
	})

	t.Run("racing creation folds the song into the existing row", func(t *testing.T) {
		repo := &stubRepository{existing: &UsageRecord{ID: "r1", DeviceID: strPtr("dev-1"), FreeSongsUsed: 1}}
		svc := newTestService(repo, &stubCreditStore{})

		err := svc.CreateUsageRecord(context.Background(), NewIdentity("", "1.2.3.4", "dev-1"), 1)
		require.NoError(t, err)
		svc.Wait()

		assert.Empty(t, repo.ensured)
		require.Len(t, repo.updates, 1)
		assert.Equal(t, "r1", repo.updates[0].recordID)
		assert.Equal(t, 2, repo.updates[0].count)
	})

	t.Run("store error propagates", func(t *testing.T) {
		repo := &stubRepository{ensureErr: errors.New("insert failed")}
		svc := newTestService(repo, &stubCreditStore{})

		err := svc.CreateUsageRecord(context.Background(), NewIdentity("", "", "dev-1"), 1)
		assert.Error(t, err)
	})
}

func TestCreationStatus_NewDevice(t *testing.T) {
	svc := newTestService(&stubRepository{}, &stubCreditStore{})

	decision := svc.CreationStatus(context.Background(), NewIdentity("", "", "dev-new"))
	assert.True(t, decision.IsFree)
	assert.Zero(t, decision.FreeSongsUsed)
	assert.Equal(t, UserTypeNewGuestDevice, decision.UserType)
}

func TestCreationStatus_LimitReached(t *testing.T) {
	repo := &stubRepository{records: []UsageRecord{
		{ID: "a", DeviceID: strPtr("dev-1"), FreeSongsUsed: 1},
	}}
	svc := newTestService(repo, &stubCreditStore{})

	decision := svc.CreationStatus(context.Background(), NewIdentity("", "", "dev-1"))
	assert.False(t, decision.IsFree)
	assert.Equal(t, 1, decision.FreeSongsUsed)
	assert.Equal(t, MsgNextSongPaid, decision.Message)
}

func TestCreationStatus_UnlimitedOverridesCounter(t *testing.T) {
	repo := &stubRepository{records: []UsageRecord{
		{ID: "a", DeviceID: strPtr("dev-1"), FreeSongsUsed: 5},
	}}
	credits := &stubCreditStore{credit: &Credit{TransactionID: "tx-1", AvailableCredits: 1}}
	svc := newTestService(repo, credits)

	decision := svc.CreationStatus(context.Background(), NewIdentity("", "", "dev-1"))
	assert.True(t, decision.IsFree)
	assert.True(t, decision.HasUnlimitedAccess)
	assert.Equal(t, 5, decision.FreeSongsUsed)
}

func TestCreationStatus_FailOpenOnLookupError(t *testing.T) {
	repo := &stubRepository{findErr: errors.New("db down")}
	svc := newTestService(repo, &stubCreditStore{})

	decision := svc.CreationStatus(context.Background(), NewIdentity("user-1", ""))
	assert.True(t, decision.IsFree)
	assert.Zero(t, decision.FreeSongsUsed)
}

func TestCreationStatus_IPFallback(t *testing.T) {
	t.Run("recent record by ip is used", func(t *testing.T) {
		repo := &stubRepository{byIP: &UsageRecord{ID: "x", DeviceID: strPtr("other"), FreeSongsUsed: 1}}
		svc := newTestService(repo, &stubCreditStore{})

		decision := svc.CreationStatus(context.Background(), NewIdentity("", "9.9.9.9", "dev-unknown"))
		assert.False(t, decision.IsFree)
		assert.Equal(t, 1, decision.FreeSongsUsed)
		assert.Equal(t, UserTypeIPFallback, decision.UserType)

		snapshot := svc.FallbackMetrics()
		assert.EqualValues(t, 1, snapshot.TotalAttempts)
		assert.EqualValues(t, 1, snapshot.TotalHits)
	})

	t.Run("no ip match falls through to new device", func(t *testing.T) {
		svc := newTestService(&stubRepository{}, &stubCreditStore{})

		decision := svc.CreationStatus(context.Background(), NewIdentity("", "9.9.9.9", "dev-unknown"))
		assert.True(t, decision.IsFree)
		assert.Equal(t, UserTypeNewGuestDevice, decision.UserType)

		snapshot := svc.FallbackMetrics()
		assert.EqualValues(t, 1, snapshot.TotalAttempts)
		assert.EqualValues(t, 0, snapshot.TotalHits)
	})

	t.Run("fallback can be disabled", func(t *testing.T) {
		repo := &stubRepository{byIP: &UsageRecord{ID: "x", FreeSongsUsed: 1}}
		svc := NewService(repo, &stubCreditStore{}, NewFallbackRecorder(), &config.PaywallConfig{
			FreeSongLimit:     1,
			IPFallbackTTLDays: 7,
			IPFallbackEnabled: false,
		}, zap.NewNop())

		decision := svc.CreationStatus(context.Background(), NewIdentity("", "9.9.9.9", "dev-unknown"))
		assert.Equal(t, UserTypeNewGuestDevice, decision.UserType)
		assert.Zero(t, repo.byIPCalls)
	})
}

func TestNewIdentity_Normalization(t *testing.T) {
	identity := NewIdentity(" user-1 ", " 1.2.3.4 ", " dev-1 ", "dev-1", "", "  ", "guest-1")
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "1.2.3.4", identity.ClientIP)
	assert.Equal(t, []string{"dev-1", "guest-1"}, identity.DeviceIDs)
	assert.False(t, identity.IsEmpty())

	assert.True(t, NewIdentity("", "1.2.3.4").IsEmpty())
}
