package paywall

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memora-music/server/internal/shared/config"
	"github.com/memora-music/server/internal/utils/metrics"
)

// User-facing messages, shown verbatim by the frontend.
const (
	MsgFirstSongFree   = "Primeira música é gratuita"
	MsgNextSongFree    = "Próxima música é gratuita"
	MsgNextSongPaid    = "Próxima música será paga"
	MsgUnlimitedAccess = "Você possui acesso ilimitado"
)

// User type labels returned by the creation-status endpoint.
const (
	UserTypeAuthenticated  = "authenticated"
	UserTypeGuestDevice    = "guest_device"
	UserTypeIPFallback     = "ip_fallback"
	UserTypeNewGuestDevice = "new_guest_device"
)

// Credit is an active paid entitlement found for an identity.
type Credit struct {
	TransactionID    string
	PaymentIntentID  string
	AvailableCredits int
}

// CreditConsumption is the result row of the atomic consume operation.
type CreditConsumption struct {
	RemainingCredits int
}

// CreditStore is the paywall's view of the payment module. Active
// credit lookup matches user_id, metadata user id and metadata device
// ids; consumption is atomic on the store side.
type CreditStore interface {
	FindActiveCredit(ctx context.Context, userID string, deviceIDs []string) (*Credit, error)
	ConsumeCredit(ctx context.Context, transactionID string) (*CreditConsumption, error)
}

// Usage is the outcome of resolving free-tier usage for an identity.
type Usage struct {
	Records      []UsageRecord
	Primary      *UsageRecord
	MaxFreeSongs int
}

// Decision is the creation-status verdict for one request.
type Decision struct {
	IsFree             bool
	FreeSongsUsed      int
	Message            string
	UserType           string
	HasUnlimitedAccess bool
}

// ConsumeResult reports a credit consumption attempt. A soft failure
// (Success false) means the credit was already consumed, an expected
// outcome under concurrent requests.
type ConsumeResult struct {
	Success          bool
	RemainingCredits int
}

// SyncOptions carries optional fields written back during usage sync.
type SyncOptions struct {
	UserID     string
	LastUsedIP string
}

// Service implements the freemium gating logic.
type Service struct {
	repo     Repository
	credits  CreditStore
	recorder FallbackRecorder
	logger   *zap.Logger

	freeSongLimit     int
	ipFallbackTTL     time.Duration
	ipFallbackTTLDays int
	ipFallbackEnabled bool

	syncTimeout time.Duration
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewService creates the paywall service.
func NewService(repo Repository, credits CreditStore, recorder FallbackRecorder, cfg *config.PaywallConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:              repo,
		credits:           credits,
		recorder:          recorder,
		logger:            logger,
		freeSongLimit:     cfg.FreeSongLimit,
		ipFallbackTTL:     time.Duration(cfg.IPFallbackTTLDays) * 24 * time.Hour,
		ipFallbackTTLDays: cfg.IPFallbackTTLDays,
		ipFallbackEnabled: cfg.IPFallbackEnabled,
		syncTimeout:       10 * time.Second,
		now:               time.Now,
	}
}

// ResolveFreeUsage finds all usage records matching the identity and
// selects a primary record plus the authoritative usage count. Query
// errors propagate; the caller decides how to degrade.
func (s *Service) ResolveFreeUsage(ctx context.Context, identity Identity) (*Usage, error) {
	if identity.IsEmpty() {
		return &Usage{Records: []UsageRecord{}}, nil
	}

	records, err := s.repo.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	usage := &Usage{Records: records}
	for i := range records {
		if records[i].FreeSongsUsed > usage.MaxFreeSongs {
			usage.MaxFreeSongs = records[i].FreeSongsUsed
		}
	}
	usage.Primary = selectPrimary(records, identity)
	return usage, nil
}

// selectPrimary picks the record that best represents the caller:
// the user's own record first, then a record for a supplied device,
// then the most recently updated match.
func selectPrimary(records []UsageRecord, identity Identity) *UsageRecord {
	if len(records) == 0 {
		return nil
	}

	if identity.UserID != "" {
		for i := range records {
			if records[i].UserID != nil && *records[i].UserID == identity.UserID {
				return &records[i]
			}
		}
	}

	for i := range records {
		if records[i].HasDevice() && identity.HasDevice(*records[i].DeviceID) {
			return &records[i]
		}
	}

	newest := &records[0]
	for i := range records {
		if records[i].UpdatedAt.After(newest.UpdatedAt) {
			newest = &records[i]
		}
	}
	return newest
}

// HasUnlimitedAccess reports whether the identity holds an active paid
// credit. Lookup errors are logged and reported as no access; an error
// must never unlock unlimited access.
func (s *Service) HasUnlimitedAccess(ctx context.Context, identity Identity) (bool, *Credit) {
	if identity.IsEmpty() {
		return false, nil
	}

	credit, err := s.credits.FindActiveCredit(ctx, identity.UserID, identity.DeviceIDs)
	if err != nil {
		s.logger.Error("unlimited access lookup failed",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		return false, nil
	}
	if credit == nil {
		return false, nil
	}
	return true, credit
}

// ConsumeCredit marks one paid credit as consumed. A missing result
// row means a racing request consumed it first; that is reported as a
// soft failure, not an error.
func (s *Service) ConsumeCredit(ctx context.Context, transactionID string) (ConsumeResult, error) {
	consumption, err := s.credits.ConsumeCredit(ctx, transactionID)
	if err != nil {
		metrics.RecordCreditConsume("error")
		return ConsumeResult{}, err
	}
	if consumption == nil {
		s.logger.Warn("credit consume returned no row, possible double-use",
			zap.String("transaction_id", transactionID))
		metrics.RecordCreditConsume("exhausted")
		return ConsumeResult{Success: false, RemainingCredits: 0}, nil
	}

	metrics.RecordCreditConsume("consumed")
	return ConsumeResult{Success: true, RemainingCredits: consumption.RemainingCredits}, nil
}

// SyncUsageRecords writes newCount back to every device-addressable
// record, concurrently and best-effort. Failures are logged, never
// surfaced. Records without a device id are skipped.
func (s *Service) SyncUsageRecords(records []UsageRecord, newCount int, opts SyncOptions) {
	for i := range records {
		rec := records[i]
		if !rec.HasDevice() {
			continue
		}

		var userID *string
		if opts.UserID != "" && (rec.UserID == nil || *rec.UserID != opts.UserID) {
			userID = &opts.UserID
		}
		var lastUsedIP *string
		if opts.LastUsedIP != "" {
			lastUsedIP = &opts.LastUsedIP
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
			defer cancel()

			if err := s.repo.SetUsage(ctx, rec.ID, newCount, userID, lastUsedIP); err != nil {
				s.logger.Warn("usage sync failed",
					zap.String("record_id", rec.ID),
					zap.Int("new_count", newCount),
					zap.Error(err))
			}
		}()
	}
}

// CreateUsageRecord inserts the first usage record for an identity
// that matched no existing rows, keyed on its first device id.
// Identities without a device id are not trackable and are skipped.
// When a racing settle created the row first, the song is folded into
// it instead of inserting a duplicate.
func (s *Service) CreateUsageRecord(ctx context.Context, identity Identity, count int) error {
	if len(identity.DeviceIDs) == 0 {
		return nil
	}
	deviceID := identity.DeviceIDs[0]

	attrs := UsageRecord{
		DeviceID:      &deviceID,
		FreeSongsUsed: count,
		Creations:     1,
	}
	if identity.UserID != "" {
		userID := identity.UserID
		attrs.UserID = &userID
	}
	if identity.ClientIP != "" {
		ip := identity.ClientIP
		attrs.LastUsedIP = &ip
	}

	record, created, err := s.repo.EnsureByDevice(ctx, deviceID, attrs)
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("usage record created",
			zap.String("device_id", deviceID),
			zap.String("user_id", identity.UserID),
			zap.Int("free_songs_used", count))
		return nil
	}

	s.SyncUsageRecords([]UsageRecord{*record}, record.FreeSongsUsed+1, SyncOptions{
		UserID:     identity.UserID,
		LastUsedIP: identity.ClientIP,
	})
	return nil
}

// Wait blocks until all in-flight usage syncs finish. Used on shutdown
// and in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// CreationStatus decides whether the next song is free. States are
// evaluated in strict priority order; every branch is terminal.
func (s *Service) CreationStatus(ctx context.Context, identity Identity) Decision {
	baseType := UserTypeGuestDevice
	if identity.UserID != "" {
		baseType = UserTypeAuthenticated
	}

	usage, err := s.ResolveFreeUsage(ctx, identity)
	if err != nil {
		// Fail open: a transient lookup error must not block a
		// user's first free song.
		s.logger.Error("usage resolution failed, treating as free",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
		metrics.RecordCreationStatus("error_fail_open")
		return Decision{
			IsFree:        true,
			FreeSongsUsed: 0,
			Message:       MsgFirstSongFree,
			UserType:      baseType,
		}
	}

	if usage.Primary != nil {
		if hasAccess, _ := s.HasUnlimitedAccess(ctx, identity); hasAccess {
			metrics.RecordCreationStatus("unlimited")
			return Decision{
				IsFree:             true,
				FreeSongsUsed:      usage.MaxFreeSongs,
				Message:            MsgUnlimitedAccess,
				UserType:           baseType,
				HasUnlimitedAccess: true,
			}
		}

		if usage.MaxFreeSongs < s.freeSongLimit {
			metrics.RecordCreationStatus("within_limit")
			return Decision{
				IsFree:        true,
				FreeSongsUsed: usage.MaxFreeSongs,
				Message:       MsgNextSongFree,
				UserType:      baseType,
			}
		}

		metrics.RecordCreationStatus("limit_reached")
		return Decision{
			IsFree:        false,
			FreeSongsUsed: usage.MaxFreeSongs,
			Message:       MsgNextSongPaid,
			UserType:      baseType,
		}
	}

	// No record matched the identity. An active credit still grants
	// access even when no usage row was ever created.
	if hasAccess, _ := s.HasUnlimitedAccess(ctx, identity); hasAccess {
		metrics.RecordCreationStatus("unlimited")
		return Decision{
			IsFree:             true,
			FreeSongsUsed:      0,
			Message:            MsgUnlimitedAccess,
			UserType:           baseType,
			HasUnlimitedAccess: true,
		}
	}

	if decision, ok := s.ipFallback(ctx, identity); ok {
		return decision
	}

	metrics.RecordCreationStatus("new_device")
	return Decision{
		IsFree:        true,
		FreeSongsUsed: 0,
		Message:       MsgFirstSongFree,
		UserType:      UserTypeNewGuestDevice,
	}
}

// ipFallback looks up recent usage by client IP. Distinct guests
// behind one IP share state within the TTL window; that is an
// accepted anti-abuse trade-off and can be disabled per deployment.
func (s *Service) ipFallback(ctx context.Context, identity Identity) (Decision, bool) {
	if !s.ipFallbackEnabled || identity.ClientIP == "" {
		return Decision{}, false
	}

	s.recorder.RecordAttempt(s.ipFallbackTTLDays)

	since := s.now().Add(-s.ipFallbackTTL)
	record, err := s.repo.FindRecentByIP(ctx, identity.ClientIP, since)
	if err != nil {
		s.logger.Warn("ip fallback lookup failed",
			zap.String("client_ip", identity.ClientIP),
			zap.Error(err))
		return Decision{}, false
	}
	if record == nil {
		return Decision{}, false
	}

	s.recorder.RecordHit(s.ipFallbackTTLDays)
	metrics.RecordCreationStatus("ip_fallback")

	used := record.FreeSongsUsed
	decision := Decision{
		IsFree:        used < s.freeSongLimit,
		FreeSongsUsed: used,
		UserType:      UserTypeIPFallback,
	}
	if decision.IsFree {
		decision.Message = MsgNextSongFree
	} else {
		decision.Message = MsgNextSongPaid
	}
	return decision, true
}

// FallbackMetrics returns a snapshot of IP fallback counters.
func (s *Service) FallbackMetrics() FallbackMetrics {
	return s.recorder.Snapshot()
}

// FreeSongLimit returns the configured free-tier limit.
func (s *Service) FreeSongLimit() int {
	return s.freeSongLimit
}
