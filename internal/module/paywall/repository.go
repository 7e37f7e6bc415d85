package paywall

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository provides access to usage records.
type Repository interface {
	// FindByIdentity returns all usage records matching any of the
	// identity's identifier families. Returns an empty slice (no
	// error) when the identity is empty.
	FindByIdentity(ctx context.Context, identity Identity) ([]UsageRecord, error)

	// FindRecentByIP returns the most recently updated record whose
	// last_used_ip matches, updated at or after since. Returns nil
	// when none exists.
	FindRecentByIP(ctx context.Context, ip string, since time.Time) (*UsageRecord, error)

	// SetUsage writes a record's counter after a completed song,
	// increments its lifetime creations count and optionally attaches
	// a user id and last used IP.
	SetUsage(ctx context.Context, recordID string, count int, userID, lastUsedIP *string) error

	// EnsureByDevice returns the record keyed on deviceID, creating
	// it from attrs when none exists. The second result reports
	// whether a new row was inserted.
	EnsureByDevice(ctx context.Context, deviceID string, attrs UsageRecord) (*UsageRecord, bool, error)

	// Reset operations set free_songs_used to 0 for every record
	// matching the identifier. They return the number of rows updated.
	ResetUsageByUserID(ctx context.Context, userID string) (int64, error)
	ResetUsageByDeviceID(ctx context.Context, deviceID string) (int64, error)
	ResetUsageByIP(ctx context.Context, ip string) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed usage record repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// FindByIdentity queries each identifier family separately and merges
// the results, deduplicating by record id.
func (r *gormRepository) FindByIdentity(ctx context.Context, identity Identity) ([]UsageRecord, error) {
	if identity.IsEmpty() {
		return []UsageRecord{}, nil
	}

	merged := make([]UsageRecord, 0, 4)
	seen := make(map[string]struct{})

	appendUnseen := func(records []UsageRecord) {
		for _, rec := range records {
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			seen[rec.ID] = struct{}{}
			merged = append(merged, rec)
		}
	}

	if identity.UserID != "" {
		var byUser []UsageRecord
		err := r.db.WithContext(ctx).
			Where("user_id = ?", identity.UserID).
			Find(&byUser).Error
		if err != nil {
			return nil, fmt.Errorf("find usage records by user: %w", err)
		}
		appendUnseen(byUser)
	}

	if len(identity.DeviceIDs) > 0 {
		var byDevice []UsageRecord
		err := r.db.WithContext(ctx).
			Where("device_id IN ?", identity.DeviceIDs).
			Find(&byDevice).Error
		if err != nil {
			return nil, fmt.Errorf("find usage records by device: %w", err)
		}
		appendUnseen(byDevice)
	}

	return merged, nil
}

func (r *gormRepository) FindRecentByIP(ctx context.Context, ip string, since time.Time) (*UsageRecord, error) {
	if ip == "" {
		return nil, nil
	}

	var records []UsageRecord
	err := r.db.WithContext(ctx).
		Where("last_used_ip = ? AND updated_at >= ?", ip, since).
		Order("updated_at DESC").
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("find usage record by ip: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *gormRepository) SetUsage(ctx context.Context, recordID string, count int, userID, lastUsedIP *string) error {
	updates := map[string]any{
		"free_songs_used": count,
		"creations":       gorm.Expr("creations + 1"),
		"updated_at":      time.Now(),
	}
	if userID != nil && *userID != "" {
		updates["user_id"] = *userID
	}
	if lastUsedIP != nil && *lastUsedIP != "" {
		updates["last_used_ip"] = *lastUsedIP
	}

	err := r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Where("id = ?", recordID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("update usage record: %w", err)
	}
	return nil
}

func (r *gormRepository) EnsureByDevice(ctx context.Context, deviceID string, attrs UsageRecord) (*UsageRecord, bool, error) {
	if deviceID == "" {
		return nil, false, nil
	}

	var record UsageRecord
	result := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Attrs(attrs).
		FirstOrCreate(&record)
	if result.Error != nil {
		return nil, false, fmt.Errorf("ensure usage record: %w", result.Error)
	}
	return &record, result.RowsAffected > 0, nil
}

func (r *gormRepository) ResetUsageByUserID(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	return r.resetWhere(ctx, "user_id = ?", userID)
}

func (r *gormRepository) ResetUsageByDeviceID(ctx context.Context, deviceID string) (int64, error) {
	if deviceID == "" {
		return 0, nil
	}
	return r.resetWhere(ctx, "device_id = ?", deviceID)
}

func (r *gormRepository) ResetUsageByIP(ctx context.Context, ip string) (int64, error) {
	if ip == "" {
		return 0, nil
	}
	return r.resetWhere(ctx, "last_used_ip = ?", ip)
}

func (r *gormRepository) resetWhere(ctx context.Context, query string, arg any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&UsageRecord{}).
		Where(query, arg).
		Updates(map[string]any{
			"free_songs_used": 0,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("reset usage records: %w", result.Error)
	}
	return result.RowsAffected, nil
}
