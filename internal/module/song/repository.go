package song

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repository provides access to persisted songs.
type Repository interface {
	Create(ctx context.Context, s *Song) error
	ListByIdentity(ctx context.Context, userID string, deviceIDs []string) ([]Song, error)
	SetArchiveKey(ctx context.Context, songID, key string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed song repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, s *Song) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create song: %w", err)
	}
	return nil
}

func (r *gormRepository) ListByIdentity(ctx context.Context, userID string, deviceIDs []string) ([]Song, error) {
	if userID == "" && len(deviceIDs) == 0 {
		return []Song{}, nil
	}

	merged := make([]Song, 0, 8)
	seen := make(map[string]struct{})
	appendUnseen := func(items []Song) {
		for _, s := range items {
			if _, ok := seen[s.ID]; ok {
				continue
			}
			seen[s.ID] = struct{}{}
			merged = append(merged, s)
		}
	}

	if userID != "" {
		var byUser []Song
		err := r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Find(&byUser).Error
		if err != nil {
			return nil, fmt.Errorf("list songs by user: %w", err)
		}
		appendUnseen(byUser)
	}

	if len(deviceIDs) > 0 {
		var byDevice []Song
		err := r.db.WithContext(ctx).
			Where("device_id IN ?", deviceIDs).
			Order("created_at DESC").
			Find(&byDevice).Error
		if err != nil {
			return nil, fmt.Errorf("list songs by device: %w", err)
		}
		appendUnseen(byDevice)
	}

	return merged, nil
}

func (r *gormRepository) SetArchiveKey(ctx context.Context, songID, key string) error {
	err := r.db.WithContext(ctx).
		Model(&Song{}).
		Where("id = ?", songID).
		Update("archive_key", key).Error
	if err != nil {
		return fmt.Errorf("set archive key: %w", err)
	}
	return nil
}
