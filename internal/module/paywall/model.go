package paywall

import (
	"time"
)

// UsageRecord tracks free-tier consumption per device or per
// authenticated user. A record needs at least one of DeviceID or
// UserID to be addressable by the resolver.
type UsageRecord struct {
	ID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DeviceID      *string   `gorm:"column:device_id;index" json:"deviceId"`
	UserID        *string   `gorm:"column:user_id;index" json:"userId"`
	FreeSongsUsed int       `gorm:"column:free_songs_used;not null;default:0" json:"freeSongsUsed"`
	Creations     int       `gorm:"column:creations;not null;default:0" json:"creations"`
	LastUsedIP    *string   `gorm:"column:last_used_ip" json:"lastUsedIp"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName returns the table name for UsageRecord.
func (UsageRecord) TableName() string {
	return "usage_records"
}

// HasDevice reports whether the record is device-addressable.
func (r *UsageRecord) HasDevice() bool {
	return r.DeviceID != nil && *r.DeviceID != ""
}
