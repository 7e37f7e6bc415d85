package song

import (
	"time"

	"github.com/lib/pq"
)

// Song is a completed generation persisted for listing and replay.
type Song struct {
	ID         string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TaskID     string         `gorm:"column:task_id;index" json:"taskId"`
	UserID     *string        `gorm:"column:user_id;index" json:"userId"`
	DeviceID   *string        `gorm:"column:device_id;index" json:"deviceId"`
	Title      string         `gorm:"column:title;not null" json:"title"`
	Lyrics     string         `gorm:"column:lyrics;type:text" json:"lyrics"`
	Style      string         `gorm:"column:style" json:"style"`
	Tags       pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	AudioURL   string         `gorm:"column:audio_url" json:"audioUrl"`
	ArchiveKey string         `gorm:"column:archive_key" json:"archiveKey,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName returns the table name for Song.
func (Song) TableName() string {
	return "songs"
}
