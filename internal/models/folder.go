package models

import (
	"time"
)

// Folder maps a remote mail folder onto a local archive path. Rows are
// upserted on every folder enumeration and never deleted. A folder whose
// parent is part of the same batch must be persisted after that parent.
type Folder struct {
	ID          string  `gorm:"column:id;type:varchar(255);primaryKey"`
	ParentID    *string `gorm:"column:parent_id;type:varchar(255);index"`
	Path        string  `gorm:"column:path;type:varchar(1000);uniqueIndex;not null"`
	DisplayName string  `gorm:"column:display_name;type:varchar(255)"`
	TotalCount  int     `gorm:"column:total_count"`
	UnreadCount int     `gorm:"column:unread_count"`
	// DeltaToken is the folder's change cursor; empty means the next sync is
	// a full enumeration.
	DeltaToken string     `gorm:"column:delta_token;type:text"`
	LastSyncAt *time.Time `gorm:"column:last_sync_at;type:timestamp"`
	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Folder) TableName() string {
	return "folders"
}
