package models

import (
	"time"
)

// FolderSyncProgress is the transient in-flight checkpoint for one folder.
// Its existence means the folder's sync is incomplete; it is deleted exactly
// when the folder's pagination is exhausted, which is the completion signal.
type FolderSyncProgress struct {
	FolderID string `gorm:"column:folder_id;type:varchar(255);primaryKey"`
	// PendingCursor is the cursor for the page currently being processed;
	// nil means the first page of a full enumeration.
	PendingCursor *string `gorm:"column:pending_cursor;type:text"`
	PendingPage   int     `gorm:"column:pending_page"`
	// PendingPosition is the number of items of the current page already
	// checkpointed; a restart skips that many items before resuming.
	PendingPosition int `gorm:"column:pending_position"`
	// FallbackSince is set while a date-window recovery is in flight. The
	// position marker then counts into that window's item list, not a delta
	// page, and a restart must re-fetch the same window to interpret it.
	FallbackSince  *time.Time `gorm:"column:fallback_since;type:timestamp"`
	StartedAt      time.Time  `gorm:"column:started_at;type:timestamp"`
	CheckpointedAt time.Time  `gorm:"column:checkpointed_at;type:timestamp"`
	ProcessedCount int        `gorm:"column:processed_count"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (FolderSyncProgress) TableName() string {
	return "folder_sync_progress"
}
