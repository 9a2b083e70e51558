package models

import (
	"time"
)

// SyncState is the per-mailbox completed-sync record. It is created on the
// first sync attempt and updated once per successful top-level run; it is
// never deleted.
type SyncState struct {
	MailboxID  string     `gorm:"column:mailbox_id;type:varchar(255);primaryKey"`
	LastSyncAt *time.Time `gorm:"column:last_sync_at;type:timestamp"`
	// DeltaToken is the mailbox-scope change cursor kept for installations
	// that predate per-folder tokens. Folder.DeltaToken supersedes it.
	DeltaToken string    `gorm:"column:delta_token;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
