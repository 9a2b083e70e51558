package models

import (
	"time"

	"github.com/lib/pq"
)

// Message is the index row for one materialized artifact. The immutable
// identifier is the true identity key; ID is the remote's mutable identifier
// and can go stale after folder moves.
type Message struct {
	ID          string `gorm:"column:id;type:varchar(512);primaryKey"`
	ImmutableID string `gorm:"column:immutable_id;type:varchar(512);uniqueIndex;not null"`

	ArtifactPath string `gorm:"column:artifact_path;type:varchar(1000);not null"`
	FolderPath   string `gorm:"column:folder_path;type:varchar(1000);index"`

	// Index-only metadata
	Subject           string         `gorm:"column:subject;type:varchar(1000)"`
	Sender            string         `gorm:"column:sender;type:varchar(255);index"`
	Recipients        pq.StringArray `gorm:"column:recipients;type:text[]"`
	ReceivedAt        time.Time      `gorm:"column:received_at;type:timestamp;index"`
	Size              int64          `gorm:"column:size"`
	HasAttachments    bool           `gorm:"column:has_attachments;default:false"`
	ConversationID    string         `gorm:"column:conversation_id;type:varchar(512);index"`
	InternetMessageID string         `gorm:"column:internet_message_id;type:varchar(512);index"`

	QuarantinedAt    *time.Time `gorm:"column:quarantined_at;type:timestamp"`
	QuarantineReason string     `gorm:"column:quarantine_reason;type:varchar(100)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) IsQuarantined() bool {
	return m.QuarantinedAt != nil
}
