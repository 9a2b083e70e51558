package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailvault/internal/models"
)

type SyncStateRepository interface {
	// Get returns nil, nil when no state exists for the mailbox yet.
	Get(ctx context.Context, mailboxID string) (*models.SyncState, error)
	Save(ctx context.Context, state *models.SyncState) error
}

type FolderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Folder, error)
	GetAll(ctx context.Context) ([]models.Folder, error)
	Upsert(ctx context.Context, folder *models.Folder) error
	// MarkSynced records a completed folder sync. The stored token is replaced
	// unconditionally; date-fallback completion passes an empty token so the
	// invalidated one is discarded.
	MarkSynced(ctx context.Context, id, deltaToken string, at time.Time) error
}

type FolderSyncProgressRepository interface {
	// Get returns nil, nil when the folder has no in-flight sync.
	Get(ctx context.Context, folderID string) (*models.FolderSyncProgress, error)
	Save(ctx context.Context, progress *models.FolderSyncProgress) error
	Delete(ctx context.Context, folderID string) error
	GetAll(ctx context.Context) ([]models.FolderSyncProgress, error)
}

type MessageRepository interface {
	// GetByImmutableID returns nil, nil when the item was never materialized.
	GetByImmutableID(ctx context.Context, immutableID string) (*models.Message, error)
	Create(ctx context.Context, message *models.Message) error
	// UpdateLocation rewrites the path fields (and refreshes the stale
	// mutable identifier) after a remote move.
	UpdateLocation(ctx context.Context, immutableID, mutableID, folderPath, artifactPath string) error
	// Quarantine records a remote deletion against the local index.
	Quarantine(ctx context.Context, immutableID, quarantinePath, reason string, at time.Time) error
	Count(ctx context.Context) (int64, error)
	CountQuarantined(ctx context.Context) (int64, error)
	ExistsByInternetMessageID(ctx context.Context, internetMessageID string) (bool, error)
}
