package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/models"
)

// ProgressSnapshot is a one-way notification emitted after each page and
// checkpoint group. Nothing in the core depends on it being observed.
type ProgressSnapshot struct {
	Phase        enum.SyncPhase
	FolderPath   string
	FolderIndex  int
	TotalFolders int
	Processed    int
	Synced       int
	Skipped      int
	Errors       int
}

// ProgressReporter consumes progress snapshots; implementations must not
// block the sync loop.
type ProgressReporter interface {
	Report(snapshot ProgressSnapshot)
}

// SyncSummary is the result of one top-level sync run.
type SyncSummary struct {
	Folders   int
	Synced    int
	Skipped   int
	Errors    int
	Moved     int
	Deleted   int
	Elapsed   time.Duration
	Cancelled bool
}

// ArchiveService is the sync orchestrator.
type ArchiveService interface {
	// SyncMailbox runs one full pass over every remote folder. Folder-level
	// failures are aggregated; fatal local errors abort the run.
	SyncMailbox(ctx context.Context) (*SyncSummary, error)
	IsRunning() bool
	SetTransformer(transformer MessageTransformer)
	SetEventPublisher(publisher EventPublisher)
	SetProgressReporter(reporter ProgressReporter)
}

// MessageTransformer renders derived formats from a freshly materialized
// message. Its failure is logged and never changes the sync result.
type MessageTransformer interface {
	TransformSingleMessage(ctx context.Context, message *models.Message, raw []byte) error
}

// EventPublisher emits archive events to the message bus.
type EventPublisher interface {
	PublishMessageArchived(ctx context.Context, message *models.Message) error
	Close() error
}
