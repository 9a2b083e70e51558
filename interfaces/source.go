package interfaces

import (
	"context"
	"time"
)

// FolderDescriptor is a remote folder as reported by the message source.
type FolderDescriptor struct {
	ID          string
	ParentID    string
	DisplayName string
	TotalCount  int
	UnreadCount int
}

// MessageDescriptor is one remote item inside a delta page or a date-window
// fetch. ID is the remote's mutable identifier (it can change when the item
// moves between folders); ImmutableID survives moves and is the identity key
// used for deduplication.
type MessageDescriptor struct {
	ID          string
	ImmutableID string

	Subject           string
	Sender            string
	Recipients        []string
	ReceivedAt        time.Time
	Size              int64
	HasAttachments    bool
	ConversationID    string
	InternetMessageID string

	// Removed marks a remote deletion annotation.
	Removed bool
	// NewParentFolderID is set when the remote reports the item under a
	// different folder than the one being synced.
	NewParentFolderID string
}

// DeltaPage is one page of a folder's change stream.
type DeltaPage struct {
	Items []MessageDescriptor
	// HasMore means NextCursor fetches the following page.
	HasMore    bool
	NextCursor string
	// FinalCursor is only populated on the last page and is the token to
	// present on the next incremental sync.
	FinalCursor string
}

// MessageSource is the remote message store consumed by the sync core.
// Implementations must surface rate limiting as *errors.RateLimitError,
// retryable statuses as *errors.StatusError, and invalidated change-tracking
// state as errors.ErrDeltaTokenExpired.
type MessageSource interface {
	// ListFolders enumerates every folder reachable from the mailbox root.
	ListFolders(ctx context.Context) ([]FolderDescriptor, error)
	// FetchDeltaPage returns one page of changes; an empty cursor starts a
	// full enumeration of the folder.
	FetchDeltaPage(ctx context.Context, folderID, cursor string) (*DeltaPage, error)
	// FetchSinceDate is the fallback path when the delta token is unusable.
	// Items must come back in stable receive-time order so a checkpoint
	// position taken against one fetch of the window is valid against the
	// next.
	FetchSinceDate(ctx context.Context, folderID string, since time.Time) ([]MessageDescriptor, error)
	// FetchRawContent downloads the item's raw MIME content.
	FetchRawContent(ctx context.Context, itemID string) ([]byte, error)
}
