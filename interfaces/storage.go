package interfaces

import (
	"context"
	"time"
)

// ArchiveStorage is the durable artifact store. All paths are relative to the
// archive root. Writes must be atomic: a crash mid-write never leaves a
// partial artifact under its final name.
type ArchiveStorage interface {
	// StoreArtifact writes content under a deterministic, collision-safe name
	// derived from folder, subject and timestamp, and returns the relative
	// artifact path.
	StoreArtifact(ctx context.Context, content []byte, folderPath, subject string, receivedAt time.Time) (string, error)
	// MoveArtifact relocates an artifact into another folder path.
	MoveArtifact(ctx context.Context, fromPath, toFolderPath string) (string, error)
	// MoveToQuarantine relocates an artifact into the quarantine area,
	// mirroring its folder structure.
	MoveToQuarantine(ctx context.Context, fromPath string) (string, error)
	// GetSize returns the size of a stored artifact in bytes.
	GetSize(ctx context.Context, path string) (int64, error)
	// SweepTemp removes stale temporary files left by an interrupted run.
	SweepTemp(ctx context.Context) error
}
