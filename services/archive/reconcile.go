package archive

import (
	"context"
	"io/fs"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
)

// applyMove relocates an already-archived item to its new folder, on disk
// and in the index. A move for an item never archived locally is a no-op:
// the fresh copy will arrive through the destination folder's own delta.
func (s *archiveService) applyMove(ctx context.Context, d *interfaces.MessageDescriptor, from *models.Folder, counters *runCounters) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveService.applyMove")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, d.ImmutableID)

	message, err := s.lookupMessage(ctx, d)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if message == nil {
		span.SetTag("skipped", "unknown_message")
		return nil
	}

	destination, err := s.repositories.FolderRepository.GetByID(ctx, d.NewParentFolderID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if destination == nil {
		s.log.Warnf("move target folder %s not indexed yet, keeping %s in place", d.NewParentFolderID, message.ImmutableID)
		span.SetTag("skipped", "unknown_destination")
		return nil
	}
	if destination.Path == message.FolderPath {
		return nil
	}

	if s.cfg.DryRun {
		counters.moved++
		return nil
	}

	newPath, err := s.storage.MoveArtifact(ctx, message.ArtifactPath, destination.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Artifact vanished locally; the index still follows the remote.
			newPath = message.ArtifactPath
		} else {
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err := s.repositories.MessageRepository.UpdateLocation(ctx, message.ImmutableID, d.ID, destination.Path, newPath); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	counters.moved++
	return nil
}

// applyDelete quarantines a remotely deleted item. The artifact moves into
// the quarantine mirror and the index row is stamped, never removed, so the
// archive keeps what the remote discarded.
func (s *archiveService) applyDelete(ctx context.Context, d *interfaces.MessageDescriptor, counters *runCounters) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveService.applyDelete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, d.ImmutableID)

	message, err := s.lookupMessage(ctx, d)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if message == nil {
		span.SetTag("skipped", "unknown_message")
		return nil
	}
	if message.IsQuarantined() {
		return nil
	}

	if s.cfg.DryRun {
		counters.deleted++
		return nil
	}

	quarantinePath := message.ArtifactPath
	moved, err := s.storage.MoveToQuarantine(ctx, message.ArtifactPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			tracing.TraceErr(span, err)
			return err
		}
		// Artifact already gone on disk, record the deletion anyway.
	} else {
		quarantinePath = moved
	}

	if err := s.repositories.MessageRepository.Quarantine(ctx, message.ImmutableID, quarantinePath, enum.QuarantineRemoteDeleted.String(), utils.Now()); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	counters.deleted++
	return nil
}

func (s *archiveService) lookupMessage(ctx context.Context, d *interfaces.MessageDescriptor) (*models.Message, error) {
	identity := d.ImmutableID
	if identity == "" {
		identity = d.ID
	}
	return s.repositories.MessageRepository.GetByImmutableID(ctx, identity)
}
