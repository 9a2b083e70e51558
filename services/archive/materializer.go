package archive

import (
	"context"

	"github.com/pkg/errors"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	er "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/retry"
	"github.com/customeros/mailvault/internal/utils"
)

// materializeOutcome is what a worker hands back across the batch barrier.
// Row is populated only for freshly downloaded items; existing carries the
// dedupe hit. Fatal marks errors that must end the folder's run (local I/O,
// database access, exhausted transient retries); everything else is counted
// per item and the batch keeps going.
type materializeOutcome struct {
	descriptor *interfaces.MessageDescriptor
	result     enum.SyncResult
	row        *models.Message
	raw        []byte
	existing   *models.Message
	err        error
	fatal      bool
}

// materialize is the worker phase of one item: dedupe lookup, content fetch,
// artifact write, size verification. It performs no database writes so that
// workers in the same batch never contend over shared state.
func (s *archiveService) materialize(ctx context.Context, folder *models.Folder, d *interfaces.MessageDescriptor) *materializeOutcome {
	outcome := &materializeOutcome{descriptor: d}

	identity := d.ImmutableID
	if identity == "" {
		identity = d.ID
	}

	existing, err := s.repositories.MessageRepository.GetByImmutableID(ctx, identity)
	if err != nil {
		outcome.result = enum.SyncResultError
		outcome.err = err
		outcome.fatal = true
		return outcome
	}
	if existing != nil {
		outcome.result = enum.SyncResultSkipped
		outcome.existing = existing
		return outcome
	}

	if s.cfg.DryRun {
		outcome.result = enum.SyncResultSynced
		return outcome
	}

	raw, err := retry.Do(ctx, s.retryCfg, er.IsTransient, func(ctx context.Context) ([]byte, error) {
		return s.source.FetchRawContent(ctx, d.ID)
	})
	if err != nil {
		outcome.result = enum.SyncResultError
		outcome.err = errors.Wrapf(err, "content fetch failed for %s", identity)
		// A remote source that keeps timing out ends the folder's run; a
		// permanent per-item refusal does not.
		outcome.fatal = er.IsRetryExhausted(err)
		return outcome
	}

	artifactPath, err := s.storage.StoreArtifact(ctx, raw, folder.Path, d.Subject, d.ReceivedAt)
	if err != nil {
		outcome.result = enum.SyncResultError
		outcome.err = errors.Wrapf(err, "artifact write failed for %s", identity)
		outcome.fatal = true
		return outcome
	}

	if d.Size > 0 {
		stored, err := s.storage.GetSize(ctx, artifactPath)
		if err == nil && stored != int64(len(raw)) {
			outcome.result = enum.SyncResultError
			outcome.err = errors.Wrapf(er.ErrSizeMismatch, "artifact %s: wrote %d bytes, found %d", artifactPath, len(raw), stored)
			return outcome
		}
	}

	outcome.result = enum.SyncResultSynced
	outcome.raw = raw
	outcome.row = &models.Message{
		ID:                d.ID,
		ImmutableID:       identity,
		ArtifactPath:      artifactPath,
		FolderPath:        folder.Path,
		Subject:           d.Subject,
		Sender:            d.Sender,
		Recipients:        d.Recipients,
		ReceivedAt:        d.ReceivedAt,
		Size:              int64(len(raw)),
		HasAttachments:    d.HasAttachments,
		ConversationID:    d.ConversationID,
		InternetMessageID: utils.NormalizeMessageID(d.InternetMessageID),
		CreatedAt:         utils.Now(),
	}
	return outcome
}

// finalize is the post-barrier phase: it records the row, then runs the
// optional transformer and event publisher. Those two are enrichment, their
// failures are logged and do not fail the batch. Item-level errors are
// counted and left behind, so the group's checkpoint still advances and the
// item gets another chance on a future run; only fatal outcomes propagate.
func (s *archiveService) finalize(ctx context.Context, folder *models.Folder, outcome *materializeOutcome, counters *runCounters) error {
	switch outcome.result {
	case enum.SyncResultSkipped:
		counters.skipped++
		return nil
	case enum.SyncResultError:
		counters.errors++
		if outcome.fatal {
			return outcome.err
		}
		s.log.Warnf("item skipped in folder %s: %v", folder.Path, outcome.err)
		return nil
	}

	counters.synced++
	if s.cfg.DryRun || outcome.row == nil {
		return nil
	}

	if err := s.repositories.MessageRepository.Create(ctx, outcome.row); err != nil {
		counters.synced--
		counters.errors++
		return errors.Wrapf(err, "index write failed for %s", outcome.row.ImmutableID)
	}

	if s.transformer != nil {
		if err := s.transformer.TransformSingleMessage(ctx, outcome.row, outcome.raw); err != nil {
			s.log.Warnf("transform failed for %s: %v", outcome.row.ImmutableID, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishMessageArchived(ctx, outcome.row); err != nil {
			s.log.Warnf("archived event publish failed for %s: %v", outcome.row.ImmutableID, err)
		}
	}
	return nil
}
