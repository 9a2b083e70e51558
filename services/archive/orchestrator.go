package archive

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	er "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/retry"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
)

// SyncMailbox runs one full pass: folder enumeration, topological
// persistence, then per-folder streaming sync with mini-batch checkpoints.
// Folder-level and fatal errors end the run; the last persisted checkpoint
// stays valid for the next one.
func (s *archiveService) SyncMailbox(ctx context.Context) (*interfaces.SyncSummary, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ArchiveService.SyncMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagMailbox(span, s.cfg.MailboxID)
	span.SetTag("dry_run", s.cfg.DryRun)

	if !s.tryStart() {
		return nil, er.ErrAlreadyRunning
	}
	defer s.finish()

	start := time.Now()
	counters := &runCounters{}

	// A crash mid-write can leave temp files behind; clear them before any
	// new artifact is written.
	if err := s.storage.SweepTemp(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "temp sweep failed")
	}

	state, err := s.ensureSyncState(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.report(interfaces.ProgressSnapshot{Phase: enum.PhaseEnumeratingFolders})

	descriptors, err := retry.Do(ctx, s.retryCfg, er.IsTransient, func(ctx context.Context) ([]interfaces.FolderDescriptor, error) {
		return s.source.ListFolders(ctx)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "folder enumeration failed")
	}

	ordered := OrderFolders(descriptors)
	folders, err := s.persistFolders(ctx, ordered)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(tracingLog.Int("folder_count", len(folders)))

	summary := &interfaces.SyncSummary{Folders: len(folders)}
	for i := range folders {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		folder := &folders[i]
		s.report(interfaces.ProgressSnapshot{
			Phase:        enum.PhaseSyncingFolder,
			FolderPath:   folder.Path,
			FolderIndex:  i + 1,
			TotalFolders: len(folders),
			Synced:       counters.synced,
			Skipped:      counters.skipped,
			Errors:       counters.errors,
		})

		if err := s.syncFolder(ctx, folder, counters); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// Work already checkpointed is not an error.
				summary.Cancelled = true
				break
			}
			tracing.TraceErr(span, err)
			s.fillSummary(summary, counters, start)
			return summary, errors.Wrapf(err, "sync failed for folder %s", folder.Path)
		}
	}

	if !summary.Cancelled && !s.cfg.DryRun {
		state.LastSyncAt = utils.NowPtr()
		if err := s.repositories.SyncStateRepository.Save(ctx, state); err != nil {
			tracing.TraceErr(span, err)
			s.fillSummary(summary, counters, start)
			return summary, err
		}
	}

	s.fillSummary(summary, counters, start)
	s.report(interfaces.ProgressSnapshot{
		Phase:   enum.PhaseCompleted,
		Synced:  counters.synced,
		Skipped: counters.skipped,
		Errors:  counters.errors,
	})
	s.log.Infof("mailbox %s sync done: %d synced, %d skipped, %d errors in %s",
		s.cfg.MailboxID, counters.synced, counters.skipped, counters.errors, summary.Elapsed)

	return summary, nil
}

func (s *archiveService) fillSummary(summary *interfaces.SyncSummary, c *runCounters, start time.Time) {
	summary.Synced = c.synced
	summary.Skipped = c.skipped
	summary.Errors = c.errors
	summary.Moved = c.moved
	summary.Deleted = c.deleted
	summary.Elapsed = time.Since(start)
}

func (s *archiveService) ensureSyncState(ctx context.Context) (*models.SyncState, error) {
	state, err := s.repositories.SyncStateRepository.Get(ctx, s.cfg.MailboxID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	state = &models.SyncState{MailboxID: s.cfg.MailboxID, CreatedAt: utils.Now()}
	if s.cfg.DryRun {
		return state, nil
	}
	if err := s.repositories.SyncStateRepository.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// persistFolders upserts folders parent-before-child and returns the models
// in that same order.
func (s *archiveService) persistFolders(ctx context.Context, ordered []interfaces.FolderDescriptor) ([]models.Folder, error) {
	paths := make(map[string]string, len(ordered))
	folders := make([]models.Folder, 0, len(ordered))

	for _, d := range ordered {
		path, err := s.resolveFolderPath(ctx, d, paths)
		if err != nil {
			return nil, err
		}
		paths[d.ID] = path

		folder := models.Folder{
			ID:          d.ID,
			Path:        path,
			DisplayName: d.DisplayName,
			TotalCount:  d.TotalCount,
			UnreadCount: d.UnreadCount,
			CreatedAt:   utils.Now(),
		}
		if d.ParentID != "" {
			folder.ParentID = utils.Ptr(d.ParentID)
		}

		if !s.cfg.DryRun {
			if err := s.repositories.FolderRepository.Upsert(ctx, &folder); err != nil {
				return nil, err
			}
			// Keep the previously persisted delta token and sync time.
			if existing, err := s.repositories.FolderRepository.GetByID(ctx, folder.ID); err == nil && existing != nil {
				folder.DeltaToken = existing.DeltaToken
				folder.LastSyncAt = existing.LastSyncAt
			}
		}
		folders = append(folders, folder)
	}

	return folders, nil
}

func (s *archiveService) resolveFolderPath(ctx context.Context, d interfaces.FolderDescriptor, known map[string]string) (string, error) {
	name := utils.SanitizeFilename(d.DisplayName, 100)
	if d.ParentID == "" {
		return name, nil
	}
	if parentPath, ok := known[d.ParentID]; ok {
		return parentPath + "/" + name, nil
	}
	// Parent outside the working set: already persisted, or the mailbox root.
	parent, err := s.repositories.FolderRepository.GetByID(ctx, d.ParentID)
	if err != nil {
		return "", err
	}
	if parent != nil {
		return parent.Path + "/" + name, nil
	}
	return name, nil
}

// syncFolder drives one folder through the delta pagination loop, entering
// with the highest-priority resume cursor: a pending mid-page cursor, else
// the folder's delta token, else none (full resync).
func (s *archiveService) syncFolder(ctx context.Context, folder *models.Folder, counters *runCounters) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveService.syncFolder")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagFolder(span, folder.ID)
	span.SetTag("folder.path", folder.Path)

	progress, err := s.repositories.FolderSyncProgressRepository.Get(ctx, folder.ID)
	if err != nil {
		return err
	}

	var cursor string
	if progress != nil {
		// A crash mid-fallback leaves the window marker behind; the position
		// counts into that window's items, so re-run the same window rather
		// than reading it against a delta page.
		if progress.FallbackSince != nil {
			span.SetTag("resume", "fallback_window")
			return s.runFallbackWindow(ctx, folder, *progress.FallbackSince, progress, counters)
		}
		cursor = utils.GetOrDefault(progress.PendingCursor, "")
		span.SetTag("resume", "checkpoint")
	} else {
		cursor = folder.DeltaToken
		progress = s.newProgress(folder, cursor)
		if !s.cfg.DryRun {
			if err := s.repositories.FolderSyncProgressRepository.Save(ctx, progress); err != nil {
				return err
			}
		}
	}

	return s.paginate(ctx, folder, cursor, progress, counters, true)
}

func (s *archiveService) newProgress(folder *models.Folder, cursor string) *models.FolderSyncProgress {
	progress := &models.FolderSyncProgress{
		FolderID:  folder.ID,
		StartedAt: utils.Now(),
		CreatedAt: utils.Now(),
	}
	if cursor != "" {
		progress.PendingCursor = utils.Ptr(cursor)
	}
	return progress
}

func (s *archiveService) paginate(ctx context.Context, folder *models.Folder, cursor string, progress *models.FolderSyncProgress, counters *runCounters, allowFallback bool) error {
	var finalToken string

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := retry.Do(ctx, s.retryCfg, er.IsTransient, func(ctx context.Context) (*interfaces.DeltaPage, error) {
			return s.source.FetchDeltaPage(ctx, folder.ID, cursor)
		})
		if err != nil {
			if er.IsDeltaInvalid(err) && allowFallback {
				s.log.Warnf("delta token invalid for folder %s, switching to date fallback", folder.Path)
				return s.dateFallback(ctx, folder, progress, counters)
			}
			return err
		}

		deletes, moves, fresh := partitionPage(page.Items, folder.ID)

		// Deletions and moves are individually idempotent and applied before
		// the new-item batch so a moved item is not downloaded under its
		// stale folder. They do not participate in checkpointing.
		for i := range deletes {
			if err := s.applyDelete(ctx, &deletes[i], counters); err != nil {
				s.log.Warnf("delete reconciliation skipped for %s: %v", deletes[i].ImmutableID, err)
			}
		}
		for i := range moves {
			if err := s.applyMove(ctx, &moves[i], folder, counters); err != nil {
				s.log.Warnf("move reconciliation skipped for %s: %v", moves[i].ImmutableID, err)
			}
		}

		if err := s.processPageItems(ctx, folder, fresh, progress, counters); err != nil {
			return err
		}

		s.report(interfaces.ProgressSnapshot{
			Phase:      enum.PhaseSyncingFolder,
			FolderPath: folder.Path,
			Processed:  progress.ProcessedCount,
			Synced:     counters.synced,
			Skipped:    counters.skipped,
			Errors:     counters.errors,
		})

		if !page.HasMore {
			finalToken = page.FinalCursor
			break
		}

		// Advance the pagination cursor; the position marker restarts at the
		// top of the new page.
		cursor = page.NextCursor
		progress.PendingCursor = utils.Ptr(cursor)
		progress.PendingPage++
		progress.PendingPosition = 0
		if !s.cfg.DryRun {
			if err := s.repositories.FolderSyncProgressRepository.Save(ctx, progress); err != nil {
				return err
			}
		}
	}

	return s.completeFolder(ctx, folder, finalToken)
}

// completeFolder persists the final delta token (empty after fallback, which
// does not produce one), stamps the sync time, and deletes the progress
// record, which marks the folder complete.
func (s *archiveService) completeFolder(ctx context.Context, folder *models.Folder, deltaToken string) error {
	if s.cfg.DryRun {
		return nil
	}
	if err := s.repositories.FolderRepository.MarkSynced(ctx, folder.ID, deltaToken, utils.Now()); err != nil {
		return err
	}
	return s.repositories.FolderSyncProgressRepository.Delete(ctx, folder.ID)
}

// dateFallback recovers from an invalidated delta token. With a prior sync
// time it re-fetches items received since that time minus the overlap window
// and runs them through the same mini-batch protocol; overlap re-processing
// is safe because materialization dedupes on the immutable identifier.
// Without one, the folder restarts as a full resync.
func (s *archiveService) dateFallback(ctx context.Context, folder *models.Folder, progress *models.FolderSyncProgress, counters *runCounters) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveService.dateFallback")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagFolder(span, folder.ID)

	s.report(interfaces.ProgressSnapshot{Phase: enum.PhaseDateFallback, FolderPath: folder.Path})

	lastSync := folder.LastSyncAt
	if lastSync == nil {
		if state, err := s.repositories.SyncStateRepository.Get(ctx, s.cfg.MailboxID); err == nil && state != nil {
			lastSync = state.LastSyncAt
		}
	}

	if lastSync == nil {
		// Never fully synced: discard progress and start over without a
		// cursor. Fallback is not allowed again on this pass.
		span.SetTag("mode", "full_restart")
		if !s.cfg.DryRun {
			if err := s.repositories.FolderSyncProgressRepository.Delete(ctx, folder.ID); err != nil {
				return err
			}
		}
		restarted := s.newProgress(folder, "")
		if !s.cfg.DryRun {
			if err := s.repositories.FolderSyncProgressRepository.Save(ctx, restarted); err != nil {
				return err
			}
		}
		return s.paginate(ctx, folder, "", restarted, counters, false)
	}

	span.SetTag("mode", "date_window")
	since := lastSync.Add(-s.cfg.FallbackOverlap)

	// The window replaces delta pagination, so any stale mid-page marker from
	// the delta attempt is discarded, and the marker change is persisted
	// before the first checkpoint can land against the window's item list.
	progress.PendingCursor = nil
	progress.PendingPage = 0
	progress.PendingPosition = 0
	progress.FallbackSince = utils.Ptr(since)
	if !s.cfg.DryRun {
		if err := s.repositories.FolderSyncProgressRepository.Save(ctx, progress); err != nil {
			return err
		}
	}

	return s.runFallbackWindow(ctx, folder, since, progress, counters)
}

// runFallbackWindow fetches every item received since the window start and
// runs them through the mini-batch protocol. Overlap re-processing is safe
// because materialization dedupes on the immutable identifier.
func (s *archiveService) runFallbackWindow(ctx context.Context, folder *models.Folder, since time.Time, progress *models.FolderSyncProgress, counters *runCounters) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveService.runFallbackWindow")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagFolder(span, folder.ID)
	span.LogFields(tracingLog.String("since", since.Format(time.RFC3339)))

	items, err := retry.Do(ctx, s.retryCfg, er.IsTransient, func(ctx context.Context) ([]interfaces.MessageDescriptor, error) {
		return s.source.FetchSinceDate(ctx, folder.ID, since)
	})
	if err != nil {
		return err
	}

	if err := s.processPageItems(ctx, folder, items, progress, counters); err != nil {
		return err
	}

	return s.completeFolder(ctx, folder, "")
}

// partitionPage splits a page into disjoint delete/move/fresh sets. When one
// identity carries several annotations in the same page, the last observed
// one wins.
func partitionPage(items []interfaces.MessageDescriptor, folderID string) (deletes, moves, fresh []interfaces.MessageDescriptor) {
	index := make(map[string]int, len(items))
	ordered := make([]interfaces.MessageDescriptor, 0, len(items))

	for _, item := range items {
		key := item.ImmutableID
		if key == "" {
			key = item.ID
		}
		if at, ok := index[key]; ok {
			ordered[at] = item
			continue
		}
		index[key] = len(ordered)
		ordered = append(ordered, item)
	}

	for _, item := range ordered {
		switch {
		case item.Removed:
			deletes = append(deletes, item)
		case item.NewParentFolderID != "" && item.NewParentFolderID != folderID:
			moves = append(moves, item)
		default:
			fresh = append(fresh, item)
		}
	}
	return deletes, moves, fresh
}
