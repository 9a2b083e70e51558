package archive

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

// processPageItems materializes one page's fresh items in mini-batches of
// the checkpoint interval. Items below the pending position marker were
// already persisted by an earlier run and are skipped. The progress record
// is only advanced after every item of a batch has been fully materialized,
// so a crash can repeat work but never lose it.
func (s *archiveService) processPageItems(ctx context.Context, folder *models.Folder, items []interfaces.MessageDescriptor, progress *models.FolderSyncProgress, counters *runCounters) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ArchiveService.processPageItems")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagFolder(span, folder.ID)
	span.LogFields(tracingLog.Int("items", len(items)), tracingLog.Int("resume_position", progress.PendingPosition))

	// A dispatched group runs to completion even when the run is cancelled
	// mid-flight, and its checkpoint is still written; cancellation takes
	// effect at the next group boundary. The position marker therefore never
	// points past partially applied work.
	detached := context.WithoutCancel(ctx)

	position := progress.PendingPosition
	for position < len(items) {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := position + s.cfg.CheckpointInterval
		if end > len(items) {
			end = len(items)
		}

		if err := s.materializeGroup(detached, folder, items[position:end], counters); err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		progress.ProcessedCount += end - position
		position = end
		progress.PendingPosition = position
		if !s.cfg.DryRun {
			if err := s.repositories.FolderSyncProgressRepository.Save(detached, progress); err != nil {
				tracing.TraceErr(span, err)
				return err
			}
		}
	}

	return nil
}

// materializeGroup runs one mini-batch through the worker pool. Workers only
// produce: they fetch content, write the artifact, and hand back an outcome.
// All database writes and event publishing happen here, after the pool has
// drained, which is what makes the subsequent checkpoint write safe.
func (s *archiveService) materializeGroup(ctx context.Context, folder *models.Folder, group []interfaces.MessageDescriptor, counters *runCounters) error {
	outcomes := make([]*materializeOutcome, len(group))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.Parallelism)
	for i := range group {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = s.materialize(ctx, folder, &group[i])
		}(i)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		if err := s.finalize(ctx, folder, outcome, counters); err != nil {
			return err
		}
	}
	return nil
}
