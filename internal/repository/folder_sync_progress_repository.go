package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
)

type folderSyncProgressRepository struct {
	db *gorm.DB
}

func NewFolderSyncProgressRepository(db *gorm.DB) interfaces.FolderSyncProgressRepository {
	return &folderSyncProgressRepository{db: db}
}

func (r *folderSyncProgressRepository) Get(ctx context.Context, folderID string) (*models.FolderSyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderSyncProgressRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, folderID)

	var progress models.FolderSyncProgress
	result := r.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		First(&progress)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // Folder has no in-flight sync
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get folder sync progress: %w", result.Error)
	}

	return &progress, nil
}

// Save upserts the checkpoint record; it is called after every mini-batch.
func (r *folderSyncProgressRepository) Save(ctx context.Context, progress *models.FolderSyncProgress) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderSyncProgressRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, progress.FolderID)

	result := r.db.WithContext(ctx).
		Model(&models.FolderSyncProgress{}).
		Where("folder_id = ?", progress.FolderID).
		Updates(map[string]interface{}{
			"pending_cursor":   progress.PendingCursor,
			"pending_page":     progress.PendingPage,
			"pending_position": progress.PendingPosition,
			"fallback_since":   progress.FallbackSince,
			"checkpointed_at":  progress.CheckpointedAt,
			"processed_count":  progress.ProcessedCount,
			"updated_at":       utils.Now(),
		})

	if result.Error == nil && result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(progress)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save folder sync progress: %w", result.Error)
	}

	return nil
}

// Delete removes the checkpoint record; this is the signal that the folder is
// fully synced.
func (r *folderSyncProgressRepository) Delete(ctx context.Context, folderID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderSyncProgressRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, folderID)

	result := r.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Delete(&models.FolderSyncProgress{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete folder sync progress: %w", result.Error)
	}

	return nil
}

func (r *folderSyncProgressRepository) GetAll(ctx context.Context) ([]models.FolderSyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderSyncProgressRepository.GetAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var records []models.FolderSyncProgress
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list folder sync progress: %w", err)
	}

	return records, nil
}
