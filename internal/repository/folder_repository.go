package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
)

type folderRepository struct {
	db *gorm.DB
}

func NewFolderRepository(db *gorm.DB) interfaces.FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, id)

	var folder models.Folder
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&folder)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get folder: %w", result.Error)
	}

	return &folder, nil
}

func (r *folderRepository) GetAll(ctx context.Context) ([]models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.GetAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var folders []models.Folder
	if err := r.db.WithContext(ctx).Order("path asc").Find(&folders).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get folders: %w", err)
	}

	return folders, nil
}

// Upsert persists a folder discovered during enumeration. Callers must
// persist parents before children so the parent reference stays consistent.
func (r *folderRepository) Upsert(ctx context.Context, folder *models.Folder) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, folder.ID)

	result := r.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("id = ?", folder.ID).
		Updates(map[string]interface{}{
			"parent_id":    folder.ParentID,
			"path":         folder.Path,
			"display_name": folder.DisplayName,
			"total_count":  folder.TotalCount,
			"unread_count": folder.UnreadCount,
			"updated_at":   utils.Now(),
		})

	if result.Error == nil && result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(folder)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to upsert folder: %w", result.Error)
	}

	return nil
}

// MarkSynced records the folder's completed sync. The token column is always
// rewritten: a date-fallback completion passes an empty token, discarding the
// invalidated one so the next run starts a fresh full enumeration.
func (r *folderRepository) MarkSynced(ctx context.Context, id, deltaToken string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.MarkSynced")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagFolder(span, id)

	updates := map[string]interface{}{
		"delta_token":  deltaToken,
		"last_sync_at": at,
		"updated_at":   utils.Now(),
	}

	result := r.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to mark folder synced: %w", result.Error)
	}

	return nil
}
