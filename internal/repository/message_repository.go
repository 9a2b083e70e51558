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

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

// GetByImmutableID is the dedupe lookup. The mutable identifier is never used
// as the sole identity test because it goes stale across folder moves.
func (r *messageRepository) GetByImmutableID(ctx context.Context, immutableID string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByImmutableID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	result := r.db.WithContext(ctx).
		Where("immutable_id = ?", immutableID).
		First(&message)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // Never materialized
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get message: %w", result.Error)
	}

	return &message, nil
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, message.ID)

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

func (r *messageRepository) UpdateLocation(ctx context.Context, immutableID, mutableID, folderPath, artifactPath string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UpdateLocation")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	updates := map[string]interface{}{
		"folder_path":   folderPath,
		"artifact_path": artifactPath,
		"updated_at":    utils.Now(),
	}
	if mutableID != "" {
		updates["id"] = mutableID
	}

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("immutable_id = ?", immutableID).
		Updates(updates)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update message location: %w", result.Error)
	}

	return nil
}

func (r *messageRepository) Quarantine(ctx context.Context, immutableID, quarantinePath, reason string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Quarantine")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("immutable_id = ?", immutableID).
		Updates(map[string]interface{}{
			"artifact_path":     quarantinePath,
			"quarantined_at":    at,
			"quarantine_reason": reason,
			"updated_at":        utils.Now(),
		})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to quarantine message: %w", result.Error)
	}

	return nil
}

func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Count")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

func (r *messageRepository) CountQuarantined(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountQuarantined")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("quarantined_at IS NOT NULL").
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count quarantined messages: %w", err)
	}

	return count, nil
}

func (r *messageRepository) ExistsByInternetMessageID(ctx context.Context, internetMessageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ExistsByInternetMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("internet_message_id = ?", internetMessageID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}

	return count > 0, nil
}
