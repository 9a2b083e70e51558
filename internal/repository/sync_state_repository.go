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

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// Get retrieves the completed-sync state for a mailbox
func (r *syncStateRepository) Get(ctx context.Context, mailboxID string) (*models.SyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagMailbox(span, mailboxID)

	var state models.SyncState
	result := r.db.WithContext(ctx).
		Where("mailbox_id = ?", mailboxID).
		First(&state)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // No sync yet
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get sync state: %w", result.Error)
	}

	return &state, nil
}

// Save upserts the completed-sync state for a mailbox
func (r *syncStateRepository) Save(ctx context.Context, state *models.SyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagMailbox(span, state.MailboxID)

	// Try to update first
	result := r.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("mailbox_id = ?", state.MailboxID).
		Updates(map[string]interface{}{
			"last_sync_at": state.LastSyncAt,
			"delta_token":  state.DeltaToken,
			"updated_at":   utils.Now(),
		})

	// If no record was updated, create a new one
	if result.Error == nil && result.RowsAffected == 0 {
		result = r.db.WithContext(ctx).Create(state)
	}

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save sync state: %w", result.Error)
	}

	return nil
}
