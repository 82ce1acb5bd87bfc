package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

type BatchPostgreSQL struct {
	db *gorm.DB
}

// Create inserts a generation batch
func (r *BatchPostgreSQL) Create(ctx context.Context, batch *models.GeneratedBatch) error {
	if err := r.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// Update persists the full batch row
func (r *BatchPostgreSQL) Update(ctx context.Context, batch *models.GeneratedBatch) error {
	if err := r.db.WithContext(ctx).Save(batch).Error; err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return nil
}

// GetRecent returns recent batches matching the filters, newest first
func (r *BatchPostgreSQL) GetRecent(ctx context.Context, filters repositories.BatchFilters) ([]*models.GeneratedBatch, error) {
	query := r.db.WithContext(ctx).Model(&models.GeneratedBatch{})

	if filters.Topic != "" {
		query = query.Where("topic = ?", filters.Topic)
	}
	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var batches []*models.GeneratedBatch
	if err := query.Order("created_at DESC").Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}

	return batches, nil
}

// MarkPublished flips a draft batch to published and stamps the time
func (r *BatchPostgreSQL) MarkPublished(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.GeneratedBatch{}).
		Where("id = ? AND status = ?", id, models.BatchDraft).
		Updates(map[string]interface{}{
			"status":       models.BatchPublished,
			"published_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to publish batch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
