package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

type MasteryPostgreSQL struct {
	db *gorm.DB
}

// Get retrieves one (user, topic) mastery row
func (r *MasteryPostgreSQL) Get(ctx context.Context, userID, topic string) (*models.TopicMastery, error) {
	var mastery models.TopicMastery
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND topic = ?", userID, topic).
		First(&mastery).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mastery: %w", err)
	}
	return &mastery, nil
}

// GetByUser returns all mastery rows for a learner
func (r *MasteryPostgreSQL) GetByUser(ctx context.Context, userID string) ([]*models.TopicMastery, error) {
	var records []*models.TopicMastery
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("topic ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get mastery records: %w", err)
	}
	return records, nil
}

// Upsert inserts or replaces the (user, topic) mastery row
func (r *MasteryPostgreSQL) Upsert(ctx context.Context, record *models.TopicMastery) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "topic"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mastery", "attempts", "streak", "time_on_task_ms", "updated_at",
			}),
		}).
		Create(record).Error; err != nil {
		return fmt.Errorf("failed to upsert mastery: %w", err)
	}
	return nil
}
