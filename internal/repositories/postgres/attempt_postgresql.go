package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/adaptive-ed/assessment-engine/internal/models"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

// Create inserts an attempt. The unique (session_id, item_id) index rejects
// a second attempt for the same item; callers surface that as a conflict.
func (r *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.Attempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	return nil
}

// GetBySession returns a session's attempts in presentation order
func (r *AttemptPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("item_index ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempts: %w", err)
	}
	return attempts, nil
}

// CountCorrect counts the correct attempts in a session
func (r *AttemptPostgreSQL) CountCorrect(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("session_id = ? AND is_correct = ?", sessionID, true).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count correct attempts: %w", err)
	}
	return count, nil
}
