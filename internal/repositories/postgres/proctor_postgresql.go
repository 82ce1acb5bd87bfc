package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/adaptive-ed/assessment-engine/internal/models"
)

type ProctorLogPostgreSQL struct {
	db *gorm.DB
}

// Create appends a proctor log entry. Log rows are never updated or deleted.
func (r *ProctorLogPostgreSQL) Create(ctx context.Context, log *models.ProctorLog) error {
	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create proctor log: %w", err)
	}
	return nil
}

// GetBySession returns a session's proctor log in chronological order
func (r *ProctorLogPostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctorLog, error) {
	var logs []*models.ProctorLog
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get proctor logs: %w", err)
	}
	return logs, nil
}

type OverridePostgreSQL struct {
	db *gorm.DB
}

// Create appends an override audit record
func (r *OverridePostgreSQL) Create(ctx context.Context, override *models.SessionOverride) error {
	if err := r.db.WithContext(ctx).Create(override).Error; err != nil {
		return fmt.Errorf("failed to create override: %w", err)
	}
	return nil
}

// GetBySession returns a session's override history, newest first
func (r *OverridePostgreSQL) GetBySession(ctx context.Context, sessionID uint) ([]*models.SessionOverride, error) {
	var overrides []*models.SessionOverride
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&overrides).Error; err != nil {
		return nil, fmt.Errorf("failed to get overrides: %w", err)
	}
	return overrides, nil
}
