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

type SessionPostgreSQL struct {
	db *gorm.DB
}

// Create creates a new assessment session
func (r *SessionPostgreSQL) Create(ctx context.Context, session *models.AssessmentSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// GetByIDForUpdate retrieves a session holding a FOR UPDATE row lock.
// Callers must be inside WithTransaction or the lock is released
// immediately.
func (r *SessionPostgreSQL) GetByIDForUpdate(ctx context.Context, id uint) (*models.AssessmentSession, error) {
	var session models.AssessmentSession
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	return &session, nil
}

// Update persists the full session row
func (r *SessionPostgreSQL) Update(ctx context.Context, session *models.AssessmentSession) error {
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// ApplyViolation applies the counter increments for one violation in a
// single UPDATE and returns the refreshed row. The risk score expression
// reads the pre-update counters, so the increments are folded in inline.
func (r *SessionPostgreSQL) ApplyViolation(ctx context.Context, id uint, severity models.Severity, tabSwitch bool) (*models.AssessmentSession, error) {
	minorInc, majorInc := 0, 0
	if severity == models.SeverityMajor {
		majorInc = 1
	} else {
		minorInc = 1
	}
	tabInc := 0
	if tabSwitch {
		tabInc = 1
	}

	updates := map[string]interface{}{
		"minor_violations": gorm.Expr("minor_violations + ?", minorInc),
		"major_violations": gorm.Expr("major_violations + ?", majorInc),
		"total_violations": gorm.Expr("total_violations + 1"),
		"tab_switch_count": gorm.Expr("tab_switch_count + ?", tabInc),
		"risk_score": gorm.Expr(
			"(major_violations + ?) * ? + (minor_violations + ?) * ?",
			majorInc, models.RiskWeightMajor, minorInc, models.RiskWeightMinor,
		),
	}

	result := r.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to apply violation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, repositories.ErrNotFound
	}

	var session models.AssessmentSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, fmt.Errorf("failed to reload session: %w", err)
	}

	return &session, nil
}

// List returns sessions matching the filters plus the unpaged total
func (r *SessionPostgreSQL) List(ctx context.Context, filters repositories.SessionFilters) ([]*models.AssessmentSession, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AssessmentSession{})

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Mode != nil {
		query = query.Where("mode = ?", *filters.Mode)
	}
	if filters.Proctored != nil {
		query = query.Where("proctored = ?", *filters.Proctored)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var sessions []*models.AssessmentSession
	if err := query.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, total, nil
}
