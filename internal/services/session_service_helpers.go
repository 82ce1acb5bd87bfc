package services

import (
	"context"
	"math"

	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
	"github.com/adaptive-ed/assessment-engine/internal/validator"
)

// activeStateError maps a non-active session status to its typed error.
func activeStateError(session *models.AssessmentSession) error {
	switch session.Status {
	case models.SessionActive:
		return nil
	case models.SessionCompleted:
		return ErrSessionAlreadyCompleted
	case models.SessionCancelled:
		return ErrSessionCancelled
	case models.SessionInvalidated:
		return ErrSessionInvalidated
	default:
		return ErrSessionNotActive
	}
}

// loadOwnedSession fetches a session and enforces caller ownership.
func (s *sessionService) loadOwnedSession(ctx context.Context, sessionID uint, userID, action string) (*models.AssessmentSession, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, NewPermissionError(userID, sessionID, "session", action, "not the session owner")
	}
	return session, nil
}

// buildProctorConfig layers request overrides on the platform defaults.
func buildProctorConfig(cfg models.ProctorConfig, override *validator.ProctorConfigRequest) models.ProctorConfig {
	if override == nil {
		return cfg
	}

	if override.AllowTabSwitchCount != nil {
		cfg.AllowTabSwitchCount = *override.AllowTabSwitchCount
	}
	if override.BlockRightClick != nil {
		cfg.BlockRightClick = *override.BlockRightClick
	}
	if override.BlockCopyPaste != nil {
		cfg.BlockCopyPaste = *override.BlockCopyPaste
	}
	if override.RequireFullScreen != nil {
		cfg.RequireFullScreen = *override.RequireFullScreen
	}
	if override.RiskThreshold != nil {
		cfg.RiskThreshold = *override.RiskThreshold
	}
	return cfg
}

// roundedScore is round(100 * correct / total) on the 0-100 scale.
func roundedScore(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

func (s *sessionService) publishCompleted(ctx context.Context, session *models.AssessmentSession, result *FinishSessionResponse) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventSessionCompleted, events.SessionCompletedEvent{
		SessionID:   session.ID,
		UserID:      session.UserID,
		Mode:        string(session.Mode),
		Score:       result.Score,
		ItemCount:   result.Total,
		CompletedAt: result.CompletedAt,
	})
	if err := s.publisher.Publish(ctx, events.TopicSessions, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish completion event",
			"session_id", session.ID, "error", err)
	}
}
