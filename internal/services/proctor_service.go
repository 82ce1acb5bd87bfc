package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"

	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

const (
	OverrideActionInvalidate = "invalidate"
	OverrideActionRestore    = "restore"
)

type proctorService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	publisher events.EventPublisher
}

func NewProctorService(repo repositories.Repository, logger *slog.Logger, publisher events.EventPublisher) ProctorService {
	return &proctorService{
		repo:      repo,
		logger:    logger,
		publisher: publisher,
	}
}

// RecordViolation ingests one proctoring event: classify severity, append
// the log row, apply the counter increments atomically, and auto-invalidate
// once the risk score crosses the threshold. The whole update runs under a
// session row lock so rapid bursts never lose increments.
func (s *proctorService) RecordViolation(ctx context.Context, sessionID uint, req *ViolationRequest) (*ViolationResponse, error) {
	if !models.IsKnownViolation(req.ViolationType) {
		return nil, NewValidationError("violation_type", "unrecognized violation type", req.ViolationType)
	}

	var (
		response    *ViolationResponse
		invalidated bool
		updated     *models.AssessmentSession
	)

	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		session, err := tx.Session().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return err
		}

		if !session.Proctored {
			return ErrSessionNotProctored
		}

		severity := classifySeverity(req.ViolationType, session)

		logRow := &models.ProctorLog{
			SessionID:     sessionID,
			UserID:        session.UserID,
			ViolationType: req.ViolationType,
			Severity:      severity,
		}
		if len(req.Details) > 0 {
			detailsJSON, err := json.Marshal(req.Details)
			if err != nil {
				return fmt.Errorf("failed to encode violation details: %w", err)
			}
			logRow.Details = datatypes.JSON(detailsJSON)
		}
		if err := tx.ProctorLog().Create(ctx, logRow); err != nil {
			return err
		}

		updated, err = tx.Session().ApplyViolation(ctx, sessionID, severity, req.ViolationType == models.ViolationTabSwitch)
		if err != nil {
			return err
		}

		// One-way automatic transition; only an override reverses it.
		if updated.RiskScore >= updated.ProctorConfig.RiskThreshold && updated.Status == models.SessionActive {
			updated.Status = models.SessionInvalidated
			updated.Invalidated = true
			if err := tx.Session().Update(ctx, updated); err != nil {
				return err
			}
			invalidated = true
		}

		response = &ViolationResponse{
			Summary:     updated.Summary(),
			Invalidated: updated.Invalidated,
			Status:      updated.Status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if invalidated {
		s.logger.WarnContext(ctx, "Session auto-invalidated by risk score",
			"session_id", sessionID,
			"risk_score", updated.RiskScore,
			"threshold", updated.ProctorConfig.RiskThreshold)
		s.publishInvalidated(ctx, updated, "risk threshold exceeded")
	}

	return response, nil
}

// classifySeverity is deterministic. tab_switch escalates once the running
// count has already consumed the allowance; devtools and page exits are
// always major.
func classifySeverity(violationType models.ViolationType, session *models.AssessmentSession) models.Severity {
	switch violationType {
	case models.ViolationDevtoolsOpened, models.ViolationPageExit:
		return models.SeverityMajor
	case models.ViolationTabSwitch:
		if session.TabSwitchCount >= session.ProctorConfig.AllowTabSwitchCount {
			return models.SeverityMajor
		}
		return models.SeverityMinor
	default:
		return models.SeverityMinor
	}
}

// Override applies an instructor invalidate/restore with a mandatory reason
// and an audit row.
func (s *proctorService) Override(ctx context.Context, sessionID uint, req *OverrideRequest) (*models.AssessmentSession, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, ErrOverrideReasonRequired
	}
	if req.Action != OverrideActionInvalidate && req.Action != OverrideActionRestore {
		return nil, NewValidationError("action", "must be invalidate or restore", req.Action)
	}

	var session *models.AssessmentSession
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		session, err = tx.Session().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return err
		}

		switch req.Action {
		case OverrideActionInvalidate:
			// Invalidation only applies to running sessions; completed and
			// cancelled are terminal.
			if err := activeStateError(session); err != nil {
				return err
			}
			session.Status = models.SessionInvalidated
			session.Invalidated = true
		case OverrideActionRestore:
			session.Invalidated = false
			// Restore reopens the session only from the invalidated state;
			// completed and cancelled stay terminal.
			if session.Status == models.SessionInvalidated {
				session.Status = models.SessionActive
			}
		}

		if err := tx.Session().Update(ctx, session); err != nil {
			return err
		}

		return tx.Override().Create(ctx, &models.SessionOverride{
			SessionID: sessionID,
			Action:    req.Action,
			Reason:    req.Reason,
			ActorID:   req.ActorID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Session override applied",
		"session_id", sessionID,
		"action", req.Action,
		"actor_id", req.ActorID)

	s.publishOverridden(ctx, sessionID, req)
	if req.Action == OverrideActionInvalidate {
		s.publishInvalidated(ctx, session, "instructor override")
	}

	return session, nil
}

// GetSummary returns the current violation tally without mutating anything
func (s *proctorService) GetSummary(ctx context.Context, sessionID uint) (*ViolationResponse, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &ViolationResponse{
		Summary:     session.Summary(),
		Invalidated: session.Invalidated,
		Status:      session.Status,
	}, nil
}

// GetLogs returns the chronological violation log for review
func (s *proctorService) GetLogs(ctx context.Context, sessionID uint) ([]*models.ProctorLog, error) {
	if _, err := s.repo.Session().GetByID(ctx, sessionID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.repo.ProctorLog().GetBySession(ctx, sessionID)
}

func (s *proctorService) publishInvalidated(ctx context.Context, session *models.AssessmentSession, reason string) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventSessionInvalidated, events.SessionInvalidatedEvent{
		SessionID: session.ID,
		UserID:    session.UserID,
		RiskScore: session.RiskScore,
		Reason:    reason,
	})
	if err := s.publisher.Publish(ctx, events.TopicSessions, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish invalidation event",
			"session_id", session.ID, "error", err)
	}
}

func (s *proctorService) publishOverridden(ctx context.Context, sessionID uint, req *OverrideRequest) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventSessionOverridden, events.SessionOverriddenEvent{
		SessionID: sessionID,
		Action:    req.Action,
		ActorID:   req.ActorID,
		Reason:    req.Reason,
	})
	if err := s.publisher.Publish(ctx, events.TopicSessions, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish override event",
			"session_id", sessionID, "error", err)
	}
}
