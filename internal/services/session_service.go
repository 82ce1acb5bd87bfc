package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
	"github.com/adaptive-ed/assessment-engine/internal/validator"
)

type sessionService struct {
	repo            repositories.Repository
	logger          *slog.Logger
	validator       *validator.BusinessValidator
	selection       SelectionService
	grading         GradingService
	mastery         MasteryService
	publisher       events.EventPublisher
	proctorDefaults models.ProctorConfig
}

func NewSessionService(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.BusinessValidator,
	selection SelectionService,
	grading GradingService,
	mastery MasteryService,
	publisher events.EventPublisher,
	proctorDefaults models.ProctorConfig,
) SessionService {
	return &sessionService{
		repo:            repo,
		logger:          logger,
		validator:       v,
		selection:       selection,
		grading:         grading,
		mastery:         mastery,
		publisher:       publisher,
		proctorDefaults: proctorDefaults,
	}
}

// ===== LIFECYCLE =====

// Start selects items and creates an active session. When selection
// under-fills completely the caller gets a queued response and retries
// shortly; no session row is created.
func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error) {
	if errs := s.validator.ValidateSessionStart(req); len(errs) > 0 {
		return nil, NewValidationError(errs[0].Field, errs[0].Message, errs[0].Value)
	}

	limit := req.ItemCount
	if limit <= 0 {
		limit = defaultSelectionLimit
	}

	itemIDs, err := s.selection.Select(ctx, req.UserID, req.Mode, req.Topics, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("item selection failed: %w", err)
	}
	if len(itemIDs) == 0 {
		s.logger.InfoContext(ctx, "Selection under-filled, queueing caller",
			"user_id", req.UserID, "topics", req.Topics)
		return &StartSessionResponse{Queued: true}, nil
	}

	proctored := req.Mode == models.ModeProctored
	if req.Proctored != nil && *req.Proctored {
		proctored = true
	}

	itemIDsJSON, err := json.Marshal(itemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item ids: %w", err)
	}

	session := &models.AssessmentSession{
		UserID:        req.UserID,
		Mode:          req.Mode,
		ItemIDs:       datatypes.JSON(itemIDsJSON),
		Status:        models.SessionActive,
		Proctored:     proctored,
		ProctorConfig: buildProctorConfig(s.proctorDefaults, req.ProctorConfig),
	}

	if err := s.repo.Session().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.InfoContext(ctx, "Session started",
		"session_id", session.ID,
		"user_id", req.UserID,
		"mode", req.Mode,
		"item_count", len(itemIDs),
		"proctored", proctored)

	resp := &StartSessionResponse{
		SessionID:    session.ID,
		ItemIDs:      itemIDs,
		CurrentIndex: 0,
	}
	if proctored {
		cfg := session.ProctorConfig
		resp.ProctorConfig = &cfg
	}
	return resp, nil
}

// SubmitAnswer grades the current item and advances the session by exactly
// one position. Grading (which may call the LLM) runs before the
// transaction, so concurrent duplicate submits may each grade; the row lock
// then re-checks the index and the unique attempt constraint, so only one
// attempt is recorded and the index advances exactly once.
func (s *sessionService) SubmitAnswer(ctx context.Context, sessionID uint, userID string, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, userID, "answer")
	if err != nil {
		return nil, err
	}
	if err := activeStateError(session); err != nil {
		return nil, err
	}

	itemIDs := session.Items()
	if session.CurrentIndex >= len(itemIDs) {
		return nil, ErrNoCurrentItem
	}
	submittedIndex := session.CurrentIndex
	itemID := itemIDs[submittedIndex]

	item, err := s.repo.Item().GetByID(ctx, itemID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to load item: %w", err)
	}

	if !req.Answer.MatchesType(item.Type) {
		return nil, NewValidationError("answer", fmt.Sprintf("answer shape does not match %s item", item.Type), nil)
	}

	result := s.grading.Grade(ctx, item, req.Answer)

	answerJSON, err := json.Marshal(req.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}
	detailsJSON, err := json.Marshal(result.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grading details: %w", err)
	}

	var newIndex int
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		locked, err := tx.Session().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := activeStateError(locked); err != nil {
			return err
		}
		if locked.CurrentIndex != submittedIndex {
			return ErrDuplicateAttempt
		}

		attempt := &models.Attempt{
			SessionID:          sessionID,
			ItemID:             itemID,
			UserID:             userID,
			ItemIndex:          submittedIndex,
			IsCorrect:          result.IsCorrect,
			Score:              result.Score,
			UserAnswer:         datatypes.JSON(answerJSON),
			GradingDetails:     datatypes.JSON(detailsJSON),
			NeedsManualGrading: result.NeedsManualGrading,
			TimeTakenMs:        req.TimeTakenMs,
		}
		if err := tx.Attempt().Create(ctx, attempt); err != nil {
			return err
		}

		locked.CurrentIndex = submittedIndex + 1
		if err := tx.Session().Update(ctx, locked); err != nil {
			return err
		}
		newIndex = locked.CurrentIndex
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Mastery updates are best-effort; a failed update never rolls back the
	// graded attempt.
	if err := s.mastery.ApplyAttempt(ctx, userID, item, result.Score, int64(req.TimeTakenMs)); err != nil {
		s.logger.ErrorContext(ctx, "Mastery update failed",
			"session_id", sessionID, "item_id", itemID, "error", err)
	}

	return &SubmitAnswerResponse{
		IsCorrect:          result.IsCorrect,
		Score:              result.Score,
		Explanation:        result.Explanation,
		NeedsManualGrading: result.NeedsManualGrading,
		CurrentIndex:       newIndex,
		HasMore:            newIndex < len(itemIDs),
	}, nil
}

// Finish completes an active session; unanswered items count as incorrect.
// Re-finishing a completed session returns the stored result unchanged.
func (s *sessionService) Finish(ctx context.Context, sessionID uint, userID string) (*FinishSessionResponse, error) {
	var resp *FinishSessionResponse
	var completedNow bool
	var completed *models.AssessmentSession

	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		session, err := tx.Session().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.UserID != userID {
			return NewPermissionError(userID, sessionID, "session", "finish", "not the session owner")
		}

		total := len(session.Items())

		correct, err := tx.Attempt().CountCorrect(ctx, sessionID)
		if err != nil {
			return err
		}

		switch session.Status {
		case models.SessionCompleted:
			// Idempotent re-finish.
			score := 0
			if session.Score != nil {
				score = *session.Score
			}
			completedAt := time.Now()
			if session.CompletedAt != nil {
				completedAt = *session.CompletedAt
			}
			resp = &FinishSessionResponse{
				Score:       score,
				Total:       total,
				Correct:     int(correct),
				CompletedAt: completedAt,
			}
			return nil
		case models.SessionCancelled:
			return ErrSessionCancelled
		case models.SessionInvalidated:
			return ErrSessionInvalidated
		}

		score := roundedScore(int(correct), total)
		now := time.Now()
		session.Status = models.SessionCompleted
		session.Score = &score
		session.CompletedAt = &now

		if err := tx.Session().Update(ctx, session); err != nil {
			return err
		}

		completedNow = true
		completed = session
		resp = &FinishSessionResponse{
			Score:       score,
			Total:       total,
			Correct:     int(correct),
			CompletedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completedNow {
		s.logger.InfoContext(ctx, "Session completed",
			"session_id", sessionID,
			"score", resp.Score,
			"correct", resp.Correct,
			"total", resp.Total)
		s.publishCompleted(ctx, completed, resp)
	}

	return resp, nil
}

// Cancel explicitly moves an active session to cancelled
func (s *sessionService) Cancel(ctx context.Context, sessionID uint, userID string) error {
	return s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		session, err := tx.Session().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.UserID != userID {
			return NewPermissionError(userID, sessionID, "session", "cancel", "not the session owner")
		}
		if err := activeStateError(session); err != nil {
			return err
		}

		session.Status = models.SessionCancelled
		return tx.Session().Update(ctx, session)
	})
}

// ===== READS =====

func (s *sessionService) Get(ctx context.Context, sessionID uint, userID string) (*SessionDetailResponse, error) {
	session, err := s.loadOwnedSession(ctx, sessionID, userID, "read")
	if err != nil {
		return nil, err
	}

	attempts, err := s.repo.Attempt().GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	return &SessionDetailResponse{
		AssessmentSession: session,
		Attempts:          attempts,
	}, nil
}

func (s *sessionService) List(ctx context.Context, filters repositories.SessionFilters) (*SessionListResponse, error) {
	sessions, total, err := s.repo.Session().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return &SessionListResponse{Sessions: sessions, Total: total}, nil
}
