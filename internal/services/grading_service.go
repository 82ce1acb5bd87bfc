package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/adaptive-ed/assessment-engine/internal/llm"
	"github.com/adaptive-ed/assessment-engine/internal/models"
)

// Thresholds for the text strategies.
const (
	fuzzyCorrectThreshold    = 0.8
	semanticCorrectThreshold = 0.75
)

type gradingService struct {
	logger         *slog.Logger
	llmClient      llm.Client
	gradingTimeout time.Duration
}

func NewGradingService(logger *slog.Logger, llmClient llm.Client, gradingTimeout time.Duration) GradingService {
	if gradingTimeout <= 0 {
		gradingTimeout = 10 * time.Second
	}
	return &gradingService{
		logger:         logger,
		llmClient:      llmClient,
		gradingTimeout: gradingTimeout,
	}
}

// Grade dispatches on the item's grading method. It always produces a
// result; collaborator failures degrade to the fuzzy fallback with
// NeedsManualGrading set.
func (s *gradingService) Grade(ctx context.Context, item *models.Item, submitted models.SubmittedAnswer) *GradeResult {
	key, err := decodeAnswerKey(item)
	if err != nil {
		s.logger.ErrorContext(ctx, "Item has unreadable answer key",
			"item_id", item.ID, "error", err)
		return &GradeResult{
			Score:              0,
			Details:            map[string]interface{}{"method": string(item.GradingMethod), "error": "unreadable answer key"},
			NeedsManualGrading: true,
		}
	}

	var result *GradeResult
	switch item.GradingMethod {
	case models.GradeExact:
		result = gradeExact(key, submitted)
	case models.GradeFuzzy:
		result = gradeFuzzy(key, submitted)
	case models.GradeSemantic:
		result = s.gradeSemantic(ctx, item, key, submitted)
	case models.GradePairs:
		result = gradePairs(key, submitted)
	case models.GradePositional:
		result = gradePositional(key, submitted)
	default:
		result = gradeExact(key, submitted)
	}

	if result.IsCorrect && item.Explanation != nil && result.Explanation == "" {
		result.Explanation = *item.Explanation
	}

	return result
}

func decodeAnswerKey(item *models.Item) (models.AnswerKey, error) {
	var key models.AnswerKey
	if err := json.Unmarshal(item.Answer, &key); err != nil {
		return models.AnswerKey{}, err
	}
	return key, nil
}
