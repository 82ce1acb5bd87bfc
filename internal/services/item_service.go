package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"gorm.io/datatypes"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
	"github.com/adaptive-ed/assessment-engine/internal/validator"
)

type itemService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewItemService(repo repositories.Repository, logger *slog.Logger, v *validator.BusinessValidator) ItemService {
	return &itemService{repo: repo, logger: logger, validator: v}
}

// Create authors a bank item. The grading method defaults from the type and
// may only be overridden within the compatible set.
func (s *itemService) Create(ctx context.Context, req *CreateItemRequest) (*models.Item, error) {
	if errs := s.validator.ValidateItemCreate(req); len(errs) > 0 {
		return nil, NewValidationError(errs[0].Field, errs[0].Message, errs[0].Value)
	}

	method := models.DefaultGradingMethod(req.Type)
	if req.GradingMethod != nil {
		method = *req.GradingMethod
	}

	answerJSON, err := json.Marshal(req.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}

	item := &models.Item{
		Type:          req.Type,
		Question:      req.Question,
		Answer:        datatypes.JSON(answerJSON),
		GradingMethod: method,
		Difficulty:    req.Difficulty,
		Source:        models.SourceAuthored,
		CreatedBy:     req.CreatedBy,
		Explanation:   req.Explanation,
	}

	if len(req.Choices) > 0 {
		choicesJSON, err := json.Marshal(req.Choices)
		if err != nil {
			return nil, fmt.Errorf("failed to encode choices: %w", err)
		}
		item.Choices = datatypes.JSON(choicesJSON)
	}
	if len(req.Topics) > 0 {
		topicsJSON, err := json.Marshal(req.Topics)
		if err != nil {
			return nil, fmt.Errorf("failed to encode topics: %w", err)
		}
		item.Topics = datatypes.JSON(topicsJSON)
	}
	if len(req.Hints) > 0 {
		hintsJSON, err := json.Marshal(req.Hints)
		if err != nil {
			return nil, fmt.Errorf("failed to encode hints: %w", err)
		}
		item.Hints = datatypes.JSON(hintsJSON)
	}

	if err := s.repo.Item().Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.logger.InfoContext(ctx, "Item created",
		"item_id", item.ID, "type", item.Type, "difficulty", item.Difficulty)

	return item, nil
}

func (s *itemService) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	item, err := s.repo.Item().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *itemService) Find(ctx context.Context, filters repositories.ItemFilters) ([]*models.Item, error) {
	return s.repo.Item().Find(ctx, filters)
}
