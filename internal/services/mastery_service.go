package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

// Mastery update model constants.
const (
	masteryAlpha          = 0.2
	masteryStreakMinScore = 0.75
	masteryMaxStreakBonus = 15
	masteryTimePenalty    = 2.0
	defaultExpectedMs     = 60_000
)

// difficultyWeights indexes by difficulty 1..5.
var difficultyWeights = [5]float64{0.6, 0.8, 1.0, 1.2, 1.4}

type masteryService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewMasteryService(repo repositories.Repository, logger *slog.Logger) MasteryService {
	return &masteryService{repo: repo, logger: logger}
}

// UpdateRecord applies one graded attempt to a mastery record. Pure and
// deterministic; persistence happens in ApplyAttempt.
func (s *masteryService) UpdateRecord(prior models.MasteryRecord, score float64, difficulty int, timeTakenMs, expectedMs int64) models.MasteryRecord {
	if difficulty < 1 {
		difficulty = 1
	}
	if difficulty > 5 {
		difficulty = 5
	}
	if expectedMs <= 0 {
		expectedMs = defaultExpectedMs
	}

	weight := difficultyWeights[difficulty-1]
	rawGain := score * weight * 10

	// Single-step EMA toward the gain-boosted target, not toward the gain.
	target := math.Min(100, prior.Mastery+rawGain)
	masteryNew := prior.Mastery*(1-masteryAlpha) + masteryAlpha*target

	streakBonus := math.Min(masteryMaxStreakBonus, math.Floor(float64(prior.Streak)/3)*5)

	timePenalty := 0.0
	if float64(timeTakenMs) > float64(expectedMs)*1.5 {
		timePenalty = masteryTimePenalty
	}

	finalMastery := math.Round(masteryNew + streakBonus - timePenalty)
	if finalMastery < 0 {
		finalMastery = 0
	}
	if finalMastery > 100 {
		finalMastery = 100
	}

	newStreak := 0
	if score >= masteryStreakMinScore {
		newStreak = prior.Streak + 1
	}

	return models.MasteryRecord{
		Mastery:      finalMastery,
		Attempts:     prior.Attempts + 1,
		Streak:       newStreak,
		TimeOnTaskMs: prior.TimeOnTaskMs + timeTakenMs,
	}
}

// ApplyAttempt updates every non-general topic the item carries. A missing
// row starts from the zero record.
func (s *masteryService) ApplyAttempt(ctx context.Context, userID string, item *models.Item, score float64, timeTakenMs int64) error {
	topics := itemTopics(item)

	for _, topic := range topics {
		if topic == models.GeneralTopic {
			continue
		}

		prior := models.MasteryRecord{}
		row, err := s.repo.Mastery().Get(ctx, userID, topic)
		if err != nil && !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to load mastery for topic %s: %w", topic, err)
		}
		if row != nil {
			prior = row.MasteryRecord
		}

		updated := s.UpdateRecord(prior, score, item.Difficulty, timeTakenMs, defaultExpectedMs)

		record := &models.TopicMastery{
			UserID:        userID,
			Topic:         topic,
			MasteryRecord: updated,
		}
		if row != nil {
			record.ID = row.ID
			record.CreatedAt = row.CreatedAt
		}

		if err := s.repo.Mastery().Upsert(ctx, record); err != nil {
			return fmt.Errorf("failed to persist mastery for topic %s: %w", topic, err)
		}

		s.logger.DebugContext(ctx, "mastery updated",
			"user_id", userID,
			"topic", topic,
			"mastery", updated.Mastery,
			"streak", updated.Streak)
	}

	return nil
}

// GetByUser returns the learner's per-topic mastery map. Topics with no row
// simply do not appear; callers treat a miss as the zero record.
func (s *masteryService) GetByUser(ctx context.Context, userID string) (*MasteryResponse, error) {
	rows, err := s.repo.Mastery().GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mastery records: %w", err)
	}

	topics := make(map[string]models.MasteryRecord, len(rows))
	for _, row := range rows {
		topics[row.Topic] = row.MasteryRecord
	}

	return &MasteryResponse{UserID: userID, Topics: topics}, nil
}

func itemTopics(item *models.Item) []string {
	var topics []string
	if len(item.Topics) > 0 {
		_ = json.Unmarshal(item.Topics, &topics)
	}
	return topics
}
