package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

const (
	defaultSelectionLimit = 10
	publishedBatchMaxAge  = 7 * 24 * time.Hour
	batchScanDepth        = 2
	placeholderCount      = 3
)

type selectionService struct {
	repo       repositories.Repository
	logger     *slog.Logger
	generation GenerationService
}

func NewSelectionService(repo repositories.Repository, logger *slog.Logger, generation GenerationService) SelectionService {
	return &selectionService{
		repo:       repo,
		logger:     logger,
		generation: generation,
	}
}

// Select fills an ordered item id list through the fallback chain: bank
// query, recent published batch backfill, draft materialization, wider
// batch scan, async generation trigger, placeholder synthesis. Each stage
// runs only when the previous one under-filled the limit.
func (s *selectionService) Select(ctx context.Context, userID string, mode models.SessionMode, topics []string, requestedDifficulty *int, limit int) ([]uint, error) {
	if limit <= 0 {
		limit = defaultSelectionLimit
	}

	buckets := bucketsForMode(mode, requestedDifficulty)

	// Stage 1-2: direct bank query.
	selected, err := s.queryBank(ctx, topics, buckets, limit, nil)
	if err != nil {
		return nil, err
	}
	if len(selected) >= limit {
		return selected, nil
	}

	if len(topics) == 0 {
		// Without a topic there is nothing to backfill or generate against.
		return selected, nil
	}
	topic := normalizeTopic(topics[0])

	// Stage 3: recently published batch backfill.
	selected, err = s.backfillFromPublished(ctx, topic, buckets, limit, selected)
	if err != nil {
		s.logger.WarnContext(ctx, "Published batch backfill failed", "topic", topic, "error", err)
	}
	if len(selected) >= limit {
		return selected, nil
	}

	// Stage 4-5: materialize draft batches.
	selected, err = s.materializeDrafts(ctx, topic, buckets, limit, selected)
	if err != nil {
		s.logger.WarnContext(ctx, "Draft materialization failed", "topic", topic, "error", err)
	}
	if len(selected) >= limit {
		return selected, nil
	}

	// Stage 6: trigger background generation; do not wait for it.
	if s.generation != nil && len(selected) < limit {
		if s.generation.TriggerAsync(topic, buckets) {
			s.logger.InfoContext(ctx, "Triggered background generation",
				"topic", topic, "have", len(selected), "want", limit)
		}
	}

	if len(selected) > 0 {
		return selected, nil
	}

	// Stage 7: the topic has no content anywhere; synthesize placeholders so
	// an explicitly requested topic never yields zero items.
	bankCount, err := s.repo.Item().CountByTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to probe topic bank: %w", err)
	}
	if bankCount == 0 {
		return s.synthesizePlaceholders(ctx, topic)
	}

	return selected, nil
}

// bucketsForMode maps a session mode onto difficulty buckets. An explicit
// difficulty request overrides the mapping.
func bucketsForMode(mode models.SessionMode, requestedDifficulty *int) []int {
	if requestedDifficulty != nil {
		d := *requestedDifficulty
		if d < 1 {
			d = 1
		}
		if d > 5 {
			d = 5
		}
		return []int{d}
	}

	switch mode {
	case models.ModeDiagnostic:
		return []int{1, 2, 3}
	case models.ModeSummative:
		return []int{3, 4, 5}
	default:
		return []int{2, 3}
	}
}

func (s *selectionService) queryBank(ctx context.Context, topics []string, buckets []int, limit int, exclude []uint) ([]uint, error) {
	items, err := s.repo.Item().Find(ctx, repositories.ItemFilters{
		Topics:       topics,
		Difficulties: buckets,
		ExcludeIDs:   exclude,
		Limit:        limit - len(exclude),
	})
	if err != nil {
		return nil, fmt.Errorf("bank query failed: %w", err)
	}

	selected := append([]uint{}, exclude...)
	for _, item := range items {
		selected = append(selected, item.ID)
	}
	return selected, nil
}

// backfillFromPublished pulls difficulty-matching items linked to a recent
// published batch for the topic.
func (s *selectionService) backfillFromPublished(ctx context.Context, topic string, buckets []int, limit int, selected []uint) ([]uint, error) {
	since := time.Now().Add(-publishedBatchMaxAge)
	batches, err := s.repo.Batch().GetRecent(ctx, repositories.BatchFilters{
		Topic:    topic,
		Statuses: []models.BatchStatus{models.BatchPublished},
		Since:    &since,
		Limit:    1,
	})
	if err != nil || len(batches) == 0 {
		return selected, err
	}

	items, err := s.repo.Item().Find(ctx, repositories.ItemFilters{
		Topics:       []string{topic},
		Difficulties: buckets,
		BatchID:      &batches[0].ID,
		ExcludeIDs:   selected,
		Limit:        limit - len(selected),
	})
	if err != nil {
		return selected, err
	}

	for _, item := range items {
		selected = append(selected, item.ID)
		if len(selected) >= limit {
			break
		}
	}
	return selected, nil
}

// materializeDrafts publishes draft batches whose parsed items can cover the
// remaining gap, scanning up to batchScanDepth recent batches.
func (s *selectionService) materializeDrafts(ctx context.Context, topic string, buckets []int, limit int, selected []uint) ([]uint, error) {
	batches, err := s.repo.Batch().GetRecent(ctx, repositories.BatchFilters{
		Topic:    topic,
		Statuses: []models.BatchStatus{models.BatchDraft},
		Limit:    batchScanDepth,
	})
	if err != nil || len(batches) == 0 {
		return selected, err
	}

	for _, batch := range batches {
		if len(selected) >= limit {
			break
		}
		gap := limit - len(selected)
		// The first draft considered must cover the gap on its own; later
		// scan passes take whatever is there.
		if batch == batches[0] && batch.ItemCount < gap && len(batches) > 1 {
			continue
		}

		items, err := materializeBatch(ctx, s.repo, batch)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to materialize draft batch",
				"batch_id", batch.ID, "error", err)
			continue
		}

		for _, item := range items {
			if containsBucket(buckets, item.Difficulty) {
				selected = append(selected, item.ID)
				if len(selected) >= limit {
					break
				}
			}
		}
	}

	return selected, nil
}

// synthesizePlaceholders inserts a small fixed set of clearly labeled
// multiple-choice items so an explicitly requested empty topic still
// returns content.
func (s *selectionService) synthesizePlaceholders(ctx context.Context, topic string) ([]uint, error) {
	topicsJSON, err := json.Marshal([]string{topic})
	if err != nil {
		return nil, fmt.Errorf("failed to encode topics: %w", err)
	}

	choices := []string{"True", "False"}
	choicesJSON, _ := json.Marshal(choices)
	answerJSON, _ := json.Marshal(models.AnswerKey{Text: "True"})

	items := make([]*models.Item, 0, placeholderCount)
	for i := 0; i < placeholderCount; i++ {
		items = append(items, &models.Item{
			Type: models.ItemMCQ,
			Question: fmt.Sprintf(
				"[Placeholder %d] Content for topic %q is still being prepared. Select True to continue.",
				i+1, topic),
			Choices:       datatypes.JSON(choicesJSON),
			Answer:        datatypes.JSON(answerJSON),
			GradingMethod: models.GradeExact,
			Difficulty:    1,
			Topics:        datatypes.JSON(topicsJSON),
			Source:        models.SourcePlaceholder,
		})
	}

	if err := s.repo.Item().CreateBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to store placeholder items: %w", err)
	}

	s.logger.InfoContext(ctx, "Synthesized placeholder items", "topic", topic, "count", len(items))

	ids := make([]uint, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}

func containsBucket(buckets []int, difficulty int) bool {
	for _, b := range buckets {
		if b == difficulty {
			return true
		}
	}
	return false
}
