package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/adaptive-ed/assessment-engine/internal/cache"
	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/llm"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

const (
	defaultGenerationCount = 5
	dedupStaleAfter        = 5 * time.Minute
	dedupSweepInterval     = time.Minute
)

type generationService struct {
	repo              repositories.Repository
	logger            *slog.Logger
	llmClient         llm.Client
	cacheManager      *cache.CacheManager
	publisher         events.EventPublisher
	generationTimeout time.Duration
	notesTimeout      time.Duration
	dedupWindow       time.Duration

	// Process-local dedup fallback for deployments without Redis. Entries
	// are swept once older than dedupStaleAfter.
	dedupMu      sync.Mutex
	dedupStarted map[string]time.Time
	stopJanitor  chan struct{}
	janitorOnce  sync.Once
}

type GenerationConfig struct {
	GenerationTimeout time.Duration
	NotesTimeout      time.Duration
	DedupWindow       time.Duration
}

func NewGenerationService(repo repositories.Repository, logger *slog.Logger, llmClient llm.Client, cacheManager *cache.CacheManager, publisher events.EventPublisher, cfg GenerationConfig) GenerationService {
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 8 * time.Second
	}
	if cfg.NotesTimeout <= 0 {
		cfg.NotesTimeout = 15 * time.Second
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 120 * time.Second
	}

	return &generationService{
		repo:              repo,
		logger:            logger,
		llmClient:         llmClient,
		cacheManager:      cacheManager,
		publisher:         publisher,
		generationTimeout: cfg.GenerationTimeout,
		notesTimeout:      cfg.NotesTimeout,
		dedupWindow:       cfg.DedupWindow,
		dedupStarted:      make(map[string]time.Time),
		stopJanitor:       make(chan struct{}),
	}
}

// ===== SYNCHRONOUS GENERATION =====

// Generate runs one LLM generation round, stores the batch, and
// materializes the parsed items into the bank.
func (s *generationService) Generate(ctx context.Context, req *GenerateItemsRequest) (*GenerateItemsResponse, error) {
	if s.llmClient == nil {
		return nil, NewValidationError("llm", "no completion provider configured", nil)
	}

	count := req.Count
	if count <= 0 {
		count = defaultGenerationCount
	}

	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	raw, err := s.llmClient.Complete(genCtx, llm.BuildGenerationPrompt(req.Topic, count, req.Difficulties))
	if err != nil {
		return nil, fmt.Errorf("generation call failed: %w", err)
	}

	parsed, err := parseGeneratedItems(raw)
	if err != nil {
		return nil, fmt.Errorf("generation output unusable: %w", err)
	}

	valid := make([]models.ParsedItem, 0, len(parsed))
	for i, p := range parsed {
		if err := validateParsedItem(p); err != nil {
			s.logger.WarnContext(ctx, "Dropping invalid generated item",
				"topic", req.Topic, "index", i, "error", err)
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("generation produced no valid items")
	}

	itemsJSON, err := json.Marshal(valid)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch items: %w", err)
	}

	batch := &models.GeneratedBatch{
		Topic:               normalizeTopic(req.Topic),
		Status:              models.BatchDraft,
		Items:               datatypes.JSON(itemsJSON),
		ItemCount:           len(valid),
		DifficultySignature: bucketSignature(req.Difficulties),
	}
	if err := s.repo.Batch().Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	items, err := materializeBatch(ctx, s.repo, batch)
	if err != nil {
		return nil, err
	}

	s.publishGenerated(ctx, batch)

	s.logger.InfoContext(ctx, "Generated items for topic",
		"topic", req.Topic, "batch_id", batch.ID, "count", len(items))

	return &GenerateItemsResponse{BatchID: batch.ID, Items: items}, nil
}

// ===== ASYNC GENERATION =====

// TriggerAsync starts a deduplicated background generation. The dedup key
// covers (normalized topic, bucket signature); a held lease suppresses the
// request silently.
func (s *generationService) TriggerAsync(topic string, difficulties []int) bool {
	if s.llmClient == nil {
		return false
	}

	key := dedupKey(topic, difficulties)
	if !s.acquireDedup(key) {
		return false
	}

	s.janitorOnce.Do(func() { go s.dedupJanitor() })

	go func() {
		// Detached from the triggering request on purpose.
		ctx, cancel := context.WithTimeout(context.Background(), s.generationTimeout+2*time.Second)
		defer cancel()

		req := &GenerateItemsRequest{Topic: topic, Difficulties: difficulties}
		if _, err := s.Generate(ctx, req); err != nil {
			s.logger.Warn("Background generation failed",
				"topic", topic, "error", err)
		}
	}()

	return true
}

// acquireDedup claims the generation lease, preferring the shared Redis
// store so the window holds across instances.
func (s *generationService) acquireDedup(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := s.cacheManager.Fast.AcquireLease(ctx, "genlock:"+key, uuid.New().String(), s.dedupWindow)
	if err == nil {
		return ok
	}
	if err != cache.ErrCacheNotAvailable {
		s.logger.Warn("Dedup lease check failed, using local fallback", "error", err)
	}

	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if started, exists := s.dedupStarted[key]; exists && time.Since(started) < s.dedupWindow {
		return false
	}
	s.dedupStarted[key] = time.Now()
	return true
}

func (s *generationService) dedupJanitor() {
	ticker := time.NewTicker(dedupSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopJanitor:
			return
		case <-ticker.C:
			s.dedupMu.Lock()
			for key, started := range s.dedupStarted {
				if time.Since(started) > dedupStaleAfter {
					delete(s.dedupStarted, key)
				}
			}
			s.dedupMu.Unlock()
		}
	}
}

// Close stops the janitor goroutine.
func (s *generationService) Close() {
	close(s.stopJanitor)
}

// ===== STUDY NOTES =====

func (s *generationService) GenerateStudyNotes(ctx context.Context, req *StudyNotesRequest) (*StudyNotesResponse, error) {
	if s.llmClient == nil {
		return nil, NewValidationError("llm", "no completion provider configured", nil)
	}

	focus := req.Focus
	if len(focus) == 0 && req.UserID != "" {
		focus = s.weakTopics(ctx, req.UserID, req.Topic)
	}

	notesCtx, cancel := context.WithTimeout(ctx, s.notesTimeout)
	defer cancel()

	notes, err := s.llmClient.Complete(notesCtx, llm.BuildStudyNotesPrompt(req.Topic, focus))
	if err != nil {
		return nil, fmt.Errorf("study notes call failed: %w", err)
	}

	return &StudyNotesResponse{Topic: req.Topic, Notes: notes}, nil
}

// weakTopics pulls the learner's lowest-mastery topics to steer the notes.
func (s *generationService) weakTopics(ctx context.Context, userID, topic string) []string {
	rows, err := s.repo.Mastery().GetByUser(ctx, userID)
	if err != nil || len(rows) == 0 {
		return nil
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Mastery < rows[j].Mastery })

	var focus []string
	for _, row := range rows {
		if row.Topic == topic || row.Mastery >= 60 {
			continue
		}
		focus = append(focus, row.Topic)
		if len(focus) == 3 {
			break
		}
	}
	return focus
}

// ===== HELPERS =====

func (s *generationService) publishGenerated(ctx context.Context, batch *models.GeneratedBatch) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventItemsGenerated, events.ItemsGeneratedEvent{
		BatchID:   batch.ID,
		Topic:     batch.Topic,
		ItemCount: batch.ItemCount,
	})
	if err := s.publisher.Publish(ctx, events.TopicItems, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish generation event",
			"batch_id", batch.ID, "error", err)
	}
}

// parseGeneratedItems accepts either {"items":[...]} or a bare array.
func parseGeneratedItems(raw string) ([]models.ParsedItem, error) {
	raw = strings.TrimSpace(raw)

	var wrapper struct {
		Items []models.ParsedItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil && len(wrapper.Items) > 0 {
		return wrapper.Items, nil
	}

	var items []models.ParsedItem
	if err := json.Unmarshal([]byte(raw), &items); err == nil && len(items) > 0 {
		return items, nil
	}

	return nil, fmt.Errorf("response is not an item array")
}

func validateParsedItem(p models.ParsedItem) error {
	if strings.TrimSpace(p.Question) == "" {
		return fmt.Errorf("blank question")
	}

	switch p.Type {
	case models.ItemMCQ:
		if len(p.Choices) < 2 {
			return fmt.Errorf("mcq needs at least 2 choices")
		}
		if p.Answer.Text == "" {
			return fmt.Errorf("mcq needs an answer text")
		}
	case models.ItemFillBlank:
		if p.Answer.Text == "" {
			return fmt.Errorf("fill_blank needs an answer text")
		}
	case models.ItemShortAnswer:
		if p.Answer.Text == "" && len(p.Answer.Texts) == 0 {
			return fmt.Errorf("short_answer needs a reference answer")
		}
	case models.ItemMatch:
		if len(p.Answer.Pairs) < 2 {
			return fmt.Errorf("match needs at least 2 pairs")
		}
	case models.ItemReorder:
		if len(p.Answer.Sequence) < 2 {
			return fmt.Errorf("reorder needs at least 2 elements")
		}
	default:
		return fmt.Errorf("unknown item type %q", p.Type)
	}

	return nil
}

// materializeBatch writes a draft batch's parsed items into the bank and
// marks the batch published, in one transaction.
func materializeBatch(ctx context.Context, repo repositories.Repository, batch *models.GeneratedBatch) ([]*models.Item, error) {
	parsed := batch.ParsedItems()
	if len(parsed) == 0 {
		return nil, fmt.Errorf("batch %d holds no parsed items", batch.ID)
	}

	topicsJSON, err := json.Marshal([]string{batch.Topic})
	if err != nil {
		return nil, fmt.Errorf("failed to encode topics: %w", err)
	}

	items := make([]*models.Item, 0, len(parsed))
	for _, p := range parsed {
		item, err := parsedToItem(p, batch.ID, topicsJSON)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	err = repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Item().CreateBatch(ctx, items); err != nil {
			return err
		}
		return tx.Batch().MarkPublished(ctx, batch.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to materialize batch %d: %w", batch.ID, err)
	}

	batch.Status = models.BatchPublished
	return items, nil
}

func parsedToItem(p models.ParsedItem, batchID uint, topicsJSON []byte) (*models.Item, error) {
	answerJSON, err := json.Marshal(p.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}

	difficulty := p.Difficulty
	if difficulty < 1 {
		difficulty = 1
	}
	if difficulty > 5 {
		difficulty = 5
	}

	item := &models.Item{
		Type:          p.Type,
		Question:      p.Question,
		Answer:        datatypes.JSON(answerJSON),
		GradingMethod: models.DefaultGradingMethod(p.Type),
		Difficulty:    difficulty,
		Topics:        datatypes.JSON(topicsJSON),
		Source:        models.SourceGenerated,
		BatchID:       &batchID,
	}

	if len(p.Choices) > 0 {
		choicesJSON, err := json.Marshal(p.Choices)
		if err != nil {
			return nil, fmt.Errorf("failed to encode choices: %w", err)
		}
		item.Choices = datatypes.JSON(choicesJSON)
	}
	if len(p.Hints) > 0 {
		hintsJSON, err := json.Marshal(p.Hints)
		if err != nil {
			return nil, fmt.Errorf("failed to encode hints: %w", err)
		}
		item.Hints = datatypes.JSON(hintsJSON)
	}
	if p.Explanation != "" {
		explanation := p.Explanation
		item.Explanation = &explanation
	}

	return item, nil
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// bucketSignature renders a sorted difficulty set as "1-2-3".
func bucketSignature(difficulties []int) string {
	if len(difficulties) == 0 {
		return ""
	}
	sorted := make([]int, len(difficulties))
	copy(sorted, difficulties)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, d := range sorted {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return strings.Join(parts, "-")
}

func dedupKey(topic string, difficulties []int) string {
	return normalizeTopic(topic) + "|" + bucketSignature(difficulties)
}
