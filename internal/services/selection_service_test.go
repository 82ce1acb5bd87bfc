package services

import (
	"context"
	"reflect"
	"testing"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
)

// stubGeneration records async triggers.
type stubGeneration struct {
	triggered []string
	started   bool
}

func (s *stubGeneration) Generate(ctx context.Context, req *GenerateItemsRequest) (*GenerateItemsResponse, error) {
	return nil, nil
}

func (s *stubGeneration) TriggerAsync(topic string, difficulties []int) bool {
	s.triggered = append(s.triggered, topic)
	return s.started
}

func (s *stubGeneration) GenerateStudyNotes(ctx context.Context, req *StudyNotesRequest) (*StudyNotesResponse, error) {
	return nil, nil
}

func seedBankItem(t *testing.T, repo *fakeRepository, topic string, difficulty int) uint {
	t.Helper()
	item := &models.Item{
		Type:          models.ItemMCQ,
		Question:      "pick A",
		Choices:       []byte(`["A", "B"]`),
		Answer:        []byte(`{"text": "A"}`),
		GradingMethod: models.GradeExact,
		Difficulty:    difficulty,
		Topics:        []byte(`["` + topic + `"]`),
		Source:        models.SourceAuthored,
	}
	if err := repo.Item().Create(context.Background(), item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item.ID
}

func TestBucketsForMode(t *testing.T) {
	tests := []struct {
		name       string
		mode       models.SessionMode
		difficulty *int
		want       []int
	}{
		{"diagnostic pulls easy buckets", models.ModeDiagnostic, nil, []int{1, 2, 3}},
		{"summative pulls hard buckets", models.ModeSummative, nil, []int{3, 4, 5}},
		{"formative uses the middle", models.ModeFormative, nil, []int{2, 3}},
		{"proctored uses the middle", models.ModeProctored, nil, []int{2, 3}},
		{"explicit difficulty wins", models.ModeSummative, intPtr(2), []int{2}},
		{"explicit difficulty clamps low", models.ModeFormative, intPtr(0), []int{1}},
		{"explicit difficulty clamps high", models.ModeFormative, intPtr(9), []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bucketsForMode(tt.mode, tt.difficulty)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("bucketsForMode(%s) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestSelectFromBank(t *testing.T) {
	ctx := context.Background()

	t.Run("fills from the bank within difficulty buckets", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewSelectionService(repo, testLogger(), nil)

		var want []uint
		for i := 0; i < 3; i++ {
			want = append(want, seedBankItem(t, repo, "algebra", 2))
		}
		seedBankItem(t, repo, "algebra", 5) // out of bucket
		seedBankItem(t, repo, "geometry", 2) // other topic

		got, err := service.Select(ctx, "user-1", models.ModeFormative, []string{"algebra"}, nil, 10)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("respects the limit", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewSelectionService(repo, testLogger(), nil)
		for i := 0; i < 8; i++ {
			seedBankItem(t, repo, "algebra", 2)
		}

		got, err := service.Select(ctx, "user-1", models.ModeFormative, []string{"algebra"}, nil, 5)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if len(got) != 5 {
			t.Errorf("expected 5 items, got %d", len(got))
		}
	})

	t.Run("no topics returns whatever the bank holds", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewSelectionService(repo, testLogger(), nil)
		seedBankItem(t, repo, "algebra", 2)

		got, err := service.Select(ctx, "user-1", models.ModeFormative, nil, nil, 10)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("expected 1 item, got %d", len(got))
		}
	})
}

func TestSelectBackfillFromPublished(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	service := NewSelectionService(repo, testLogger(), nil)

	batch := &models.GeneratedBatch{Topic: "algebra", Status: models.BatchDraft}
	if err := repo.Batch().Create(ctx, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := repo.Batch().MarkPublished(ctx, batch.ID); err != nil {
		t.Fatalf("publish batch: %v", err)
	}

	linked := &models.Item{
		Type:          models.ItemMCQ,
		Question:      "generated",
		Choices:       []byte(`["A", "B"]`),
		Answer:        []byte(`{"text": "A"}`),
		GradingMethod: models.GradeExact,
		Difficulty:    2,
		Topics:        []byte(`["algebra"]`),
		Source:        models.SourceGenerated,
		BatchID:       &batch.ID,
	}
	if err := repo.Item().Create(ctx, linked); err != nil {
		t.Fatalf("create linked item: %v", err)
	}

	got, err := service.Select(ctx, "user-1", models.ModeFormative, []string{"algebra"}, nil, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	found := false
	for _, id := range got {
		if id == linked.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected batch item %d in selection %v", linked.ID, got)
	}
}

func TestBackfillFillsFromBatchItemsOnly(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	service := NewSelectionService(repo, testLogger(), nil).(*selectionService)

	// Loose bank items with lower ids must not consume the backfill cap.
	seedBankItem(t, repo, "algebra", 2)
	seedBankItem(t, repo, "algebra", 2)

	batch := &models.GeneratedBatch{Topic: "algebra", Status: models.BatchDraft}
	if err := repo.Batch().Create(ctx, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := repo.Batch().MarkPublished(ctx, batch.ID); err != nil {
		t.Fatalf("publish batch: %v", err)
	}

	var linkedIDs []uint
	for _, difficulty := range []int{2, 3} {
		item := &models.Item{
			Type:          models.ItemMCQ,
			Question:      "generated",
			Choices:       []byte(`["A", "B"]`),
			Answer:        []byte(`{"text": "A"}`),
			GradingMethod: models.GradeExact,
			Difficulty:    difficulty,
			Topics:        []byte(`["algebra"]`),
			Source:        models.SourceGenerated,
			BatchID:       &batch.ID,
		}
		if err := repo.Item().Create(ctx, item); err != nil {
			t.Fatalf("create linked item: %v", err)
		}
		linkedIDs = append(linkedIDs, item.ID)
	}

	got, err := service.backfillFromPublished(ctx, "algebra", []int{2, 3}, 2, nil)
	if err != nil {
		t.Fatalf("backfillFromPublished: %v", err)
	}
	if len(got) != 2 || got[0] != linkedIDs[0] || got[1] != linkedIDs[1] {
		t.Errorf("expected batch items %v, got %v", linkedIDs, got)
	}
}

func TestSelectMaterializesDrafts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	service := NewSelectionService(repo, testLogger(), nil)

	parsed := []models.ParsedItem{
		{Type: models.ItemMCQ, Question: "q1", Choices: []string{"A", "B"}, Answer: models.AnswerKey{Text: "A"}, Difficulty: 2},
		{Type: models.ItemMCQ, Question: "q2", Choices: []string{"A", "B"}, Answer: models.AnswerKey{Text: "B"}, Difficulty: 3},
		{Type: models.ItemMCQ, Question: "q3", Choices: []string{"A", "B"}, Answer: models.AnswerKey{Text: "A"}, Difficulty: 5},
	}
	batch := &models.GeneratedBatch{
		Topic:     "algebra",
		Status:    models.BatchDraft,
		Items:     mustJSON(t, parsed),
		ItemCount: len(parsed),
	}
	if err := repo.Batch().Create(ctx, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	got, err := service.Select(ctx, "user-1", models.ModeFormative, []string{"algebra"}, nil, 2)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// Difficulty 5 sits outside the formative buckets.
	if len(got) != 2 {
		t.Fatalf("expected 2 materialized items, got %v", got)
	}

	stored, err := repo.Batch().GetRecent(ctx, repositories.BatchFilters{Topic: "algebra"})
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(stored) != 1 || stored[0].Status != models.BatchPublished {
		t.Errorf("expected batch published after materialization, got %+v", stored)
	}
}

func TestSelectTriggersGeneration(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	generation := &stubGeneration{started: true}
	service := NewSelectionService(repo, testLogger(), generation)

	seedBankItem(t, repo, "algebra", 2)

	got, err := service.Select(ctx, "user-1", models.ModeFormative, []string{"algebra"}, nil, 5)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected the single bank item, got %v", got)
	}
	if len(generation.triggered) != 1 || generation.triggered[0] != "algebra" {
		t.Errorf("expected one trigger for algebra, got %v", generation.triggered)
	}
}

func TestSelectSynthesizesPlaceholders(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	service := NewSelectionService(repo, testLogger(), &stubGeneration{})

	got, err := service.Select(ctx, "user-1", models.ModeFormative, []string{"brand-new-topic"}, nil, 10)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 placeholder items, got %v", got)
	}

	items, err := repo.Item().GetByIDs(ctx, got)
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	for _, item := range items {
		if item.Source != models.SourcePlaceholder {
			t.Errorf("expected placeholder source, got %s", item.Source)
		}
		if item.Difficulty != 1 {
			t.Errorf("expected difficulty 1, got %d", item.Difficulty)
		}
	}
}

func intPtr(d int) *int { return &d }
