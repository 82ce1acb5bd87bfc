package services

import (
	"context"
	"testing"

	"github.com/adaptive-ed/assessment-engine/internal/models"
)

func TestUpdateRecord(t *testing.T) {
	service := NewMasteryService(newFakeRepository(), testLogger())

	t.Run("first attempt from zero record", func(t *testing.T) {
		got := service.UpdateRecord(models.MasteryRecord{}, 1.0, 3, 30_000, 60_000)

		// target = min(100, 0+10) = 10; ema = 0.2*10 = 2.
		if got.Mastery != 2 {
			t.Errorf("expected mastery 2, got %v", got.Mastery)
		}
		if got.Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", got.Attempts)
		}
		if got.Streak != 1 {
			t.Errorf("expected streak 1, got %d", got.Streak)
		}
		if got.TimeOnTaskMs != 30_000 {
			t.Errorf("expected 30000ms on task, got %d", got.TimeOnTaskMs)
		}
	})

	t.Run("streak bonus applies per three consecutive successes", func(t *testing.T) {
		prior := models.MasteryRecord{Mastery: 50, Streak: 6, Attempts: 10}
		got := service.UpdateRecord(prior, 1.0, 5, 30_000, 60_000)

		// target = min(100, 50+14) = 64; ema = 50*0.8 + 0.2*64 = 52.8;
		// bonus = floor(6/3)*5 = 10; round(62.8) = 63.
		if got.Mastery != 63 {
			t.Errorf("expected mastery 63, got %v", got.Mastery)
		}
		if got.Streak != 7 {
			t.Errorf("expected streak 7, got %d", got.Streak)
		}
	})

	t.Run("streak bonus is capped", func(t *testing.T) {
		low := service.UpdateRecord(models.MasteryRecord{Streak: 9}, 1.0, 3, 30_000, 60_000)
		high := service.UpdateRecord(models.MasteryRecord{Streak: 30}, 1.0, 3, 30_000, 60_000)

		// floor(9/3)*5 = 15 already hits the cap; longer streaks add nothing.
		if low.Mastery != high.Mastery {
			t.Errorf("expected capped bonus, got %v vs %v", low.Mastery, high.Mastery)
		}
	})

	t.Run("slow answers take a time penalty and clamp at zero", func(t *testing.T) {
		got := service.UpdateRecord(models.MasteryRecord{}, 0, 3, 100_000, 60_000)
		if got.Mastery != 0 {
			t.Errorf("expected mastery clamped to 0, got %v", got.Mastery)
		}
	})

	t.Run("no penalty at exactly 1.5x expected time", func(t *testing.T) {
		atLimit := service.UpdateRecord(models.MasteryRecord{Mastery: 50}, 1.0, 3, 90_000, 60_000)
		over := service.UpdateRecord(models.MasteryRecord{Mastery: 50}, 1.0, 3, 90_001, 60_000)
		if atLimit.Mastery != over.Mastery+2 {
			t.Errorf("expected a 2 point penalty past the limit, got %v vs %v", atLimit.Mastery, over.Mastery)
		}
	})

	t.Run("streak resets below threshold", func(t *testing.T) {
		got := service.UpdateRecord(models.MasteryRecord{Streak: 5}, 0.74, 3, 30_000, 60_000)
		if got.Streak != 0 {
			t.Errorf("expected streak reset, got %d", got.Streak)
		}

		kept := service.UpdateRecord(models.MasteryRecord{Streak: 5}, 0.75, 3, 30_000, 60_000)
		if kept.Streak != 6 {
			t.Errorf("expected streak 6 at the threshold, got %d", kept.Streak)
		}
	})

	t.Run("mastery never exceeds 100", func(t *testing.T) {
		got := service.UpdateRecord(models.MasteryRecord{Mastery: 100, Streak: 30}, 1.0, 5, 30_000, 60_000)
		if got.Mastery != 100 {
			t.Errorf("expected mastery clamped to 100, got %v", got.Mastery)
		}
	})

	t.Run("difficulty out of range is clamped", func(t *testing.T) {
		belowRange := service.UpdateRecord(models.MasteryRecord{}, 1.0, 0, 30_000, 60_000)
		easiest := service.UpdateRecord(models.MasteryRecord{}, 1.0, 1, 30_000, 60_000)
		if belowRange.Mastery != easiest.Mastery {
			t.Errorf("expected difficulty 0 to behave as 1, got %v vs %v", belowRange.Mastery, easiest.Mastery)
		}

		aboveRange := service.UpdateRecord(models.MasteryRecord{}, 1.0, 9, 30_000, 60_000)
		hardest := service.UpdateRecord(models.MasteryRecord{}, 1.0, 5, 30_000, 60_000)
		if aboveRange.Mastery != hardest.Mastery {
			t.Errorf("expected difficulty 9 to behave as 5, got %v vs %v", aboveRange.Mastery, hardest.Mastery)
		}
	})
}

func TestApplyAttempt(t *testing.T) {
	repo := newFakeRepository()
	service := NewMasteryService(repo, testLogger())
	ctx := context.Background()

	item := &models.Item{
		ID:         1,
		Type:       models.ItemMCQ,
		Difficulty: 3,
		Topics:     []byte(`["algebra", "general"]`),
	}

	t.Run("general topic is skipped", func(t *testing.T) {
		if err := service.ApplyAttempt(ctx, "user-1", item, 1.0, 30_000); err != nil {
			t.Fatalf("ApplyAttempt: %v", err)
		}

		rows, err := repo.Mastery().GetByUser(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetByUser: %v", err)
		}
		if len(rows) != 1 || rows[0].Topic != "algebra" {
			t.Fatalf("expected only an algebra row, got %+v", rows)
		}
	})

	t.Run("subsequent attempts accumulate", func(t *testing.T) {
		if err := service.ApplyAttempt(ctx, "user-1", item, 1.0, 40_000); err != nil {
			t.Fatalf("ApplyAttempt: %v", err)
		}

		row, err := repo.Mastery().Get(ctx, "user-1", "algebra")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if row.Attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", row.Attempts)
		}
		if row.Streak != 2 {
			t.Errorf("expected streak 2, got %d", row.Streak)
		}
		if row.TimeOnTaskMs != 70_000 {
			t.Errorf("expected 70000ms on task, got %d", row.TimeOnTaskMs)
		}
	})

	t.Run("item without topics is a no-op", func(t *testing.T) {
		bare := &models.Item{ID: 2, Type: models.ItemMCQ, Difficulty: 3}
		if err := service.ApplyAttempt(ctx, "user-2", bare, 1.0, 30_000); err != nil {
			t.Fatalf("ApplyAttempt: %v", err)
		}

		resp, err := service.GetByUser(ctx, "user-2")
		if err != nil {
			t.Fatalf("GetByUser: %v", err)
		}
		if len(resp.Topics) != 0 {
			t.Errorf("expected no mastery rows, got %+v", resp.Topics)
		}
	})
}
