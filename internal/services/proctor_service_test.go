package services

import (
	"context"
	"errors"
	"testing"

	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/models"
)

func newProctoredSession(t *testing.T, repo *fakeRepository, userID string) *models.AssessmentSession {
	t.Helper()
	session := &models.AssessmentSession{
		UserID:        userID,
		Mode:          models.ModeProctored,
		ItemIDs:       []byte(`[1, 2, 3]`),
		Status:        models.SessionActive,
		Proctored:     true,
		ProctorConfig: models.DefaultProctorConfig(),
	}
	if err := repo.Session().Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestRecordViolation(t *testing.T) {
	ctx := context.Background()

	t.Run("tab switches escalate after the allowance", func(t *testing.T) {
		repo := newFakeRepository()
		publisher := events.NewMockEventPublisher(testLogger())
		service := NewProctorService(repo, testLogger(), publisher)
		session := newProctoredSession(t, repo, "user-1")

		var last *ViolationResponse
		for i := 0; i < 5; i++ {
			var err error
			last, err = service.RecordViolation(ctx, session.ID, &ViolationRequest{
				ViolationType: models.ViolationTabSwitch,
			})
			if err != nil {
				t.Fatalf("violation %d: %v", i+1, err)
			}
		}

		// Allowance 2: first two switches are minor, the next three major.
		if last.Summary.MinorViolations != 2 {
			t.Errorf("expected 2 minor violations, got %d", last.Summary.MinorViolations)
		}
		if last.Summary.MajorViolations != 3 {
			t.Errorf("expected 3 major violations, got %d", last.Summary.MajorViolations)
		}
		if last.Summary.TabSwitchCount != 5 {
			t.Errorf("expected tab switch count 5, got %d", last.Summary.TabSwitchCount)
		}
		if last.Summary.RiskScore != 17 {
			t.Errorf("expected risk score 17, got %d", last.Summary.RiskScore)
		}
		if last.Invalidated {
			t.Error("expected session still valid below the threshold")
		}

		// One more major violation crosses 20 and invalidates.
		final, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{
			ViolationType: models.ViolationDevtoolsOpened,
		})
		if err != nil {
			t.Fatalf("RecordViolation: %v", err)
		}
		if !final.Invalidated || final.Status != models.SessionInvalidated {
			t.Errorf("expected auto-invalidation at risk %d, got %+v", final.Summary.RiskScore, final)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.EventSessionInvalidated {
			t.Errorf("expected one session.invalidated event, got %+v", published)
		}
	})

	t.Run("devtools and page exits are always major", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
		session := newProctoredSession(t, repo, "user-1")

		for _, violationType := range []models.ViolationType{models.ViolationDevtoolsOpened, models.ViolationPageExit} {
			resp, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{ViolationType: violationType})
			if err != nil {
				t.Fatalf("RecordViolation(%s): %v", violationType, err)
			}
			if resp.Summary.MinorViolations != 0 {
				t.Errorf("%s: expected no minor violations, got %d", violationType, resp.Summary.MinorViolations)
			}
		}
	})

	t.Run("copy attempts stay minor", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
		session := newProctoredSession(t, repo, "user-1")

		resp, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{ViolationType: models.ViolationCopyAttempt})
		if err != nil {
			t.Fatalf("RecordViolation: %v", err)
		}
		if resp.Summary.MinorViolations != 1 || resp.Summary.MajorViolations != 0 {
			t.Errorf("expected a single minor violation, got %+v", resp.Summary)
		}
	})

	t.Run("violations keep append-only logs", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
		session := newProctoredSession(t, repo, "user-1")

		for i := 0; i < 3; i++ {
			if _, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{
				ViolationType: models.ViolationWindowBlur,
				Details:       map[string]interface{}{"duration_ms": 1200},
			}); err != nil {
				t.Fatalf("RecordViolation: %v", err)
			}
		}

		logs, err := service.GetLogs(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetLogs: %v", err)
		}
		if len(logs) != 3 {
			t.Fatalf("expected 3 log rows, got %d", len(logs))
		}
		if logs[0].Severity != models.SeverityMinor {
			t.Errorf("expected minor severity, got %s", logs[0].Severity)
		}
		if len(logs[0].Details) == 0 {
			t.Error("expected details payload to be stored")
		}
	})

	t.Run("unknown violation type is rejected", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
		session := newProctoredSession(t, repo, "user-1")

		_, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{ViolationType: "mind_reading"})
		if !IsValidationError(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("non-proctored session is rejected", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))

		session := &models.AssessmentSession{
			UserID:  "user-1",
			Mode:    models.ModeFormative,
			ItemIDs: []byte(`[1]`),
			Status:  models.SessionActive,
		}
		if err := repo.Session().Create(ctx, session); err != nil {
			t.Fatalf("create session: %v", err)
		}

		_, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{ViolationType: models.ViolationTabSwitch})
		if !errors.Is(err, ErrSessionNotProctored) {
			t.Errorf("expected ErrSessionNotProctored, got %v", err)
		}
	})

	t.Run("missing session", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))

		_, err := service.RecordViolation(ctx, 404, &ViolationRequest{ViolationType: models.ViolationTabSwitch})
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("reason is mandatory", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
		session := newProctoredSession(t, repo, "user-1")

		_, err := service.Override(ctx, session.ID, &OverrideRequest{Action: OverrideActionInvalidate, Reason: "   ", ActorID: "instructor-1"})
		if !errors.Is(err, ErrOverrideReasonRequired) {
			t.Errorf("expected ErrOverrideReasonRequired, got %v", err)
		}
	})

	t.Run("invalidate then restore", func(t *testing.T) {
		repo := newFakeRepository()
		publisher := events.NewMockEventPublisher(testLogger())
		service := NewProctorService(repo, testLogger(), publisher)
		session := newProctoredSession(t, repo, "user-1")

		invalidated, err := service.Override(ctx, session.ID, &OverrideRequest{
			Action: OverrideActionInvalidate, Reason: "observed impersonation", ActorID: "instructor-1",
		})
		if err != nil {
			t.Fatalf("Override invalidate: %v", err)
		}
		if invalidated.Status != models.SessionInvalidated || !invalidated.Invalidated {
			t.Errorf("expected invalidated session, got %+v", invalidated)
		}

		restored, err := service.Override(ctx, session.ID, &OverrideRequest{
			Action: OverrideActionRestore, Reason: "appeal accepted", ActorID: "instructor-1",
		})
		if err != nil {
			t.Fatalf("Override restore: %v", err)
		}
		if restored.Status != models.SessionActive || restored.Invalidated {
			t.Errorf("expected restored active session, got %+v", restored)
		}

		audits, err := repo.Override().GetBySession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetBySession: %v", err)
		}
		if len(audits) != 2 {
			t.Errorf("expected 2 audit rows, got %d", len(audits))
		}

		published := publisher.GetPublishedEvents()
		// invalidate emits overridden+invalidated; restore emits overridden.
		if len(published) != 3 {
			t.Errorf("expected 3 events, got %d", len(published))
		}
	})

	t.Run("invalidate rejects terminal sessions", func(t *testing.T) {
		repo := newFakeRepository()
		publisher := events.NewMockEventPublisher(testLogger())
		service := NewProctorService(repo, testLogger(), publisher)

		cases := []struct {
			status  models.SessionStatus
			wantErr error
		}{
			{models.SessionCompleted, ErrSessionAlreadyCompleted},
			{models.SessionCancelled, ErrSessionCancelled},
		}
		for _, tc := range cases {
			session := newProctoredSession(t, repo, "user-1")
			session.Status = tc.status
			if err := repo.Session().Update(ctx, session); err != nil {
				t.Fatalf("update: %v", err)
			}

			_, err := service.Override(ctx, session.ID, &OverrideRequest{
				Action: OverrideActionInvalidate, Reason: "post-mortem review", ActorID: "instructor-1",
			})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("status %s: expected %v, got %v", tc.status, tc.wantErr, err)
			}

			got, getErr := repo.Session().GetByID(ctx, session.ID)
			if getErr != nil {
				t.Fatalf("GetByID: %v", getErr)
			}
			if got.Status != tc.status || got.Invalidated {
				t.Errorf("status %s: session mutated to %+v", tc.status, got)
			}

			audits, auditErr := repo.Override().GetBySession(ctx, session.ID)
			if auditErr != nil {
				t.Fatalf("GetBySession: %v", auditErr)
			}
			if len(audits) != 0 {
				t.Errorf("status %s: expected no audit rows, got %d", tc.status, len(audits))
			}
		}

		if published := publisher.GetPublishedEvents(); len(published) != 0 {
			t.Errorf("expected no events, got %d", len(published))
		}
	})

	t.Run("restore does not reopen a completed session", func(t *testing.T) {
		repo := newFakeRepository()
		service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
		session := newProctoredSession(t, repo, "user-1")

		session.Status = models.SessionCompleted
		if err := repo.Session().Update(ctx, session); err != nil {
			t.Fatalf("update: %v", err)
		}

		restored, err := service.Override(ctx, session.ID, &OverrideRequest{
			Action: OverrideActionRestore, Reason: "cleanup", ActorID: "instructor-1",
		})
		if err != nil {
			t.Fatalf("Override restore: %v", err)
		}
		if restored.Status != models.SessionCompleted {
			t.Errorf("expected completed status preserved, got %s", restored.Status)
		}
	})
}

func TestGetSummary(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepository()
	service := NewProctorService(repo, testLogger(), events.NewMockEventPublisher(testLogger()))
	session := newProctoredSession(t, repo, "user-1")

	if _, err := service.RecordViolation(ctx, session.ID, &ViolationRequest{ViolationType: models.ViolationRightClick}); err != nil {
		t.Fatalf("RecordViolation: %v", err)
	}

	summary, err := service.GetSummary(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.Summary.TotalViolations != 1 || summary.Summary.RiskScore != 1 {
		t.Errorf("unexpected summary %+v", summary.Summary)
	}
}
