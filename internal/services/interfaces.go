package services

import (
	"context"
	"time"

	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories"
	"github.com/adaptive-ed/assessment-engine/internal/validator"
)

// ===== REQUEST/RESPONSE DTOs =====

// Use business validator types
type StartSessionRequest = validator.SessionStartRequest
type SubmitAnswerRequest = validator.SubmitAnswerRequest
type CreateItemRequest = validator.ItemCreateRequest
type GenerateItemsRequest = validator.GenerateItemsRequest
type ViolationRequest = validator.ViolationRequest
type OverrideRequest = validator.OverrideRequest
type StudyNotesRequest = validator.StudyNotesRequest

type StartSessionResponse struct {
	SessionID     uint                  `json:"session_id,omitempty"`
	ItemIDs       []uint                `json:"item_ids,omitempty"`
	CurrentIndex  int                   `json:"current_index"`
	ProctorConfig *models.ProctorConfig `json:"proctor_config,omitempty"`

	// Queued signals that selection under-filled and the caller should retry
	// shortly; no session was created.
	Queued bool `json:"queued"`
}

type SubmitAnswerResponse struct {
	IsCorrect          bool    `json:"is_correct"`
	Score              float64 `json:"score"`
	Explanation        string  `json:"explanation,omitempty"`
	NeedsManualGrading bool    `json:"needs_manual_grading,omitempty"`
	CurrentIndex       int     `json:"current_index"`
	HasMore            bool    `json:"has_more"`
}

type FinishSessionResponse struct {
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Correct     int       `json:"correct"`
	CompletedAt time.Time `json:"completed_at"`
}

type SessionDetailResponse struct {
	*models.AssessmentSession
	Attempts []*models.Attempt `json:"attempts,omitempty"`
}

type SessionListResponse struct {
	Sessions []*models.AssessmentSession `json:"sessions"`
	Total    int64                       `json:"total"`
}

// GradeResult is the grading engine's verdict for one submission.
type GradeResult struct {
	IsCorrect          bool                   `json:"is_correct"`
	Score              float64                `json:"score"` // normalized 0-1
	Details            map[string]interface{} `json:"details"`
	Explanation        string                 `json:"explanation,omitempty"`
	NeedsManualGrading bool                   `json:"needs_manual_grading"`
}

type ViolationResponse struct {
	Summary     models.ProctorSummary `json:"summary"`
	Invalidated bool                  `json:"invalidated"`
	Status      models.SessionStatus  `json:"status"`
}

type MasteryResponse struct {
	UserID string                          `json:"user_id"`
	Topics map[string]models.MasteryRecord `json:"topics"`
}

type GenerateItemsResponse struct {
	BatchID uint           `json:"batch_id"`
	Items   []*models.Item `json:"items"`
}

type StudyNotesResponse struct {
	Topic string `json:"topic"`
	Notes string `json:"notes"`
}

// ===== SERVICE INTERFACES =====

type SessionService interface {
	Start(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error)
	SubmitAnswer(ctx context.Context, sessionID uint, userID string, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
	Finish(ctx context.Context, sessionID uint, userID string) (*FinishSessionResponse, error)
	Cancel(ctx context.Context, sessionID uint, userID string) error
	Get(ctx context.Context, sessionID uint, userID string) (*SessionDetailResponse, error)
	List(ctx context.Context, filters repositories.SessionFilters) (*SessionListResponse, error)
}

type SelectionService interface {
	// Select returns an ordered item id list, possibly shorter than limit.
	// An empty result means "try again shortly" when generation was kicked
	// off in the background.
	Select(ctx context.Context, userID string, mode models.SessionMode, topics []string, requestedDifficulty *int, limit int) ([]uint, error)
}

type GradingService interface {
	// Grade never returns a transport error to the session flow; internal
	// failures degrade to a fallback result with NeedsManualGrading set.
	Grade(ctx context.Context, item *models.Item, submitted models.SubmittedAnswer) *GradeResult
}

type MasteryService interface {
	// UpdateRecord is the pure update model. No I/O.
	UpdateRecord(prior models.MasteryRecord, score float64, difficulty int, timeTakenMs, expectedMs int64) models.MasteryRecord
	// ApplyAttempt persists record updates for every non-general topic on
	// the item.
	ApplyAttempt(ctx context.Context, userID string, item *models.Item, score float64, timeTakenMs int64) error
	GetByUser(ctx context.Context, userID string) (*MasteryResponse, error)
}

type ProctorService interface {
	RecordViolation(ctx context.Context, sessionID uint, req *ViolationRequest) (*ViolationResponse, error)
	Override(ctx context.Context, sessionID uint, req *OverrideRequest) (*models.AssessmentSession, error)
	GetSummary(ctx context.Context, sessionID uint) (*ViolationResponse, error)
	GetLogs(ctx context.Context, sessionID uint) ([]*models.ProctorLog, error)
}

type GenerationService interface {
	// Generate runs a synchronous generation round and materializes the
	// batch into the bank.
	Generate(ctx context.Context, req *GenerateItemsRequest) (*GenerateItemsResponse, error)
	// TriggerAsync starts a deduplicated background generation. Returns
	// true when a new generation actually started.
	TriggerAsync(topic string, difficulties []int) bool
	GenerateStudyNotes(ctx context.Context, req *StudyNotesRequest) (*StudyNotesResponse, error)
}

type ItemService interface {
	Create(ctx context.Context, req *CreateItemRequest) (*models.Item, error)
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	Find(ctx context.Context, filters repositories.ItemFilters) ([]*models.Item, error)
}

// ServiceManager wires the services together for the HTTP layer.
type ServiceManager interface {
	Session() SessionService
	Selection() SelectionService
	Grading() GradingService
	Mastery() MasteryService
	Proctor() ProctorService
	Generation() GenerationService
	Item() ItemService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
