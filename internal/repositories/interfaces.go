package repositories

import (
	"context"
	"time"

	"github.com/adaptive-ed/assessment-engine/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ItemFilters struct {
	Topics       []string             `json:"topics"`
	Difficulties []int                `json:"difficulties"`
	Type         *models.ItemType     `json:"type"`
	Source       *models.ItemSource   `json:"source"`
	BatchID      *uint                `json:"batch_id"`
	ExcludeIDs   []uint               `json:"exclude_ids"`
	Limit        int                  `json:"limit"`
}

type SessionFilters struct {
	UserID    *string               `json:"user_id"`
	Status    *models.SessionStatus `json:"status"`
	Mode      *models.SessionMode   `json:"mode"`
	Proctored *bool                 `json:"proctored"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
}

type BatchFilters struct {
	Topic    string               `json:"topic"`
	Statuses []models.BatchStatus `json:"statuses"`
	Since    *time.Time           `json:"since"`
	Limit    int                  `json:"limit"`
}

// ===== REPOSITORY INTERFACES =====

type ItemRepository interface {
	Create(ctx context.Context, item *models.Item) error
	CreateBatch(ctx context.Context, items []*models.Item) error
	GetByID(ctx context.Context, id uint) (*models.Item, error)
	GetByIDs(ctx context.Context, ids []uint) ([]*models.Item, error)
	Find(ctx context.Context, filters ItemFilters) ([]*models.Item, error)
	CountByTopic(ctx context.Context, topic string) (int64, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.AssessmentSession) error
	GetByID(ctx context.Context, id uint) (*models.AssessmentSession, error)
	// GetByIDForUpdate acquires a row lock; valid only inside WithTransaction.
	GetByIDForUpdate(ctx context.Context, id uint) (*models.AssessmentSession, error)
	Update(ctx context.Context, session *models.AssessmentSession) error
	// ApplyViolation applies the counter increments atomically and returns
	// the refreshed row. Must run inside WithTransaction with a held lock.
	ApplyViolation(ctx context.Context, id uint, severity models.Severity, tabSwitch bool) (*models.AssessmentSession, error)
	List(ctx context.Context, filters SessionFilters) ([]*models.AssessmentSession, int64, error)
}

type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetBySession(ctx context.Context, sessionID uint) ([]*models.Attempt, error)
	CountCorrect(ctx context.Context, sessionID uint) (int64, error)
}

type ProctorLogRepository interface {
	Create(ctx context.Context, log *models.ProctorLog) error
	GetBySession(ctx context.Context, sessionID uint) ([]*models.ProctorLog, error)
}

type OverrideRepository interface {
	Create(ctx context.Context, override *models.SessionOverride) error
	GetBySession(ctx context.Context, sessionID uint) ([]*models.SessionOverride, error)
}

type MasteryRepository interface {
	Get(ctx context.Context, userID, topic string) (*models.TopicMastery, error)
	GetByUser(ctx context.Context, userID string) ([]*models.TopicMastery, error)
	Upsert(ctx context.Context, record *models.TopicMastery) error
}

type BatchRepository interface {
	Create(ctx context.Context, batch *models.GeneratedBatch) error
	Update(ctx context.Context, batch *models.GeneratedBatch) error
	GetRecent(ctx context.Context, filters BatchFilters) ([]*models.GeneratedBatch, error)
	MarkPublished(ctx context.Context, id uint) error
}

// Repository aggregates entity repositories. WithTransaction yields a
// Repository bound to one transaction; nesting is not supported.
type Repository interface {
	Item() ItemRepository
	Session() SessionRepository
	Attempt() AttemptRepository
	ProctorLog() ProctorLogRepository
	Override() OverrideRepository
	Mastery() MasteryRepository
	Batch() BatchRepository

	WithTransaction(ctx context.Context, fn func(Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
