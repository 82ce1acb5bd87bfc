package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attempt is one graded answer. Immutable once created; exactly one attempt
// may exist per (session, item) pair, enforced by a unique index.
type Attempt struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID uint   `json:"session_id" gorm:"not null;uniqueIndex:idx_session_item"`
	ItemID    uint   `json:"item_id" gorm:"not null;uniqueIndex:idx_session_item"`
	UserID    string `json:"user_id" gorm:"not null;index;size:255"`

	// ItemIndex is the position within the session's item list at submission
	// time, kept for audit even though item_ids is fixed at creation.
	ItemIndex int `json:"item_index" gorm:"not null"`

	IsCorrect bool    `json:"is_correct"`
	Score     float64 `json:"score"` // normalized 0-1

	// UserAnswer is the raw SubmittedAnswer payload.
	UserAnswer datatypes.JSON `json:"user_answer" gorm:"type:jsonb"`

	// GradingDetails is the strategy-specific diagnostic payload (method tag,
	// similarity, pair counts, position counts).
	GradingDetails datatypes.JSON `json:"grading_details" gorm:"type:jsonb"`

	NeedsManualGrading bool `json:"needs_manual_grading" gorm:"not null;default:false"`

	TimeTakenMs int `json:"time_taken_ms"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Session AssessmentSession `json:"-" gorm:"foreignKey:SessionID"`
	Item    Item              `json:"-" gorm:"foreignKey:ItemID"`
}

func (Attempt) TableName() string {
	return "attempts"
}
