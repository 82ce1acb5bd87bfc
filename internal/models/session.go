package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SessionMode string

const (
	ModeDiagnostic SessionMode = "diagnostic"
	ModeFormative  SessionMode = "formative"
	ModeSummative  SessionMode = "summative"
	ModeProctored  SessionMode = "proctored"
)

type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionCancelled   SessionStatus = "cancelled"
	SessionInvalidated SessionStatus = "invalidated"
)

// ProctorConfig carries the per-session proctoring toggles. Defaults match
// the platform-wide settings; instructors may tighten them per session.
type ProctorConfig struct {
	AllowTabSwitchCount int  `json:"allow_tab_switch_count"`
	BlockRightClick     bool `json:"block_right_click"`
	BlockCopyPaste      bool `json:"block_copy_paste"`
	RequireFullScreen   bool `json:"require_full_screen"`
	RiskThreshold       int  `json:"risk_threshold"`
}

const (
	DefaultTabSwitchAllowance = 2
	DefaultRiskThreshold      = 20
)

func DefaultProctorConfig() ProctorConfig {
	return ProctorConfig{
		AllowTabSwitchCount: DefaultTabSwitchAllowance,
		BlockRightClick:     true,
		BlockCopyPaste:      true,
		RequireFullScreen:   false,
		RiskThreshold:       DefaultRiskThreshold,
	}
}

// ProctorSummary is the running violation tally for a session.
type ProctorSummary struct {
	MinorViolations int `json:"minor_violations"`
	MajorViolations int `json:"major_violations"`
	TotalViolations int `json:"total_violations"`
	TabSwitchCount  int `json:"tab_switch_count"`
	RiskScore       int `json:"risk_score"`
}

type AssessmentSession struct {
	ID     uint        `json:"id" gorm:"primaryKey"`
	UserID string      `json:"user_id" gorm:"not null;index;size:255"`
	Mode   SessionMode `json:"mode" gorm:"not null;index"`

	// ItemIDs is the ordered []uint fixed at creation.
	ItemIDs      datatypes.JSON `json:"item_ids" gorm:"type:jsonb;not null"`
	CurrentIndex int            `json:"current_index" gorm:"not null;default:0"`

	Status SessionStatus `json:"status" gorm:"default:active;index"`

	// Score is 0-100, set only at completion.
	Score *int `json:"score"`

	Proctored     bool          `json:"proctored"`
	ProctorConfig ProctorConfig `json:"proctor_config" gorm:"embedded;embeddedPrefix:proctor_"`

	// Violation counters. Updated only via atomic SQL increments inside a
	// row-locked transaction; see the proctor service.
	MinorViolations int  `json:"minor_violations" gorm:"not null;default:0"`
	MajorViolations int  `json:"major_violations" gorm:"not null;default:0"`
	TotalViolations int  `json:"total_violations" gorm:"not null;default:0"`
	TabSwitchCount  int  `json:"tab_switch_count" gorm:"not null;default:0"`
	RiskScore       int  `json:"risk_score" gorm:"not null;default:0"`
	Invalidated     bool `json:"invalidated" gorm:"not null;default:false"`

	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations. Sessions are never deleted; they are retained for review.
	Attempts    []Attempt         `json:"attempts,omitempty" gorm:"foreignKey:SessionID"`
	ProctorLogs []ProctorLog      `json:"proctor_logs,omitempty" gorm:"foreignKey:SessionID"`
	Overrides   []SessionOverride `json:"overrides,omitempty" gorm:"foreignKey:SessionID"`
}

func (AssessmentSession) TableName() string {
	return "assessment_sessions"
}

// Items decodes the ordered item id list.
func (s *AssessmentSession) Items() []uint {
	var ids []uint
	if len(s.ItemIDs) > 0 {
		_ = json.Unmarshal(s.ItemIDs, &ids)
	}
	return ids
}

// Summary builds the proctor summary view from the counters.
func (s *AssessmentSession) Summary() ProctorSummary {
	return ProctorSummary{
		MinorViolations: s.MinorViolations,
		MajorViolations: s.MajorViolations,
		TotalViolations: s.TotalViolations,
		TabSwitchCount:  s.TabSwitchCount,
		RiskScore:       s.RiskScore,
	}
}

// SessionOverride is the audit record for an instructor invalidate/restore.
type SessionOverride struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SessionID uint      `json:"session_id" gorm:"not null;index"`
	Action    string    `json:"action" gorm:"not null;size:20"` // "invalidate" | "restore"
	Reason    string    `json:"reason" gorm:"type:text;not null"`
	ActorID   string    `json:"actor_id" gorm:"not null;size:255"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionOverride) TableName() string {
	return "session_overrides"
}
