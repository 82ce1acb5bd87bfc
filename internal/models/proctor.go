package models

import (
	"time"

	"gorm.io/datatypes"
)

type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "tab_switch"
	ViolationWindowBlur     ViolationType = "window_blur"
	ViolationFullscreenExit ViolationType = "fullscreen_exit"
	ViolationCopyAttempt    ViolationType = "copy_attempt"
	ViolationPasteAttempt   ViolationType = "paste_attempt"
	ViolationRightClick     ViolationType = "right_click"
	ViolationDevtoolsOpened ViolationType = "devtools_opened"
	ViolationPageExit       ViolationType = "page_exit_attempt"
)

// ViolationTypes lists every recognized violation event.
var ViolationTypes = []ViolationType{
	ViolationTabSwitch,
	ViolationWindowBlur,
	ViolationFullscreenExit,
	ViolationCopyAttempt,
	ViolationPasteAttempt,
	ViolationRightClick,
	ViolationDevtoolsOpened,
	ViolationPageExit,
}

func IsKnownViolation(t ViolationType) bool {
	for _, v := range ViolationTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// Risk weights per severity. riskScore = majors*5 + minors*1.
const (
	RiskWeightMajor = 5
	RiskWeightMinor = 1
)

// ProctorLog is one recorded violation event. Append-only.
type ProctorLog struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID uint   `json:"session_id" gorm:"not null;index"`
	UserID    string `json:"user_id" gorm:"not null;index;size:255"`

	ViolationType ViolationType  `json:"violation_type" gorm:"not null;index"`
	Severity      Severity       `json:"severity" gorm:"not null"`
	Details       datatypes.JSON `json:"details" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (ProctorLog) TableName() string {
	return "proctor_logs"
}
