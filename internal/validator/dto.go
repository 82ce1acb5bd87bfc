package validator

import (
	"github.com/adaptive-ed/assessment-engine/internal/models"
)

// SessionStartRequest represents the request structure for starting a session
type SessionStartRequest struct {
	UserID        string                `json:"user_id" validate:"required,max=255"`
	Mode          models.SessionMode    `json:"mode" validate:"required,session_mode"`
	Topics        []string              `json:"topics" validate:"omitempty,max=10,dive,topic_tag"`
	ItemCount     int                   `json:"item_count" validate:"omitempty,item_count"`
	Proctored     *bool                 `json:"proctored"`
	ProctorConfig *ProctorConfigRequest `json:"proctor_config"`
}

// ProctorConfigRequest overrides the default proctoring settings per session
type ProctorConfigRequest struct {
	AllowTabSwitchCount *int  `json:"allow_tab_switch_count" validate:"omitempty,min=0,max=20"`
	BlockRightClick     *bool `json:"block_right_click"`
	BlockCopyPaste      *bool `json:"block_copy_paste"`
	RequireFullScreen   *bool `json:"require_full_screen"`
	RiskThreshold       *int  `json:"risk_threshold" validate:"omitempty,min=5,max=100"`
}

// SubmitAnswerRequest represents one answer submission for the current item
type SubmitAnswerRequest struct {
	Answer      models.SubmittedAnswer `json:"answer" validate:"required"`
	TimeTakenMs int                    `json:"time_taken_ms" validate:"omitempty,min=0,max=3600000"`
}

// ItemCreateRequest represents the request structure for authoring items
type ItemCreateRequest struct {
	Type          models.ItemType       `json:"type" validate:"required,item_type"`
	Question      string                `json:"question" validate:"required,min=1,max=4000"`
	Choices       []string              `json:"choices" validate:"omitempty,max=12,dive,min=1,max=500"`
	Answer        models.AnswerKey      `json:"answer" validate:"required"`
	GradingMethod *models.GradingMethod `json:"grading_method" validate:"omitempty,grading_method"`
	Difficulty    int                   `json:"difficulty" validate:"required,difficulty_level"`
	Topics        []string              `json:"topics" validate:"omitempty,max=10,dive,topic_tag"`
	Hints         []string              `json:"hints" validate:"omitempty,max=5,dive,max=500"`
	Explanation   *string               `json:"explanation" validate:"omitempty,max=2000"`
	CreatedBy     string                `json:"created_by" validate:"omitempty,max=255"`
}

// GenerateItemsRequest asks for a batch of generated items on a topic
type GenerateItemsRequest struct {
	Topic        string `json:"topic" validate:"required,topic_tag"`
	Count        int    `json:"count" validate:"omitempty,min=1,max=10"`
	Difficulties []int  `json:"difficulties" validate:"omitempty,max=5,dive,difficulty_level"`
}

// ViolationRequest reports one proctoring event
type ViolationRequest struct {
	ViolationType models.ViolationType   `json:"violation_type" validate:"required,violation_type"`
	Details       map[string]interface{} `json:"details"`
}

// OverrideRequest is an instructor invalidate/restore action
type OverrideRequest struct {
	Action  string `json:"action" validate:"required,oneof=invalidate restore"`
	Reason  string `json:"reason" validate:"required,min=1,max=2000"`
	ActorID string `json:"actor_id" validate:"required,max=255"`
}

// StudyNotesRequest asks for revision notes on a topic
type StudyNotesRequest struct {
	Topic  string   `json:"topic" validate:"required,topic_tag"`
	Focus  []string `json:"focus" validate:"omitempty,max=5,dive,max=100"`
	UserID string   `json:"user_id" validate:"omitempty,max=255"`
}
