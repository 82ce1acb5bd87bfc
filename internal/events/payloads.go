package events

import "time"

// SessionCompletedEvent is emitted when a session reaches completed state.
type SessionCompletedEvent struct {
	SessionID   uint      `json:"session_id"`
	UserID      string    `json:"user_id"`
	Mode        string    `json:"mode"`
	Score       int       `json:"score"`
	ItemCount   int       `json:"item_count"`
	CompletedAt time.Time `json:"completed_at"`
}

// SessionInvalidatedEvent is emitted when proctoring auto-invalidates a
// session or an instructor invalidates it.
type SessionInvalidatedEvent struct {
	SessionID uint   `json:"session_id"`
	UserID    string `json:"user_id"`
	RiskScore int    `json:"risk_score"`
	Reason    string `json:"reason"`
}

// SessionOverriddenEvent is emitted for every instructor override action.
type SessionOverriddenEvent struct {
	SessionID uint   `json:"session_id"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	Reason    string `json:"reason"`
}

// ItemsGeneratedEvent is emitted when a generation batch lands in the bank.
type ItemsGeneratedEvent struct {
	BatchID   uint   `json:"batch_id"`
	Topic     string `json:"topic"`
	ItemCount int    `json:"item_count"`
}
