package models

import "time"

// GeneralTopic tags attempts that belong to no specific topic; such attempts
// never update mastery.
const GeneralTopic = "general"

// MasteryRecord is the pure per-topic mastery state the update model works
// on. It is embedded in TopicMastery for persistence.
type MasteryRecord struct {
	Mastery     float64 `json:"mastery"` // 0-100
	Attempts    int     `json:"attempts"`
	Streak      int     `json:"streak"` // consecutive successes, reset on failure
	TimeOnTaskMs int64  `json:"time_on_task_ms"`
}

// TopicMastery is one (user, topic) mastery row. Created lazily on the first
// graded attempt in a topic; never deleted.
type TopicMastery struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	UserID string `json:"user_id" gorm:"not null;size:255;uniqueIndex:idx_user_topic"`
	Topic  string `json:"topic" gorm:"not null;size:255;uniqueIndex:idx_user_topic"`

	MasteryRecord `gorm:"embedded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TopicMastery) TableName() string {
	return "topic_mastery"
}
