package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchPublished BatchStatus = "published"
)

// ParsedItem is one generated item payload held on a draft batch before it is
// materialized into the bank.
type ParsedItem struct {
	Type        ItemType  `json:"type"`
	Question    string    `json:"question"`
	Choices     []string  `json:"choices,omitempty"`
	Answer      AnswerKey `json:"answer"`
	Difficulty  int       `json:"difficulty"`
	Hints       []string  `json:"hints,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
}

// GeneratedBatch is one generation run for a topic. Draft batches hold parsed
// items that have not yet been written to the bank; publishing materializes
// them and links the created items back via Item.BatchID.
type GeneratedBatch struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Topic string `json:"topic" gorm:"not null;index;size:255"`

	Status BatchStatus `json:"status" gorm:"default:draft;index"`

	// Items holds []ParsedItem while the batch is a draft.
	Items     datatypes.JSON `json:"items" gorm:"type:jsonb"`
	ItemCount int            `json:"item_count" gorm:"not null;default:0"`

	// DifficultySignature records the bucket set the generation targeted,
	// e.g. "1-2-3".
	DifficultySignature string `json:"difficulty_signature" gorm:"size:20"`

	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relations
	LinkedItems []Item `json:"linked_items,omitempty" gorm:"foreignKey:BatchID"`
}

func (GeneratedBatch) TableName() string {
	return "generated_batches"
}

// ParsedItems decodes the draft item payloads.
func (b *GeneratedBatch) ParsedItems() []ParsedItem {
	var items []ParsedItem
	if len(b.Items) > 0 {
		_ = json.Unmarshal(b.Items, &items)
	}
	return items
}
