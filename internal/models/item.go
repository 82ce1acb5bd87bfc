package models

import (
	"time"

	"gorm.io/datatypes"
)

type ItemType string

const (
	ItemMCQ         ItemType = "mcq"
	ItemFillBlank   ItemType = "fill_blank"
	ItemShortAnswer ItemType = "short_answer"
	ItemMatch       ItemType = "match"
	ItemReorder     ItemType = "reorder"
)

type GradingMethod string

const (
	GradeExact      GradingMethod = "exact"
	GradeFuzzy      GradingMethod = "fuzzy"
	GradeSemantic   GradingMethod = "semantic"
	GradePairs      GradingMethod = "pairs"
	GradePositional GradingMethod = "positional"
)

type ItemSource string

const (
	SourceAuthored    ItemSource = "authored"
	SourceGenerated   ItemSource = "generated"
	SourcePlaceholder ItemSource = "placeholder"
)

// DefaultGradingMethod returns the grading method derived from the item type.
func DefaultGradingMethod(t ItemType) GradingMethod {
	switch t {
	case ItemMCQ:
		return GradeExact
	case ItemFillBlank:
		return GradeFuzzy
	case ItemShortAnswer:
		return GradeSemantic
	case ItemMatch:
		return GradePairs
	case ItemReorder:
		return GradePositional
	default:
		return GradeExact
	}
}

// CompatibleGradingMethod reports whether a grading method may be used for an
// item type. Overrides are narrow: text types may swap between exact/fuzzy/
// semantic; structural types are locked to their own method.
func CompatibleGradingMethod(t ItemType, m GradingMethod) bool {
	switch t {
	case ItemMCQ, ItemFillBlank, ItemShortAnswer:
		return m == GradeExact || m == GradeFuzzy || m == GradeSemantic
	case ItemMatch:
		return m == GradePairs
	case ItemReorder:
		return m == GradePositional
	default:
		return false
	}
}

type Item struct {
	ID   uint     `json:"id" gorm:"primaryKey"`
	Type ItemType `json:"type" gorm:"not null;index" validate:"required,oneof=mcq fill_blank short_answer match reorder"`

	Question string `json:"question" gorm:"type:text;not null" validate:"required"`

	// Choices is an ordered []string, used by mcq/match/reorder.
	Choices datatypes.JSON `json:"choices" gorm:"type:jsonb"`

	// Answer holds the AnswerKey for the item; its populated variant depends
	// on Type. Editing after a completed attempt references the item is not
	// allowed (historical grading must stay reproducible).
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	GradingMethod GradingMethod `json:"grading_method" gorm:"not null;index"`
	Difficulty    int           `json:"difficulty" gorm:"not null;default:3;index" validate:"min=1,max=5"`

	// Topics is a []string set.
	Topics datatypes.JSON `json:"topics" gorm:"type:jsonb"`

	Hints       datatypes.JSON `json:"hints" gorm:"type:jsonb"` // []string
	Explanation *string        `json:"explanation" gorm:"type:text"`

	Source  ItemSource `json:"source" gorm:"default:authored;index"`
	BatchID *uint      `json:"batch_id" gorm:"index"`

	CreatedBy string    `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Batch *GeneratedBatch `json:"batch,omitempty" gorm:"foreignKey:BatchID"`
}

func (Item) TableName() string {
	return "items"
}

// MatchPair is one (key, value) tuple in a match item reference or submission.
type MatchPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AnswerKey is the reference answer payload stored on an Item. Exactly one
// variant is populated, keyed by the item type:
//
//	mcq, fill_blank  → Text
//	short_answer     → Texts (one or more accepted references)
//	match            → Pairs
//	reorder          → Sequence
type AnswerKey struct {
	Text     string      `json:"text,omitempty"`
	Texts    []string    `json:"texts,omitempty"`
	Pairs    []MatchPair `json:"pairs,omitempty"`
	Sequence []string    `json:"sequence,omitempty"`
}

// References returns the accepted text references for text-graded items.
// For short_answer items with a single Text it is promoted to a one-element
// list so graders only deal with one shape.
func (k AnswerKey) References() []string {
	if len(k.Texts) > 0 {
		return k.Texts
	}
	if k.Text != "" {
		return []string{k.Text}
	}
	return nil
}

// SubmittedAnswer is the raw answer a student submits. As with AnswerKey the
// populated variant must match the item type being answered.
type SubmittedAnswer struct {
	Text     *string     `json:"text,omitempty"`
	Pairs    []MatchPair `json:"pairs,omitempty"`
	Sequence []string    `json:"sequence,omitempty"`
}

// MatchesType reports whether the populated variant is valid for the item type.
func (a SubmittedAnswer) MatchesType(t ItemType) bool {
	switch t {
	case ItemMCQ, ItemFillBlank, ItemShortAnswer:
		return a.Text != nil
	case ItemMatch:
		return a.Pairs != nil
	case ItemReorder:
		return a.Sequence != nil
	default:
		return false
	}
}
