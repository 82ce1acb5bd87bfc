package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/adaptive-ed/assessment-engine/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// ValidationError represents a business validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates a struct against business rules
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	var errors ValidationErrors

	err := bv.validate.Struct(s)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			errors = append(errors, ValidationError{
				Field:   err.Field(),
				Message: bv.getErrorMessage(err),
				Value:   err.Value(),
				Rule:    err.Tag(),
			})
		}
	}

	return errors
}

// ValidateItemCreate validates item authoring business rules
func (bv *BusinessValidator) ValidateItemCreate(req *ItemCreateRequest) ValidationErrors {
	var errors ValidationErrors

	// Basic struct validation
	errors = append(errors, bv.Validate(req)...)

	// Item-specific business rules
	errors = append(errors, bv.validateItemBusinessRules(req)...)

	return errors
}

// ValidateSessionStart validates session start business rules
func (bv *BusinessValidator) ValidateSessionStart(req *SessionStartRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	// Proctored mode always runs with monitoring on; the flag only adds
	// monitoring to other modes.
	if req.Mode == models.ModeProctored && req.Proctored != nil && !*req.Proctored {
		errors = append(errors, ValidationError{
			Field:   "proctored",
			Message: "cannot be disabled for proctored mode",
			Value:   *req.Proctored,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Session modes
	bv.validate.RegisterValidation("session_mode", func(fl validator.FieldLevel) bool {
		switch models.SessionMode(fl.Field().String()) {
		case models.ModeDiagnostic, models.ModeFormative, models.ModeSummative, models.ModeProctored:
			return true
		}
		return false
	})

	// Item types
	bv.validate.RegisterValidation("item_type", func(fl validator.FieldLevel) bool {
		switch models.ItemType(fl.Field().String()) {
		case models.ItemMCQ, models.ItemFillBlank, models.ItemShortAnswer, models.ItemMatch, models.ItemReorder:
			return true
		}
		return false
	})

	// Grading methods
	bv.validate.RegisterValidation("grading_method", func(fl validator.FieldLevel) bool {
		switch models.GradingMethod(fl.Field().String()) {
		case models.GradeExact, models.GradeFuzzy, models.GradeSemantic, models.GradePairs, models.GradePositional:
			return true
		}
		return false
	})

	// Difficulty validation (1-5)
	bv.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		d := fl.Field().Int()
		return d >= 1 && d <= 5
	})

	// Item count per session (1-50)
	bv.validate.RegisterValidation("item_count", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n >= 1 && n <= 50
	})

	// Topic tag validation (1-100 characters, non-blank)
	bv.validate.RegisterValidation("topic_tag", func(fl validator.FieldLevel) bool {
		topic := strings.TrimSpace(fl.Field().String())
		return len(topic) >= 1 && len(topic) <= 100
	})

	// Proctoring violation types
	bv.validate.RegisterValidation("violation_type", func(fl validator.FieldLevel) bool {
		return models.IsKnownViolation(models.ViolationType(fl.Field().String()))
	})
}

// validateItemBusinessRules validates cross-field rules for item creation
func (bv *BusinessValidator) validateItemBusinessRules(req *ItemCreateRequest) ValidationErrors {
	var errors ValidationErrors

	// Grading method override must stay compatible with the item type
	if req.GradingMethod != nil && !models.CompatibleGradingMethod(req.Type, *req.GradingMethod) {
		errors = append(errors, ValidationError{
			Field:   "grading_method",
			Message: fmt.Sprintf("method %s is not usable for %s items", *req.GradingMethod, req.Type),
			Value:   *req.GradingMethod,
			Rule:    "business_logic",
		})
	}

	switch req.Type {
	case models.ItemMCQ:
		if len(req.Choices) < 2 {
			errors = append(errors, ValidationError{
				Field:   "choices",
				Message: "mcq items need at least 2 choices",
				Value:   len(req.Choices),
				Rule:    "business_logic",
			})
		}
		if req.Answer.Text == "" {
			errors = append(errors, ValidationError{
				Field:   "answer.text",
				Message: "is required for mcq items",
				Rule:    "business_logic",
			})
		} else if len(req.Choices) > 0 && !containsFold(req.Choices, req.Answer.Text) {
			errors = append(errors, ValidationError{
				Field:   "answer.text",
				Message: "must be one of the choices",
				Value:   req.Answer.Text,
				Rule:    "business_logic",
			})
		}
	case models.ItemFillBlank:
		if req.Answer.Text == "" {
			errors = append(errors, ValidationError{
				Field:   "answer.text",
				Message: "is required for fill_blank items",
				Rule:    "business_logic",
			})
		}
	case models.ItemShortAnswer:
		if req.Answer.Text == "" && len(req.Answer.Texts) == 0 {
			errors = append(errors, ValidationError{
				Field:   "answer.texts",
				Message: "at least one reference answer is required",
				Rule:    "business_logic",
			})
		}
	case models.ItemMatch:
		if len(req.Answer.Pairs) < 2 {
			errors = append(errors, ValidationError{
				Field:   "answer.pairs",
				Message: "match items need at least 2 pairs",
				Value:   len(req.Answer.Pairs),
				Rule:    "business_logic",
			})
		}
	case models.ItemReorder:
		if len(req.Answer.Sequence) < 2 {
			errors = append(errors, ValidationError{
				Field:   "answer.sequence",
				Message: "reorder items need at least 2 elements",
				Value:   len(req.Answer.Sequence),
				Rule:    "business_logic",
			})
		}
	}

	return errors
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(needle)) {
			return true
		}
	}
	return false
}

// getErrorMessage returns user-friendly error messages
func (bv *BusinessValidator) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "session_mode":
		return "must be diagnostic, formative, summative, or proctored"
	case "item_type":
		return "must be a valid item type"
	case "grading_method":
		return "must be a valid grading method"
	case "difficulty_level":
		return "must be between 1 and 5"
	case "item_count":
		return "must be between 1 and 50"
	case "topic_tag":
		return "must be between 1 and 100 characters"
	case "violation_type":
		return "must be a recognized violation type"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}
