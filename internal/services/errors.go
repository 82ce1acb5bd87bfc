package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for state and lookup failures. Handlers map these onto
// HTTP statuses; callers branch with errors.Is.
var (
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionInvalidated      = errors.New("session is invalidated")
	ErrSessionCancelled        = errors.New("session is cancelled")
	ErrSessionAlreadyCompleted = errors.New("session is already completed")
	ErrSessionNotActive        = errors.New("session is not active")
	ErrNoCurrentItem           = errors.New("no current item to answer")
	ErrItemNotFound            = errors.New("item not found")
	ErrSessionNotProctored     = errors.New("session is not proctored")
	ErrDuplicateAttempt        = errors.New("item already answered in this session")
	ErrOverrideReasonRequired  = errors.New("override reason is required")
)

// ValidationError carries a field-level rejection
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PermissionError is returned when a caller touches a resource they do not own
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsValidationError reports whether err is a field validation rejection
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPermissionError reports whether err is an ownership rejection
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsStateConflictError reports whether err names a session in a state that
// forbids the requested operation.
func IsStateConflictError(err error) bool {
	return errors.Is(err, ErrSessionInvalidated) ||
		errors.Is(err, ErrSessionCancelled) ||
		errors.Is(err, ErrSessionAlreadyCompleted) ||
		errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrDuplicateAttempt)
}
