package repositories

import "fmt"

// NotificationErrorCode enumerates repository error causes for notification operations.
type NotificationErrorCode string

const (
	// NotificationErrorUnknown represents an unspecified failure.
	NotificationErrorUnknown NotificationErrorCode = "notification_unknown"
	// NotificationErrorNotFound indicates no row matches the id within the target scope.
	NotificationErrorNotFound NotificationErrorCode = "notification_not_found"
	// NotificationErrorInvalidTarget indicates the stored row violates the one-recipient rule.
	NotificationErrorInvalidTarget NotificationErrorCode = "notification_invalid_target"
)

// NotificationError wraps notification persistence failures with machine readable codes.
type NotificationError struct {
	Op      string
	Code    NotificationErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *NotificationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *NotificationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewNotificationError constructs a typed notification error.
func NewNotificationError(code NotificationErrorCode, message string, err error) *NotificationError {
	if message == "" {
		message = string(code)
	}
	return &NotificationError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
