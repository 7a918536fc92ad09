package repositories

import "fmt"

// DeliveryErrorCode enumerates repository error causes for delivery tracking operations.
type DeliveryErrorCode string

const (
	// DeliveryErrorUnknown represents an unspecified failure.
	DeliveryErrorUnknown DeliveryErrorCode = "delivery_unknown"
	// DeliveryErrorNotFound indicates no tracking record exists.
	DeliveryErrorNotFound DeliveryErrorCode = "delivery_not_found"
	// DeliveryErrorConflict indicates the compare-and-swap status write lost a race.
	DeliveryErrorConflict DeliveryErrorCode = "delivery_conflict"
)

// DeliveryError wraps delivery-specific persistence failures with machine readable codes.
type DeliveryError struct {
	Op      string
	Code    DeliveryErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewDeliveryError constructs a typed delivery error.
func NewDeliveryError(code DeliveryErrorCode, message string, err error) *DeliveryError {
	if message == "" {
		message = string(code)
	}
	return &DeliveryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
