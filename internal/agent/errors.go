package agent

import (
	"errors"
	"fmt"
)

// Common invoker errors.
var (
	ErrAgentNotFound  = errors.New("agent not found")
	ErrEmptyEndpoint  = errors.New("agent endpoint is empty")
	ErrStreamClosed   = errors.New("agent stream closed before done frame")
)

// InvokerError wraps a failure internal to the invoker itself (as opposed
// to a TaskError, which is the classified, retryable-or-not outcome handed
// back to the Scheduler).
type InvokerError struct {
	Operation string
	Reason    string
	Cause     error
}

func (e *InvokerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("agent invoker error in %s: %s: %v", e.Operation, e.Reason, e.Cause)
	}
	return fmt.Sprintf("agent invoker error in %s: %s", e.Operation, e.Reason)
}

func (e *InvokerError) Unwrap() error {
	return e.Cause
}

func NewInvokerError(operation, reason string, cause error) *InvokerError {
	return &InvokerError{Operation: operation, Reason: reason, Cause: cause}
}
