package fillbot

import (
	"errors"
	"fmt"
)

var (
	// ErrDataLoad means the user data set could not be loaded. Fatal.
	ErrDataLoad = errors.New("data load failed")
	// ErrBrowserLaunch means the browser session could not be started. Fatal.
	ErrBrowserLaunch = errors.New("browser launch failed")
	// ErrMatchingUnavailable means the embedding provider failed.
	ErrMatchingUnavailable = errors.New("matching unavailable")
	// ErrElementInteraction is returned by driver primitives.
	ErrElementInteraction = errors.New("element interaction failed")
	// ErrElementNotFound means the element never became visible.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoMatchingOption means no option label fits the resolved value.
	ErrNoMatchingOption = errors.New("no matching option")
	// ErrInvalidValue means the data value cannot be entered into the field.
	ErrInvalidValue = errors.New("invalid value for field")
)

// FieldError wraps a driver failure with the operation and element ref.
type FieldError struct {
	Op  string
	Ref string
	Err error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is lets every FieldError match ErrElementInteraction.
func (e *FieldError) Is(target error) bool {
	return target == ErrElementInteraction
}

// NewFieldError builds a FieldError for op on ref.
func NewFieldError(op, ref string, err error) error {
	return &FieldError{Op: op, Ref: ref, Err: err}
}
