package dataimporter

import "fmt"

// ValidationError aborts the whole run: staging is discarded, the gate is
// released and the message surfaces as an error event. Unresolved foreign
// references fold into this category.
type ValidationError struct {
	Entity  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

func validationErrorf(entity string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Entity: entity, Message: fmt.Sprintf(format, args...)}
}
