package projection

import "fmt"

// Field names as they appear on the wire, so a ValidationError can be mapped
// straight onto the request body field that caused it.
const (
	FieldInitialInvestment      = "initialInvestment"
	FieldCycles                 = "cycles"
	FieldReinvestmentPercentage = "reinvestmentPercentage"
)

// ValidationError reports a single out-of-bounds or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func errInvalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func errInvalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
