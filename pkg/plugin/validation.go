package plugin

// ValidationStatus is the outcome class of checking a collected field map.
type ValidationStatus string

const (
	ValidationSuccess ValidationStatus = "success"
	ValidationWarning ValidationStatus = "warning"
	ValidationError   ValidationStatus = "error"
)

// ValidationResult is the tagged outcome of a plugin's validation function.
// A Warning is informational and never blocks persistence; an Error always
// does.
type ValidationResult struct {
	Status  ValidationStatus
	Message string
}

// Valid returns a success result.
func Valid() ValidationResult { return ValidationResult{Status: ValidationSuccess} }

// Warn returns a non-blocking warning with a message for the user.
func Warn(message string) ValidationResult {
	return ValidationResult{Status: ValidationWarning, Message: message}
}

// Invalid returns a blocking error with a message for the user.
func Invalid(message string) ValidationResult {
	return ValidationResult{Status: ValidationError, Message: message}
}

// OK reports whether the result permits persistence.
func (r ValidationResult) OK() bool { return r.Status != ValidationError }

// IsWarning reports whether the result carries a non-blocking message.
func (r ValidationResult) IsWarning() bool { return r.Status == ValidationWarning }
