package safety

import "context"

// NoopValidator passes everything. Used when safety validation is disabled.
type NoopValidator struct{}

var _ Validator = &NoopValidator{}

func NewNoopValidator() *NoopValidator {
	return &NoopValidator{}
}

func (v *NoopValidator) ValidateInput(ctx context.Context, text string) (*ValidationResult, error) {
	return passResult(), nil
}

func (v *NoopValidator) ValidateOutput(ctx context.Context, response string, originalQuery string) (*ValidationResult, error) {
	return passResult(), nil
}

func (v *NoopValidator) ValidateMultimodal(ctx context.Context, text string, imageDescription string) (*ValidationResult, error) {
	return passResult(), nil
}

func passResult() *ValidationResult {
	return &ValidationResult{
		IsValid:    true,
		Violations: []Violation{},
	}
}
