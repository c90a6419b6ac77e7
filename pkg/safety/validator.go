package safety

import "context"

// Violation describes a single failed safety check.
type Violation struct {
	Kind   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// ValidationResult is the outcome of running a text through safety checks.
type ValidationResult struct {
	IsValid       bool        `json:"is_valid"`
	Violations    []Violation `json:"violations"`
	CorrectedText string      `json:"corrected_text,omitempty"`
	Confidence    float64     `json:"confidence_score"`
}

// Validator runs safety checks on user input and generated responses.
// Implementations must never block the request path on their own failures:
// a transport or provider error is returned to the caller, who decides
// whether to fail open.
type Validator interface {
	ValidateInput(ctx context.Context, text string) (*ValidationResult, error)
	ValidateOutput(ctx context.Context, response string, originalQuery string) (*ValidationResult, error)
	ValidateMultimodal(ctx context.Context, text string, imageDescription string) (*ValidationResult, error)
}

// Summary flattens a result into loggable details.
func Summary(result *ValidationResult) map[string]interface{} {
	return map[string]interface{}{
		"is_valid":        result.IsValid,
		"violation_count": len(result.Violations),
		"violations":      result.Violations,
		"confidence":      result.Confidence,
		"has_correction":  result.CorrectedText != "",
	}
}
