package dto

import (
	"ai-knowledge-be/pkg/rag/agents"
	"ai-knowledge-be/pkg/rag/workflow"
	"ai-knowledge-be/pkg/safety"
)

type ChatRequest struct {
	Query     string `json:"query" validate:"required,min=1,max=4000"`
	SessionId string `json:"session_id,omitempty"`
	Persona   string `json:"persona,omitempty"`
	Category  string `json:"category,omitempty"`

	// ImageBase64 carries an optional attached image, standard base64.
	ImageBase64 string `json:"image_base64,omitempty"`

	// Structured routes the query through the decomposition agents.
	Structured bool `json:"structured,omitempty"`
}

type ChatResponse struct {
	SessionId          string                   `json:"session_id"`
	Answer             string                   `json:"answer"`
	Sources            []string                 `json:"sources"`
	SearchCount        int                      `json:"search_count"`
	IsMultimodal       bool                     `json:"is_multimodal"`
	ExtractedText      string                   `json:"extracted_text,omitempty"`
	Confidence         float64                  `json:"confidence"`
	FollowUpSuggestion string                   `json:"suggested_follow_up,omitempty"`
	Persona            string                   `json:"persona,omitempty"`
	Trace              []workflow.TraceStep     `json:"trace"`
	InputValidation    *safety.ValidationResult `json:"input_validation,omitempty"`
	ResponseValidation *safety.ValidationResult `json:"response_validation,omitempty"`

	// Populated only for structured requests
	Classification *agents.Classification `json:"classification,omitempty"`
	Identification *agents.Identification `json:"identification,omitempty"`
}

// ChatCompletedMessage is the usage-accounting payload published after
// every finished turn.
type ChatCompletedMessage struct {
	SessionId    string  `json:"session_id"`
	UserId       string  `json:"user_id"`
	Persona      string  `json:"persona,omitempty"`
	SearchCount  int     `json:"search_count"`
	SourceCount  int     `json:"source_count"`
	Confidence   float64 `json:"confidence"`
	IsMultimodal bool    `json:"is_multimodal"`
	DurationMs   int64   `json:"duration_ms"`
}

type PersonaResponse struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Style       string  `json:"style"`
	Temperature float64 `json:"temperature"`
}

type CategoryListResponse struct {
	Categories []string `json:"categories"`
}
