package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-knowledge-be/pkg/safety"
)

const defaultBaseURL = "https://api.guardrails.ai/v2"

// Checks run per validation surface. Mirrors the hosted service's check ids.
var (
	inputChecks      = []string{"toxic_language", "prompt_injection", "competitor_mention"}
	responseChecks   = []string{"toxic_language", "competitor_mention", "factual_grounding"}
	multimodalChecks = []string{"toxic_language", "unsafe_image_content"}
)

// GuardrailsClient implements safety.Validator against the Guardrails AI API
type GuardrailsClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

var _ safety.Validator = &GuardrailsClient{}

func NewGuardrailsClient(apiKey string, baseURL string) *GuardrailsClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &GuardrailsClient{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type validateRequest struct {
	Text           string   `json:"text"`
	ValidationType string   `json:"validation_type"`
	Context        string   `json:"context"`
	OriginalQuery  string   `json:"original_query,omitempty"`
	Checks         []string `json:"checks"`
}

type validateResponse struct {
	IsValid       *bool              `json:"is_valid"`
	Violations    []safety.Violation `json:"violations"`
	CorrectedText string             `json:"corrected_text"`
	Confidence    float64            `json:"confidence_score"`
}

func (c *GuardrailsClient) ValidateInput(ctx context.Context, text string) (*safety.ValidationResult, error) {
	return c.validate(ctx, validateRequest{
		Text:           text,
		ValidationType: "input_safety",
		Context:        "Product knowledge chatbot conversation",
		Checks:         inputChecks,
	})
}

func (c *GuardrailsClient) ValidateOutput(ctx context.Context, response string, originalQuery string) (*safety.ValidationResult, error) {
	return c.validate(ctx, validateRequest{
		Text:           response,
		ValidationType: "response_quality",
		Context:        "Product knowledge chatbot response",
		OriginalQuery:  originalQuery,
		Checks:         responseChecks,
	})
}

func (c *GuardrailsClient) ValidateMultimodal(ctx context.Context, text string, imageDescription string) (*safety.ValidationResult, error) {
	fullInput := text
	if imageDescription != "" {
		fullInput = fmt.Sprintf("%s\n\nImage content: %s", text, imageDescription)
	}
	return c.validate(ctx, validateRequest{
		Text:           fullInput,
		ValidationType: "multimodal_input",
		Context:        "Product knowledge chatbot with image analysis",
		Checks:         multimodalChecks,
	})
}

func (c *GuardrailsClient) validate(ctx context.Context, reqPayload validateRequest) (*safety.ValidationResult, error) {
	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/validate", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("guardrails request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("guardrails error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp validateResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// Missing is_valid means the service had nothing to flag
	isValid := true
	if apiResp.IsValid != nil {
		isValid = *apiResp.IsValid
	}

	violations := apiResp.Violations
	if violations == nil {
		violations = []safety.Violation{}
	}

	return &safety.ValidationResult{
		IsValid:       isValid,
		Violations:    violations,
		CorrectedText: apiResp.CorrectedText,
		Confidence:    apiResp.Confidence,
	}, nil
}
