package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-knowledge-be/pkg/llm"
)

type OllamaProvider struct {
	BaseURL     string
	ModelName   string
	VisionModel string
	Client      *http.Client
}

// Ensure OllamaProvider implements LLMProvider
var _ llm.LLMProvider = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName, visionModel string) *OllamaProvider {
	if visionModel == "" {
		visionModel = modelName
	}
	return &OllamaProvider{
		BaseURL:     baseURL,
		ModelName:   modelName,
		VisionModel: visionModel,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// --- Interface Implementation ---

func (o *OllamaProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	reqPayload := o.buildRequest(history, nil, false, opts...)

	bodyBytes, err := o.post(ctx, reqPayload)
	if err != nil {
		return "", err
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	return ollamaResp.Message.Content, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	// Reuse Chat for simplicity as most new LLMs are chat-optimized
	return o.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (o *OllamaProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.Delta, error) {
	reqPayload := o.buildRequest(history, nil, true, opts...)

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/chat", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	deltas := make(chan llm.Delta)
	go func() {
		defer close(deltas)
		defer resp.Body.Close()

		// Ollama streams newline-delimited JSON objects. Every send is
		// guarded so a consumer that stops reading cannot strand this
		// goroutine.
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				sendDelta(ctx, deltas, llm.Delta{Err: ctx.Err()})
				return
			default:
			}

			var chunk ollamaChatResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				if !sendDelta(ctx, deltas, llm.Delta{Content: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				sendDelta(ctx, deltas, llm.Delta{Done: true})
				return
			}
		}
		if err := scanner.Err(); err != nil {
			sendDelta(ctx, deltas, llm.Delta{Err: fmt.Errorf("read stream: %w", err)})
			return
		}
		sendDelta(ctx, deltas, llm.Delta{Done: true})
	}()

	return deltas, nil
}

func (o *OllamaProvider) AnalyzeImage(ctx context.Context, prompt string, image []byte, opts ...llm.Option) (string, error) {
	opts = append(opts, llm.WithModel(o.VisionModel))
	reqPayload := o.buildRequest([]llm.Message{{Role: "user", Content: prompt}}, image, false, opts...)

	bodyBytes, err := o.post(ctx, reqPayload)
	if err != nil {
		return "", err
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return ollamaResp.Message.Content, nil
}

func (o *OllamaProvider) ExtractImageText(ctx context.Context, image []byte, opts ...llm.Option) (string, error) {
	return o.AnalyzeImage(ctx,
		"Extract all text visible in this image. Return only the extracted text, nothing else.",
		image, opts...)
}

// --- Helpers ---

// sendDelta delivers a delta unless the consumer has gone away.
func sendDelta(ctx context.Context, deltas chan<- llm.Delta, d llm.Delta) bool {
	select {
	case deltas <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *OllamaProvider) buildRequest(history []llm.Message, image []byte, stream bool, opts ...llm.Option) ollamaChatRequest {
	options := &llm.Options{
		Temperature: 0.7, // Default
	}
	for _, opt := range opts {
		opt(options)
	}

	ollamaMessages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		ollamaMessages[i] = ollamaMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	if image != nil && len(ollamaMessages) > 0 {
		last := len(ollamaMessages) - 1
		ollamaMessages[last].Images = []string{base64.StdEncoding.EncodeToString(image)}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	reqPayload := ollamaChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: options.Temperature,
		},
	}
	if options.MaxTokens > 0 {
		reqPayload.Options.NumPredict = options.MaxTokens
	}
	return reqPayload
}

func (o *OllamaProvider) post(ctx context.Context, reqPayload ollamaChatRequest) ([]byte, error) {
	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/chat", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}
