package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-knowledge-be/pkg/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

type OpenAIProvider struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	VisionModel string
	Client      *http.Client
}

// Ensure OpenAIProvider implements LLMProvider
var _ llm.LLMProvider = &OpenAIProvider{}

func NewOpenAIProvider(apiKey, modelName, visionModel string) *OpenAIProvider {
	if visionModel == "" {
		visionModel = modelName
	}
	return &OpenAIProvider{
		APIKey:      apiKey,
		BaseURL:     defaultBaseURL,
		ModelName:   modelName,
		VisionModel: visionModel,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// Content is either a plain string or a list of content parts (vision).
type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"` // "text" | "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// --- Interface Implementation ---

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := resolveOptions(opts)

	reqPayload := chatRequest{
		Model:       p.model(options),
		Messages:    toChatMessages(history),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}

	return p.complete(ctx, reqPayload)
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *OpenAIProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.Delta, error) {
	options := resolveOptions(opts)

	reqPayload := chatRequest{
		Model:       p.model(options),
		Messages:    toChatMessages(history),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Stream:      true,
	}

	resp, err := p.send(ctx, reqPayload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	deltas := make(chan llm.Delta)
	go func() {
		defer close(deltas)
		defer resp.Body.Close()

		// The stream is server-sent events: "data: <json>\n\n" lines with
		// a final "data: [DONE]" sentinel. Every send is guarded so a
		// consumer that stops reading cannot strand this goroutine.
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				sendDelta(ctx, deltas, llm.Delta{Err: ctx.Err()})
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				sendDelta(ctx, deltas, llm.Delta{Done: true})
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				if !sendDelta(ctx, deltas, llm.Delta{Content: content}) {
					return
				}
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

func (p *OpenAIProvider) AnalyzeImage(ctx context.Context, prompt string, image []byte, opts ...llm.Option) (string, error) {
	options := resolveOptions(opts)

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	reqPayload := chatRequest{
		Model: p.visionModel(options),
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}

	return p.complete(ctx, reqPayload)
}

func (p *OpenAIProvider) ExtractImageText(ctx context.Context, image []byte, opts ...llm.Option) (string, error) {
	return p.AnalyzeImage(ctx,
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

func resolveOptions(opts []llm.Option) *llm.Options {
	options := &llm.Options{
		Temperature: 0.7, // Default
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func toChatMessages(history []llm.Message) []chatMessage {
	messages := make([]chatMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		messages[i] = chatMessage{Role: role, Content: msg.Content}
	}
	return messages
}

func (p *OpenAIProvider) model(options *llm.Options) string {
	if options.Model != "" {
		return options.Model
	}
	return p.ModelName
}

func (p *OpenAIProvider) visionModel(options *llm.Options) string {
	if options.Model != "" {
		return options.Model
	}
	return p.VisionModel
}

func (p *OpenAIProvider) send(ctx context.Context, reqPayload chatRequest) (*http.Response, error) {
	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.BaseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	return resp, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, reqPayload chatRequest) (string, error) {
	resp, err := p.send(ctx, reqPayload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}
