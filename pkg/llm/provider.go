package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Delta is one increment of a token-stream completion. Err is set on the
// final delta when the stream failed mid-way; Done marks normal completion.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(o *Options) {
		o.MaxTokens = maxTokens
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)

	// ChatStream sends a chat history and returns a channel of token
	// increments. The channel is closed after the Done (or Err) delta.
	// Cancelling ctx stops the underlying generation.
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan Delta, error)

	// AnalyzeImage runs a vision-capable completion over prompt + image.
	AnalyzeImage(ctx context.Context, prompt string, image []byte, options ...Option) (string, error)

	// ExtractImageText performs OCR-style extraction of text visible in
	// the image.
	ExtractImageText(ctx context.Context, image []byte, options ...Option) (string, error)
}
