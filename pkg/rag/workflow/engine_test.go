package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/entity"
	"ai-knowledge-be/pkg/embedding"
	"ai-knowledge-be/pkg/llm"
	"ai-knowledge-be/pkg/rag/persona"
	"ai-knowledge-be/pkg/safety"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test doubles ---

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// fakeLLM scripts each provider method. Nil funcs get a sane default.
type fakeLLM struct {
	generateFn      func(prompt string) (string, error)
	chatFn          func(messages []llm.Message) (string, error)
	streamFn        func(messages []llm.Message) (<-chan llm.Delta, error)
	analyzeFn       func(prompt string, image []byte) (string, error)
	extractFn       func(image []byte) (string, error)
	chatCalls       int
	generatePrompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	f.generatePrompts = append(f.generatePrompts, prompt)
	if f.generateFn != nil {
		return f.generateFn(prompt)
	}
	return "YES", nil
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.chatCalls++
	if f.chatFn != nil {
		return f.chatFn(history)
	}
	return "generated answer", nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.Delta, error) {
	if f.streamFn != nil {
		return f.streamFn(history)
	}
	ch := make(chan llm.Delta, 3)
	ch <- llm.Delta{Content: "generated "}
	ch <- llm.Delta{Content: "answer"}
	ch <- llm.Delta{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeLLM) AnalyzeImage(ctx context.Context, prompt string, image []byte, options ...llm.Option) (string, error) {
	if f.analyzeFn != nil {
		return f.analyzeFn(prompt, image)
	}
	return "multimodal answer", nil
}

func (f *fakeLLM) ExtractImageText(ctx context.Context, image []byte, options ...llm.Option) (string, error) {
	if f.extractFn != nil {
		return f.extractFn(image)
	}
	return "extracted text", nil
}

// recordingEmbedder returns a fixed vector and records every query text.
type recordingEmbedder struct {
	queries []string
	err     error
}

func (f *recordingEmbedder) Generate(text string, taskType string) (*embedding.EmbeddingResponse, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.1, 0.2, 0.3}},
	}, nil
}

type fakeRetriever struct {
	// results is consumed one slice per Search call; the last entry
	// repeats once exhausted.
	results  [][]*entity.ScoredDocumentChunk
	calls    int
	category string
	err      error
}

func (f *fakeRetriever) Search(ctx context.Context, queryVector []float32, k int, category string) ([]*entity.ScoredDocumentChunk, error) {
	f.calls++
	f.category = category
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

func (f *fakeRetriever) SearchByCategory(ctx context.Context, category string, limit int) ([]*entity.DocumentChunk, error) {
	return nil, nil
}

type fakeValidator struct {
	input      *safety.ValidationResult
	inputErr   error
	output     *safety.ValidationResult
	outputErr  error
	multimodal *safety.ValidationResult
	outputSeen string
}

func passResult() *safety.ValidationResult {
	return &safety.ValidationResult{IsValid: true, Violations: []safety.Violation{}, Confidence: 0.99}
}

func (f *fakeValidator) ValidateInput(ctx context.Context, text string) (*safety.ValidationResult, error) {
	if f.inputErr != nil {
		return nil, f.inputErr
	}
	if f.input != nil {
		return f.input, nil
	}
	return passResult(), nil
}

func (f *fakeValidator) ValidateOutput(ctx context.Context, response string, originalQuery string) (*safety.ValidationResult, error) {
	f.outputSeen = response
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	if f.output != nil {
		return f.output, nil
	}
	return passResult(), nil
}

func (f *fakeValidator) ValidateMultimodal(ctx context.Context, text string, imageDescription string) (*safety.ValidationResult, error) {
	if f.multimodal != nil {
		return f.multimodal, nil
	}
	return passResult(), nil
}

func chunk(content string) *entity.ScoredDocumentChunk {
	return &entity.ScoredDocumentChunk{
		Chunk: &entity.DocumentChunk{
			Id:         uuid.New(),
			DocumentId: uuid.New(),
			Content:    content,
		},
		Similarity: 0.9,
	}
}

func newTestEngine(llmFake *fakeLLM, retr *fakeRetriever, val *fakeValidator) (*Engine, *recordingEmbedder) {
	emb := &recordingEmbedder{}
	return NewEngine(llmFake, emb, retr, val, persona.NewManager(), nopLogger{}), emb
}

func isEvaluationPrompt(prompt string) bool {
	return strings.Contains(prompt, "Respond with only 'YES'")
}

func isReformulationPrompt(prompt string) bool {
	return strings.Contains(prompt, "Provide a modified query")
}

// --- tests ---

func TestChatRejectsEmptyQuery(t *testing.T) {
	engine, _ := newTestEngine(&fakeLLM{}, &fakeRetriever{}, &fakeValidator{})

	_, err := engine.Chat(context.Background(), &Request{Query: "   "})
	assert.Error(t, err)
}

func TestChatEmptyCorpusFallback(t *testing.T) {
	llmFake := &fakeLLM{
		generateFn: func(prompt string) (string, error) {
			if isReformulationPrompt(prompt) {
				return "rephrased query", nil
			}
			t.Fatalf("unexpected generate call: %s", prompt)
			return "", nil
		},
	}
	retr := &fakeRetriever{}
	val := &fakeValidator{}
	engine, _ := newTestEngine(llmFake, retr, val)

	res, err := engine.Chat(context.Background(), &Request{Query: "unknown product"})
	require.NoError(t, err)

	assert.Equal(t, constant.AnswerNotFound, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Equal(t, constant.MaxSearchAttempts, res.SearchCount)
	assert.Equal(t, constant.DefaultFollowUp, res.FollowUpSuggestion)
	assert.Zero(t, llmFake.chatCalls)
	// The fallback answer is still screened.
	assert.Equal(t, constant.AnswerNotFound, val.outputSeen)
}

func TestChatSufficientOnFirstAttempt(t *testing.T) {
	c1, c2 := chunk("chunk one"), chunk("chunk two")
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{c1, c2}}}
	llmFake := &fakeLLM{
		chatFn: func(messages []llm.Message) (string, error) {
			return "Final answer.", nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{Query: "what is the dosage"})
	require.NoError(t, err)

	assert.Equal(t, "Final answer.", res.Answer)
	assert.Equal(t, 1, res.SearchCount)
	assert.Equal(t, []string{c1.Chunk.DocumentId.String(), c2.Chunk.DocumentId.String()}, res.Sources)
	assert.Contains(t, res.Context, "chunk one")
	assert.Contains(t, res.Context, "chunk two")
	// 0.5 base + 0.2 for two chunks, no identification boost or rationale.
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.NotEmpty(t, res.FollowUpSuggestion)
}

func TestChatRetriesAreBounded(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("weak match")}}}
	llmFake := &fakeLLM{
		generateFn: func(prompt string) (string, error) {
			if isEvaluationPrompt(prompt) {
				return "NO", nil
			}
			return "another wording", nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{Query: "obscure question"})
	require.NoError(t, err)

	assert.Equal(t, constant.MaxSearchAttempts, res.SearchCount)
	assert.Equal(t, constant.MaxSearchAttempts, retr.calls)
	assert.Equal(t, 1, llmFake.chatCalls, "generation runs exactly once after the loop")
}

func TestChatAccumulatesChunksAcrossAttempts(t *testing.T) {
	shared := chunk("seen twice")
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{
		{shared},
		{shared, chunk("new on retry")},
	}}
	llmFake := &fakeLLM{
		generateFn: func(prompt string) (string, error) {
			if isEvaluationPrompt(prompt) {
				// Insufficient once, sufficient on the retry.
				if strings.Contains(prompt, "new on retry") {
					return "YES", nil
				}
				return "NO", nil
			}
			return "retry wording", nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{Query: "needs two passes"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.SearchCount)
	assert.Equal(t, 1, strings.Count(res.Context, "seen twice"), "duplicate chunk merged once")
	assert.Contains(t, res.Context, "new on retry")
}

func TestChatInputCorrectionSubstitutesQuery(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	val := &fakeValidator{
		input: &safety.ValidationResult{
			IsValid:       false,
			Violations:    []safety.Violation{{Kind: "toxic_language"}},
			CorrectedText: "polite question",
		},
	}
	engine, emb := newTestEngine(&fakeLLM{}, retr, val)

	res, err := engine.Chat(context.Background(), &Request{Query: "rude question"})
	require.NoError(t, err)

	require.NotEmpty(t, emb.queries)
	assert.Equal(t, "polite question", emb.queries[0], "retrieval uses the corrected text")
	require.NotNil(t, res.InputValidation)
	assert.False(t, res.InputValidation.IsValid)
}

func TestChatInputValidatorOutageFailsOpen(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	val := &fakeValidator{inputErr: errors.New("guardrails down")}
	engine, _ := newTestEngine(&fakeLLM{}, retr, val)

	res, err := engine.Chat(context.Background(), &Request{Query: "normal question"})
	require.NoError(t, err)

	require.NotNil(t, res.InputValidation)
	assert.True(t, res.InputValidation.IsValid)
	assert.Zero(t, res.InputValidation.Confidence)
	assert.NotEqual(t, constant.AnswerError, res.Answer)
}

func TestChatBlockedResponseIsReplaced(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	val := &fakeValidator{
		output: &safety.ValidationResult{
			IsValid:    false,
			Violations: []safety.Violation{{Kind: "unsafe_medical_advice"}},
		},
	}
	engine, _ := newTestEngine(&fakeLLM{}, retr, val)

	res, err := engine.Chat(context.Background(), &Request{Query: "question"})
	require.NoError(t, err)

	assert.Equal(t, constant.AnswerBlocked, res.Answer)
	require.NotNil(t, res.ResponseValidation)
	assert.False(t, res.ResponseValidation.IsValid)
}

func TestChatGenerationFailure(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	llmFake := &fakeLLM{
		chatFn: func(messages []llm.Message) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{Query: "question"})
	require.NoError(t, err)

	assert.Equal(t, constant.AnswerError, res.Answer)
}

func TestChatMultimodalFoldsExtractedText(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("device manual")}}}
	llmFake := &fakeLLM{
		extractFn: func(image []byte) (string, error) {
			return "MODEL XR-200", nil
		},
	}
	engine, emb := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{
		Query: "what device is this",
		Image: []byte{0xFF, 0xD8},
	})
	require.NoError(t, err)

	assert.True(t, res.IsMultimodal)
	assert.Equal(t, "MODEL XR-200", res.ExtractedText)
	assert.Equal(t, "multimodal answer", res.Answer)
	require.NotEmpty(t, emb.queries)
	assert.Contains(t, emb.queries[0], "Extracted text from image: MODEL XR-200")
}

func TestChatMultimodalVisionFallsBackToText(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("device manual")}}}
	llmFake := &fakeLLM{
		analyzeFn: func(prompt string, image []byte) (string, error) {
			return "", errors.New("vision backend down")
		},
		chatFn: func(messages []llm.Message) (string, error) {
			return "text fallback answer", nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{
		Query: "what device is this",
		Image: []byte{0xFF, 0xD8},
	})
	require.NoError(t, err)

	assert.Equal(t, "text fallback answer", res.Answer)
	var sawFallbackWarning bool
	for _, step := range res.Trace {
		if step.Stage == StageGenerateAnswer && step.Status == StatusWarning {
			sawFallbackWarning = true
		}
	}
	assert.True(t, sawFallbackWarning, "trace records the vision fallback")
}

func TestChatExtractionFailureStaysTextual(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	llmFake := &fakeLLM{
		extractFn: func(image []byte) (string, error) {
			return "", errors.New("ocr failed")
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{
		Query: "question",
		Image: []byte{0x01},
	})
	require.NoError(t, err)

	assert.False(t, res.IsMultimodal)
	assert.Empty(t, res.ExtractedText)
	assert.Equal(t, "generated answer", res.Answer)
}

func TestChatReformulationFailureRetriesPreviousQuery(t *testing.T) {
	retr := &fakeRetriever{}
	llmFake := &fakeLLM{
		generateFn: func(prompt string) (string, error) {
			if isReformulationPrompt(prompt) {
				return "", errors.New("model down")
			}
			return "NO", nil
		},
	}
	engine, emb := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{Query: "stable query"})
	require.NoError(t, err)

	assert.Equal(t, constant.MaxSearchAttempts, res.SearchCount)
	for _, q := range emb.queries {
		assert.Equal(t, "stable query", q)
	}
}

func TestChatPersonaColorsSearchAndGeneration(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("spec sheet")}}}
	var sawSystem string
	llmFake := &fakeLLM{
		chatFn: func(messages []llm.Message) (string, error) {
			sawSystem = messages[0].Content
			return "technical answer", nil
		},
	}
	engine, emb := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{
		Query:   "voltage rating",
		Persona: "technical_expert",
	})
	require.NoError(t, err)

	assert.Equal(t, "technical_expert", res.Persona)
	require.NotEmpty(t, emb.queries)
	assert.True(t, strings.HasPrefix(emb.queries[0], "technical specifications compliance"), "persona prefixes the search query")
	assert.Contains(t, sawSystem, "technical expert")
	// This persona opts out of follow-up suggestions.
	assert.Empty(t, res.FollowUpSuggestion)
}

func TestChatCategoryReachesRetriever(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("cardiology note")}}}
	engine, _ := newTestEngine(&fakeLLM{}, retr, &fakeValidator{})

	_, err := engine.Chat(context.Background(), &Request{Query: "q", Category: "cardiology"})
	require.NoError(t, err)

	assert.Equal(t, "cardiology", retr.category)
}

func TestChatHistoryPrecedesQuestion(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	var seen []llm.Message
	llmFake := &fakeLLM{
		chatFn: func(messages []llm.Message) (string, error) {
			seen = messages
			return "ok", nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	history := []llm.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	_, err := engine.Chat(context.Background(), &Request{Query: "follow-up", History: history})
	require.NoError(t, err)

	require.Len(t, seen, 4)
	assert.Equal(t, "system", seen[0].Role)
	assert.Equal(t, "earlier question", seen[1].Content)
	assert.Equal(t, "earlier answer", seen[2].Content)
	assert.Equal(t, "user", seen[3].Role)
}

func TestChatIdentificationBoostsConfidence(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("a"), chunk("b"), chunk("c"), chunk("d")}}}
	engine, _ := newTestEngine(&fakeLLM{}, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{
		Query:                    "q",
		IdentificationConfidence: 0.9,
		HasRationale:             true,
	})
	require.NoError(t, err)

	// 0.5 + min(0.9*0.2, 0.2)=0.18 + min(4*0.1, 0.3)=0.3 + 0.1 = capped fields summed
	assert.InDelta(t, 0.5+0.18+0.3+0.1, res.Confidence, 1e-9)
}

func TestChatStructuredPersonaAppendsSources(t *testing.T) {
	c := chunk("clinical evidence")
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{c}}}
	var userPrompt string
	llmFake := &fakeLLM{
		chatFn: func(messages []llm.Message) (string, error) {
			userPrompt = messages[len(messages)-1].Content
			return "clinical answer", nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	res, err := engine.Chat(context.Background(), &Request{
		Query:   "is it safe in pregnancy",
		Persona: "clinical_advisor",
	})
	require.NoError(t, err)

	assert.Contains(t, userPrompt, "clear sections", "structured persona shapes the generation prompt")
	assert.Equal(t, "clinical answer\n\nSources: "+c.Chunk.DocumentId.String(), res.Answer)
}

func TestChatStrictPersonaWithholdsAnswerOnValidatorOutage(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	val := &fakeValidator{outputErr: errors.New("guardrails down")}
	engine, _ := newTestEngine(&fakeLLM{}, retr, val)

	res, err := engine.Chat(context.Background(), &Request{
		Query:   "contraindications",
		Persona: "clinical_advisor",
	})
	require.NoError(t, err)

	assert.Equal(t, constant.AnswerBlocked, res.Answer)
	require.NotNil(t, res.ResponseValidation)
	assert.False(t, res.ResponseValidation.IsValid)

	// A non-strict persona still fails open on the same outage.
	retr2 := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	engine2, _ := newTestEngine(&fakeLLM{}, retr2, &fakeValidator{outputErr: errors.New("guardrails down")})

	res2, err := engine2.Chat(context.Background(), &Request{
		Query:   "best pitch",
		Persona: "sales_assistant",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", res2.Answer)
}

func TestChatPersonaHidesSourcesAndConfidence(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("a"), chunk("b"), chunk("c")}}}
	manager := persona.NewManager()
	manager.Register(&persona.Config{
		PersonaName: "quiet",
		Temp:        0.2,
		Suggestions: true,
	})
	emb := &recordingEmbedder{}
	engine := NewEngine(&fakeLLM{}, emb, retr, &fakeValidator{}, manager, nopLogger{})

	res, err := engine.Chat(context.Background(), &Request{Query: "q", Persona: "quiet"})
	require.NoError(t, err)

	assert.Empty(t, res.Sources)
	assert.Zero(t, res.Confidence)
	assert.NotEmpty(t, res.Answer)
}

func TestChatSearchHintSharpensRetrievalNotTheQuestion(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("dosing guidance")}}}
	var userPrompt string
	llmFake := &fakeLLM{
		chatFn: func(messages []llm.Message) (string, error) {
			userPrompt = messages[len(messages)-1].Content
			return "ok", nil
		},
	}
	engine, emb := newTestEngine(llmFake, retr, &fakeValidator{})

	_, err := engine.Chat(context.Background(), &Request{
		Query:      "tell me about dosing",
		SearchHint: "Amoxicillin",
	})
	require.NoError(t, err)

	require.NotEmpty(t, emb.queries)
	assert.Equal(t, "tell me about dosing Amoxicillin", emb.queries[0])
	assert.Contains(t, userPrompt, "Question: tell me about dosing\n")
	assert.NotContains(t, userPrompt, "Amoxicillin")
}
