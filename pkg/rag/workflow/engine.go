package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/pkg/embedding"
	"ai-knowledge-be/pkg/llm"
	"ai-knowledge-be/pkg/rag/persona"
	"ai-knowledge-be/pkg/rag/retrieval"
	"ai-knowledge-be/pkg/safety"
)

var errEmptyQuery = errors.New("empty query")

// Request is one chat turn submitted to the engine.
type Request struct {
	Query     string
	SessionID string
	Image     []byte
	Persona   string
	Category  string
	History   []llm.Message

	// SearchHint sharpens the working query used for retrieval without
	// touching the user's literal text.
	SearchHint string

	// Set by the decomposition agents when they front the pipeline;
	// zero values otherwise.
	IdentificationConfidence float64
	HasRationale             bool
}

// Result is the blocking-call outcome.
type Result struct {
	Answer             string                   `json:"answer"`
	Sources            []string                 `json:"sources"`
	SearchCount        int                      `json:"search_count"`
	Context            string                   `json:"context"`
	IsMultimodal       bool                     `json:"is_multimodal"`
	ExtractedText      string                   `json:"extracted_text,omitempty"`
	Confidence         float64                  `json:"confidence"`
	FollowUpSuggestion string                   `json:"suggested_follow_up,omitempty"`
	Trace              []TraceStep              `json:"trace"`
	InputValidation    *safety.ValidationResult `json:"input_validation,omitempty"`
	ResponseValidation *safety.ValidationResult `json:"response_validation,omitempty"`
	Persona            string                   `json:"persona,omitempty"`
}

// Engine sequences validation, retrieval, sufficiency evaluation, bounded
// query reformulation, generation and response screening for one request
// at a time. All collaborators are injected and reused across requests;
// per-request state lives in State.
type Engine struct {
	llm       llm.LLMProvider
	embedder  embedding.EmbeddingProvider
	retriever retrieval.Retriever
	validator safety.Validator
	personas  *persona.Manager
	log       logger.ILogger
}

func NewEngine(
	llmProvider llm.LLMProvider,
	embedder embedding.EmbeddingProvider,
	retriever retrieval.Retriever,
	validator safety.Validator,
	personas *persona.Manager,
	log logger.ILogger,
) *Engine {
	return &Engine{
		llm:       llmProvider,
		embedder:  embedder,
		retriever: retriever,
		validator: validator,
		personas:  personas,
		log:       log,
	}
}

// Personas exposes the configured persona set.
func (e *Engine) Personas() *persona.Manager {
	return e.personas
}

// Chat runs the full pipeline and returns the final answer with its trace.
func (e *Engine) Chat(ctx context.Context, req *Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errEmptyQuery
	}

	state := newState(req, e.personas.Get(req.Persona))

	e.validateInput(ctx, state)
	e.processMultimodalInput(ctx, state)

	for {
		e.searchDocuments(ctx, state, req.Category)
		e.evaluateSufficiency(ctx, state)
		if e.route(state) == routeGenerateAnswer {
			break
		}
		e.reformulateQuery(ctx, state)
	}

	e.generateAnswer(ctx, state, req.History)
	e.validateResponse(ctx, state)
	e.finalize(state)

	e.log.Info("workflow", "chat completed", map[string]interface{}{
		"session_id":      state.SessionID,
		"search_attempts": state.SearchAttempts,
		"chunks":          len(state.RetrievedChunks),
		"confidence":      state.Confidence,
		"is_multimodal":   state.IsMultimodal,
		"persona":         state.personaName(),
	})

	return resultFromState(state), nil
}

func resultFromState(state *State) *Result {
	return &Result{
		Answer:             state.Answer,
		Sources:            state.Sources,
		SearchCount:        state.SearchAttempts,
		Context:            state.Context,
		IsMultimodal:       state.IsMultimodal,
		ExtractedText:      state.ExtractedImageText,
		Confidence:         state.Confidence,
		FollowUpSuggestion: state.FollowUpSuggestion,
		Trace:              state.Trace,
		InputValidation:    state.InputValidation,
		ResponseValidation: state.ResponseValidation,
		Persona:            state.personaName(),
	}
}

// validateInput screens the query. Findings are advisory: a corrected text
// is substituted, anything else is recorded and the pipeline continues.
// Validator outages degrade to a pass with zero confidence.
func (e *Engine) validateInput(ctx context.Context, state *State) {
	var result *safety.ValidationResult
	var err error

	if len(state.Image) > 0 {
		result, err = e.validator.ValidateMultimodal(ctx, state.Query, "user-attached image")
	} else {
		result, err = e.validator.ValidateInput(ctx, state.Query)
	}

	if err != nil {
		state.InputValidation = &safety.ValidationResult{IsValid: true, Violations: []safety.Violation{}, Confidence: 0}
		state.addTrace(StageValidateInput, "SafetyValidator", StatusWarning, "validator unavailable, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	state.InputValidation = result

	if result.IsValid {
		state.addTrace(StageValidateInput, "SafetyValidator", StatusCompleted, "input passed", safety.Summary(result))
		return
	}

	if result.CorrectedText != "" {
		state.Query = result.CorrectedText
		state.addTrace(StageValidateInput, "SafetyValidator", StatusWarning, "input corrected", safety.Summary(result))
		return
	}

	state.addTrace(StageValidateInput, "SafetyValidator", StatusWarning, "input flagged, proceeding", safety.Summary(result))
}

// processMultimodalInput folds OCR output into the working query. Extractor
// failures leave the query untouched and never abort the run.
func (e *Engine) processMultimodalInput(ctx context.Context, state *State) {
	if len(state.Image) == 0 {
		state.IsMultimodal = false
		state.addTrace(StageProcessMultimodal, "VisionModel", StatusSkipped, "no image attached", nil)
		return
	}

	extracted, err := e.llm.ExtractImageText(ctx, state.Image)
	if err != nil {
		state.IsMultimodal = false
		state.addTrace(StageProcessMultimodal, "VisionModel", StatusWarning, "image text extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	state.ExtractedImageText = extracted
	state.Query = fmt.Sprintf("%s\n\nExtracted text from image: %s", state.Query, extracted)
	state.IsMultimodal = true
	state.addTrace(StageProcessMultimodal, "VisionModel", StatusCompleted, "image text extracted", map[string]interface{}{
		"extracted_length": len(extracted),
	})
}

// searchDocuments embeds the working query and merges retrieved chunks.
// Embedding or retrieval failures count as an empty attempt.
func (e *Engine) searchDocuments(ctx context.Context, state *State, category string) {
	state.SearchAttempts++

	searchQuery := state.Query
	if state.Persona != nil {
		searchQuery = state.Persona.ModifySearchQuery(searchQuery)
	}

	embedResp, err := e.embedder.Generate(searchQuery, "RETRIEVAL_QUERY")
	if err != nil {
		state.addTrace(StageSearchDocuments, "Retriever", StatusError, "query embedding failed", map[string]interface{}{
			"attempt": state.SearchAttempts,
			"error":   err.Error(),
		})
		return
	}

	chunks, err := e.retriever.Search(ctx, embedResp.Embedding.Values, constant.SearchTopK, category)
	if err != nil {
		state.addTrace(StageSearchDocuments, "Retriever", StatusError, "similarity search failed", map[string]interface{}{
			"attempt": state.SearchAttempts,
			"error":   err.Error(),
		})
		return
	}

	state.mergeChunks(chunks)
	state.addTrace(StageSearchDocuments, "Retriever", StatusCompleted, "documents retrieved", map[string]interface{}{
		"attempt":      state.SearchAttempts,
		"new_chunks":   len(chunks),
		"total_chunks": len(state.RetrievedChunks),
		"category":     category,
	})
}

// evaluateSufficiency asks the model a yes/no question over the accumulated
// context. An empty context skips the model call.
func (e *Engine) evaluateSufficiency(ctx context.Context, state *State) {
	if len(state.RetrievedChunks) == 0 {
		state.ContextSufficient = false
		state.addTrace(StageEvaluateSufficiency, "LLM", StatusSkipped, "no chunks to evaluate", nil)
		return
	}

	verdict, err := e.llm.Generate(ctx, buildEvaluationPrompt(state.Query, state.Context), llm.WithTemperature(0))
	if err != nil {
		state.ContextSufficient = false
		state.addTrace(StageEvaluateSufficiency, "LLM", StatusError, "sufficiency evaluation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	state.ContextSufficient = strings.Contains(strings.ToUpper(verdict), "YES")
	state.addTrace(StageEvaluateSufficiency, "LLM", StatusCompleted, "context evaluated", map[string]interface{}{
		"sufficient": state.ContextSufficient,
	})
}

func (e *Engine) route(state *State) routeTarget {
	if state.ContextSufficient || state.SearchAttempts >= constant.MaxSearchAttempts {
		return routeGenerateAnswer
	}
	return routeReformulateQuery
}

// reformulateQuery rewrites the original query for the next attempt. On
// model failure the previous working query is retried; the attempt counter
// still bounds the loop.
func (e *Engine) reformulateQuery(ctx context.Context, state *State) {
	rewritten, err := e.llm.Generate(ctx, buildReformulationPrompt(state.OriginalQuery, state.SearchAttempts))
	if err != nil {
		state.addTrace(StageReformulateQuery, "LLM", StatusError, "reformulation failed, retrying previous query", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	state.Query = strings.TrimSpace(rewritten)
	state.addTrace(StageReformulateQuery, "LLM", StatusCompleted, "query reformulated", map[string]interface{}{
		"attempt": state.SearchAttempts,
	})
}

// generateAnswer produces the final text. Multimodal generation falls back
// to the text-only path; with no material at all a fixed fallback is used.
func (e *Engine) generateAnswer(ctx context.Context, state *State, history []llm.Message) {
	if state.Context == "" && !state.IsMultimodal {
		state.Answer = constant.AnswerNotFound
		state.addTrace(StageGenerateAnswer, "LLM", StatusSkipped, "no context available, using fallback", nil)
		return
	}

	if state.IsMultimodal && len(state.Image) > 0 {
		answer, err := e.llm.AnalyzeImage(ctx,
			buildMultimodalPrompt(state.OriginalQuery, state.Context),
			state.Image,
			llm.WithTemperature(e.temperature(state)),
		)
		if err == nil {
			state.Answer = answer + sourceAppendix(state)
			state.addTrace(StageGenerateAnswer, "VisionModel", StatusCompleted, "multimodal answer generated", nil)
			return
		}
		state.addTrace(StageGenerateAnswer, "VisionModel", StatusWarning, "multimodal generation failed, falling back to text", map[string]interface{}{
			"error": err.Error(),
		})
	}

	messages := e.buildAnswerMessages(state, history)
	answer, err := e.llm.Chat(ctx, messages, llm.WithTemperature(e.temperature(state)))
	if err != nil {
		state.Answer = constant.AnswerError
		state.addTrace(StageGenerateAnswer, "LLM", StatusError, "generation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	state.Answer = answer + sourceAppendix(state)
	state.addTrace(StageGenerateAnswer, "LLM", StatusCompleted, "answer generated", map[string]interface{}{
		"answer_length": len(answer),
	})
}

// sourceAppendix renders the citation block structured personas attach to
// a generated answer.
func sourceAppendix(state *State) string {
	if state.Persona == nil || state.Persona.Shape() != persona.ShapeStructured || !state.Persona.IncludeSources() {
		return ""
	}
	if len(state.Sources) == 0 {
		return ""
	}
	return "\n\nSources: " + strings.Join(state.Sources, ", ")
}

// buildAnswerMessages assembles the generation conversation: persona system
// prompt, prior session turns, then the grounded question.
func (e *Engine) buildAnswerMessages(state *State, history []llm.Message) []llm.Message {
	userPrompt := buildAnswerPrompt(state.OriginalQuery, state.Context)

	systemPrompt := "You are an AI assistant for product knowledge. Answer the user's question based on the provided context."
	if state.Persona != nil {
		systemPrompt = state.Persona.ModifySystemPrompt(systemPrompt)
		userPrompt = state.Persona.ModifyUserPrompt(userPrompt)
		if state.Persona.Shape() == persona.ShapeStructured {
			userPrompt += "\n\n" + structuredFormatInstruction
		}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userPrompt})
	return messages
}

func (e *Engine) temperature(state *State) float64 {
	if state.Persona != nil {
		return state.Persona.Temperature()
	}
	return 0.2
}

// validateResponse hard-gates: a flagged answer is replaced with a fixed
// safe message. Validator outages fail open, except under a strict persona,
// which never lets an unscreened answer leave.
func (e *Engine) validateResponse(ctx context.Context, state *State) {
	result, err := e.validator.ValidateOutput(ctx, state.Answer, state.OriginalQuery)
	if err != nil {
		if state.Persona != nil && state.Persona.StrictValidation() {
			state.ResponseValidation = &safety.ValidationResult{IsValid: false, Violations: []safety.Violation{}, Confidence: 0}
			state.Answer = constant.AnswerBlocked
			state.addTrace(StageValidateResponse, "SafetyValidator", StatusWarning, "validator unavailable, strict persona withholds unscreened answer", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		state.ResponseValidation = &safety.ValidationResult{IsValid: true, Violations: []safety.Violation{}, Confidence: 0}
		state.addTrace(StageValidateResponse, "SafetyValidator", StatusWarning, "validator unavailable, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	state.ResponseValidation = result

	if result.IsValid {
		state.addTrace(StageValidateResponse, "SafetyValidator", StatusCompleted, "response passed", safety.Summary(result))
		return
	}

	state.Answer = constant.AnswerBlocked
	state.addTrace(StageValidateResponse, "SafetyValidator", StatusWarning, "response blocked and replaced", safety.Summary(result))
}

func (e *Engine) finalize(state *State) {
	state.Confidence = computeConfidence(state.IdentificationConfidence, len(state.RetrievedChunks), state.HasRationale)

	if state.Persona != nil {
		if !state.Persona.IncludeConfidence() {
			state.Confidence = 0
		}
		state.Sources = state.visibleSources()
	}

	if state.Persona == nil || state.Persona.IncludeSuggestions() {
		state.FollowUpSuggestion = suggestFollowUp(state)
	}
}

// suggestFollowUp proposes the next question. When nothing was found the
// suggestion nudges a rephrase.
func suggestFollowUp(state *State) string {
	if state.Answer == constant.AnswerNotFound {
		return constant.DefaultFollowUp
	}
	if len(state.RetrievedChunks) > 0 {
		return "Would you like to know more about this product's clinical benefits?"
	}
	return ""
}
