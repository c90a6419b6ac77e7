package workflow

import (
	"context"
	"strings"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/pkg/llm"
)

type EventType string

const (
	EventMetadata EventType = "metadata"
	EventContent  EventType = "content"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// Event is one frame of the streaming contract: exactly one metadata event,
// then content events, at most one error event, then one end event.
type Event struct {
	Type EventType `json:"type"`

	// content
	Content   string `json:"content,omitempty"`
	Corrected bool   `json:"corrected,omitempty"`

	// metadata
	Sources       []string    `json:"sources,omitempty"`
	SearchCount   int         `json:"search_count,omitempty"`
	IsMultimodal  bool        `json:"is_multimodal,omitempty"`
	ExtractedText string      `json:"extracted_text,omitempty"`
	Trace         []TraceStep `json:"trace,omitempty"`
	Persona       string      `json:"persona,omitempty"`

	// end
	Confidence         float64 `json:"confidence,omitempty"`
	FollowUpSuggestion string  `json:"suggested_follow_up,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// ChatStream runs the pipeline up through context assembly, then streams
// generation incrementally. The full text is screened once accumulated; a
// blocked answer is retracted with a final corrective content event before
// end. Cancelling ctx stops the underlying generation; the channel is
// always closed after the end event.
func (e *Engine) ChatStream(ctx context.Context, req *Request) (<-chan Event, error) {
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

	events := make(chan Event)
	go func() {
		defer close(events)
		e.streamGeneration(ctx, state, req.History, events)
	}()

	return events, nil
}

// send delivers an event unless the caller has gone away.
func send(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) streamGeneration(ctx context.Context, state *State, history []llm.Message, events chan<- Event) {
	ok := send(ctx, events, Event{
		Type:          EventMetadata,
		Sources:       state.visibleSources(),
		SearchCount:   state.SearchAttempts,
		IsMultimodal:  state.IsMultimodal,
		ExtractedText: state.ExtractedImageText,
		Trace:         state.Trace,
		Persona:       state.personaName(),
	})
	if !ok {
		return
	}

	streamErr := e.emitAnswer(ctx, state, history, events)
	if streamErr != nil {
		state.Answer = constant.AnswerError
		state.addTrace(StageGenerateAnswer, "LLM", StatusError, "streamed generation failed", map[string]interface{}{
			"error": streamErr.Error(),
		})
		if !send(ctx, events, Event{Type: EventError, Error: streamErr.Error()}) {
			return
		}
	}

	e.validateResponse(ctx, state)
	if state.Answer == constant.AnswerBlocked {
		// Retract the streamed text: the corrective event is the answer
		// of record.
		if !send(ctx, events, Event{Type: EventContent, Content: constant.AnswerBlocked, Corrected: true}) {
			return
		}
	}

	e.finalize(state)

	send(ctx, events, Event{
		Type:               EventEnd,
		Confidence:         state.Confidence,
		FollowUpSuggestion: state.FollowUpSuggestion,
	})

	e.log.Info("workflow", "chat stream completed", map[string]interface{}{
		"session_id":      state.SessionID,
		"search_attempts": state.SearchAttempts,
		"chunks":          len(state.RetrievedChunks),
		"is_multimodal":   state.IsMultimodal,
		"persona":         state.personaName(),
	})
}

// emitAnswer produces content events and accumulates the full answer text
// on the state for post-hoc screening.
func (e *Engine) emitAnswer(ctx context.Context, state *State, history []llm.Message, events chan<- Event) error {
	if state.Context == "" && !state.IsMultimodal {
		state.Answer = constant.AnswerNotFound
		state.addTrace(StageGenerateAnswer, "LLM", StatusSkipped, "no context available, using fallback", nil)
		send(ctx, events, Event{Type: EventContent, Content: constant.AnswerNotFound})
		return nil
	}

	// Vision-capable backends have no token stream here: generate fully,
	// emit as one content event. Failure falls back to streamed text.
	if state.IsMultimodal && len(state.Image) > 0 {
		answer, err := e.llm.AnalyzeImage(ctx,
			buildMultimodalPrompt(state.OriginalQuery, state.Context),
			state.Image,
			llm.WithTemperature(e.temperature(state)),
		)
		if err == nil {
			answer += sourceAppendix(state)
			state.Answer = answer
			state.addTrace(StageGenerateAnswer, "VisionModel", StatusCompleted, "multimodal answer generated", nil)
			send(ctx, events, Event{Type: EventContent, Content: answer})
			return nil
		}
		state.addTrace(StageGenerateAnswer, "VisionModel", StatusWarning, "multimodal generation failed, falling back to text", map[string]interface{}{
			"error": err.Error(),
		})
	}

	messages := e.buildAnswerMessages(state, history)
	deltas, err := e.llm.ChatStream(ctx, messages, llm.WithTemperature(e.temperature(state)))
	if err != nil {
		return err
	}

	var full strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			state.Answer = full.String()
			return delta.Err
		}
		if delta.Content != "" {
			full.WriteString(delta.Content)
			if !send(ctx, events, Event{Type: EventContent, Content: delta.Content}) {
				state.Answer = full.String()
				return ctx.Err()
			}
		}
		if delta.Done {
			break
		}
	}

	if appendix := sourceAppendix(state); appendix != "" {
		full.WriteString(appendix)
		if !send(ctx, events, Event{Type: EventContent, Content: appendix}) {
			state.Answer = full.String()
			return ctx.Err()
		}
	}

	state.Answer = full.String()
	state.addTrace(StageGenerateAnswer, "LLM", StatusCompleted, "answer streamed", map[string]interface{}{
		"answer_length": full.Len(),
	})
	return nil
}
