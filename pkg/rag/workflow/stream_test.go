package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ai-knowledge-be/internal/constant"
	"ai-knowledge-be/internal/entity"
	"ai-knowledge-be/pkg/llm"
	"ai-knowledge-be/pkg/safety"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var collected []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, event)
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

// assertFraming checks the ordering contract: one metadata event first,
// at most one error event, exactly one end event last.
func assertFraming(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, EventMetadata, events[0].Type, "metadata comes first")
	assert.Equal(t, EventEnd, events[len(events)-1].Type, "end comes last")

	var metadataCount, errorCount, endCount int
	for _, event := range events {
		switch event.Type {
		case EventMetadata:
			metadataCount++
		case EventError:
			errorCount++
		case EventEnd:
			endCount++
		}
	}
	assert.Equal(t, 1, metadataCount)
	assert.LessOrEqual(t, errorCount, 1)
	assert.Equal(t, 1, endCount)
}

func TestChatStreamRejectsEmptyQuery(t *testing.T) {
	engine, _ := newTestEngine(&fakeLLM{}, &fakeRetriever{}, &fakeValidator{})

	_, err := engine.ChatStream(context.Background(), &Request{Query: ""})
	assert.Error(t, err)
}

func TestChatStreamFraming(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("streamed context")}}}
	engine, _ := newTestEngine(&fakeLLM{}, retr, &fakeValidator{})

	events, err := engine.ChatStream(context.Background(), &Request{Query: "question"})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	assertFraming(t, collected)

	var full strings.Builder
	for _, event := range collected {
		if event.Type == EventContent {
			full.WriteString(event.Content)
		}
	}
	assert.Equal(t, "generated answer", full.String())

	metadata := collected[0]
	assert.Equal(t, 1, metadata.SearchCount)
	assert.Len(t, metadata.Sources, 1)
	assert.NotEmpty(t, metadata.Trace)
}

func TestChatStreamEmptyCorpusEmitsFallback(t *testing.T) {
	llmFake := &fakeLLM{
		generateFn: func(prompt string) (string, error) {
			return "new wording", nil
		},
	}
	engine, _ := newTestEngine(llmFake, &fakeRetriever{}, &fakeValidator{})

	events, err := engine.ChatStream(context.Background(), &Request{Query: "question"})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	assertFraming(t, collected)

	var contents []Event
	for _, event := range collected {
		if event.Type == EventContent {
			contents = append(contents, event)
		}
	}
	require.Len(t, contents, 1)
	assert.Equal(t, constant.AnswerNotFound, contents[0].Content)

	end := collected[len(collected)-1]
	assert.Equal(t, constant.DefaultFollowUp, end.FollowUpSuggestion)
}

func TestChatStreamMidStreamFailureEmitsError(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	llmFake := &fakeLLM{
		streamFn: func(messages []llm.Message) (<-chan llm.Delta, error) {
			ch := make(chan llm.Delta, 2)
			ch <- llm.Delta{Content: "partial "}
			ch <- llm.Delta{Err: errors.New("connection reset")}
			close(ch)
			return ch, nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	events, err := engine.ChatStream(context.Background(), &Request{Query: "question"})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	assertFraming(t, collected)

	var sawError bool
	for _, event := range collected {
		if event.Type == EventError {
			sawError = true
			assert.Contains(t, event.Error, "connection reset")
		}
	}
	assert.True(t, sawError)
}

func TestChatStreamBlockedAnswerIsCorrected(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	val := &fakeValidator{
		output: &safety.ValidationResult{
			IsValid:    false,
			Violations: []safety.Violation{{Kind: "policy"}},
		},
	}
	engine, _ := newTestEngine(&fakeLLM{}, retr, val)

	events, err := engine.ChatStream(context.Background(), &Request{Query: "question"})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	assertFraming(t, collected)

	// The corrective frame is the last content event before end.
	var lastContent *Event
	for i := range collected {
		if collected[i].Type == EventContent {
			lastContent = &collected[i]
		}
	}
	require.NotNil(t, lastContent)
	assert.True(t, lastContent.Corrected)
	assert.Equal(t, constant.AnswerBlocked, lastContent.Content)

	// The full streamed answer was screened, not the deltas.
	assert.Equal(t, "generated answer", val.outputSeen)
}

func TestChatStreamMultimodalSingleContentEvent(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("manual")}}}
	engine, _ := newTestEngine(&fakeLLM{}, retr, &fakeValidator{})

	events, err := engine.ChatStream(context.Background(), &Request{
		Query: "what is this",
		Image: []byte{0xFF},
	})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	assertFraming(t, collected)

	assert.True(t, collected[0].IsMultimodal)
	assert.Equal(t, "extracted text", collected[0].ExtractedText)

	var contents []Event
	for _, event := range collected {
		if event.Type == EventContent {
			contents = append(contents, event)
		}
	}
	require.Len(t, contents, 1)
	assert.Equal(t, "multimodal answer", contents[0].Content)
}

func TestChatStreamClientDisconnectStopsProducer(t *testing.T) {
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{chunk("ctx")}}}
	deltas := make(chan llm.Delta)
	llmFake := &fakeLLM{
		streamFn: func(messages []llm.Message) (<-chan llm.Delta, error) {
			return deltas, nil
		},
	}
	engine, _ := newTestEngine(llmFake, retr, &fakeValidator{})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := engine.ChatStream(ctx, &Request{Query: "question"})
	require.NoError(t, err)

	// Consume metadata, then walk away.
	first := <-events
	assert.Equal(t, EventMetadata, first.Type)

	deltas <- llm.Delta{Content: "never read by anyone "}
	cancel()
	close(deltas)

	select {
	case _, ok := <-events:
		if ok {
			// Drain whatever was in flight; the channel must close.
			for range events {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed after cancel")
	}
}

func TestChatStreamStructuredPersonaStreamsSourceBlock(t *testing.T) {
	c := chunk("clinical evidence")
	retr := &fakeRetriever{results: [][]*entity.ScoredDocumentChunk{{c}}}
	engine, _ := newTestEngine(&fakeLLM{}, retr, &fakeValidator{})

	events, err := engine.ChatStream(context.Background(), &Request{
		Query:   "is it safe in pregnancy",
		Persona: "clinical_advisor",
	})
	require.NoError(t, err)

	collected := collectEvents(t, events)
	assertFraming(t, collected)

	var full strings.Builder
	for _, event := range collected {
		if event.Type == EventContent {
			full.WriteString(event.Content)
		}
	}
	assert.Equal(t, "generated answer\n\nSources: "+c.Chunk.DocumentId.String(), full.String())
}
